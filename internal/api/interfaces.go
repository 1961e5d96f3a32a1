package api

import (
	"context"

	"builder-collab/internal/models"
)

// This package is the consumer of the hub and repositories, so the
// interfaces it needs live here. Only methods the handlers call are
// declared.

// RoomStats is what the REST handlers need from the collaboration hub.
type RoomStats interface {
	RoomPresence(pageID string) []models.CollaborationUser
	RoomLocks(pageID string) []models.ComponentLock
}

// ChatHistory is what the handlers need from chat storage.
type ChatHistory interface {
	GetRecent(ctx context.Context, pageID string, limit int) ([]models.ChatMessage, error)
	CountForPage(ctx context.Context, pageID string) (int64, error)
}

// SessionHistory is what the handlers need from the session audit trail.
type SessionHistory interface {
	RecentForPage(ctx context.Context, pageID string, limit int) ([]models.SessionRecord, error)
}
