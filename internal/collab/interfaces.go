package collab

import (
	"context"

	"builder-collab/internal/models"
)

// This package is the consumer of the persistence layer, so the interfaces
// it needs live here. Only methods the hub actually calls are declared.

// ChatRepository persists page chat so late joiners get recent history.
type ChatRepository interface {
	Store(ctx context.Context, msg *models.ChatMessage) error
	GetRecent(ctx context.Context, pageID string, limit int) ([]models.ChatMessage, error)
}

// SessionRecorder writes the audit trail of websocket sessions.
type SessionRecorder interface {
	Create(ctx context.Context, rec *models.SessionRecord) error
	MarkDisconnected(ctx context.Context, sessionID string) error
}

// Publisher fans broadcast frames out to sibling server instances.
// The redis bridge implements this; a single-instance deployment runs
// without one.
type Publisher interface {
	Publish(pageID string, data []byte) error
}
