package repository

import (
	"context"
	"fmt"
	"time"

	"builder-collab/internal/models"

	"gorm.io/gorm"
)

// SessionRepositoryImpl writes the websocket session audit trail.
type SessionRepositoryImpl struct {
	db *gorm.DB
}

// NewSessionRepository creates a session repository.
func NewSessionRepository(db *gorm.DB) *SessionRepositoryImpl {
	return &SessionRepositoryImpl{db: db}
}

// Create records a new session at connect time.
func (r *SessionRepositoryImpl) Create(ctx context.Context, rec *models.SessionRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create session record: %w", err)
	}
	return nil
}

// MarkDisconnected closes a session record.
func (r *SessionRepositoryImpl) MarkDisconnected(ctx context.Context, sessionID string) error {
	now := time.Now()
	err := r.db.WithContext(ctx).
		Model(&models.SessionRecord{}).
		Where("id = ?", sessionID).
		Update("disconnected_at", &now).Error
	if err != nil {
		return fmt.Errorf("failed to close session record: %w", err)
	}
	return nil
}

// RecentForPage lists the latest session records for a page.
func (r *SessionRepositoryImpl) RecentForPage(ctx context.Context, pageID string, limit int) ([]models.SessionRecord, error) {
	var records []models.SessionRecord
	err := r.db.WithContext(ctx).
		Where("page_id = ?", pageID).
		Order("connected_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}
	return records, nil
}
