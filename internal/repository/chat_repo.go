package repository

import (
	"context"
	"fmt"

	"builder-collab/internal/models"

	"gorm.io/gorm"
)

// ChatRepositoryImpl stores page chat in postgres.
type ChatRepositoryImpl struct {
	db *gorm.DB
}

// NewChatRepository creates a chat repository.
func NewChatRepository(db *gorm.DB) *ChatRepositoryImpl {
	return &ChatRepositoryImpl{db: db}
}

// Store persists one chat message.
func (r *ChatRepositoryImpl) Store(ctx context.Context, msg *models.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to store chat message: %w", err)
	}
	return nil
}

// GetRecent returns the last limit messages for a page in chronological
// order. Used for the initial sync of late joiners.
func (r *ChatRepositoryImpl) GetRecent(ctx context.Context, pageID string, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage

	err := r.db.WithContext(ctx).
		Where("page_id = ?", pageID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}

	// Query is newest-first for the LIMIT; flip to chronological.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CountForPage returns the number of persisted messages for a page.
func (r *ChatRepositoryImpl) CountForPage(ctx context.Context, pageID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("page_id = ?", pageID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count chat messages: %w", err)
	}
	return count, nil
}
