package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one line of page chat. Messages may optionally be anchored
// to a component ("about this button"). Persisted so late joiners get
// recent history on connect.
type ChatMessage struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	PageID      string    `json:"page_id" gorm:"index;not null"`
	UserID      string    `json:"user_id" gorm:"not null"`
	UserName    string    `json:"user_name" gorm:"not null"`
	Text        string    `json:"text" gorm:"type:text;not null"`
	ComponentID string    `json:"component_id,omitempty" gorm:"index"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

// NewChatMessage builds a chat message with a fresh id.
func NewChatMessage(pageID, userID, userName, text, componentID string) *ChatMessage {
	return &ChatMessage{
		ID:          uuid.New().String(),
		PageID:      pageID,
		UserID:      userID,
		UserName:    userName,
		Text:        text,
		ComponentID: componentID,
		CreatedAt:   time.Now(),
	}
}

// SessionRecord is the audit row for one websocket session: who was on
// which page and when. DisconnectedAt stays nil while the session is live.
type SessionRecord struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	PageID         string     `json:"page_id" gorm:"index;not null"`
	UserID         string     `json:"user_id" gorm:"index;not null"`
	UserName       string     `json:"user_name"`
	ConnectedAt    time.Time  `json:"connected_at"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
}
