package models

import (
	"time"
)

// UserStatus reflects recent interaction, not connection state.
// A user with an open socket who hasn't touched anything in a while is idle.
type UserStatus string

const (
	StatusActive  UserStatus = "active"
	StatusIdle    UserStatus = "idle"
	StatusOffline UserStatus = "offline"
)

// Permissions describes what a connected editor may do.
type Permissions string

const (
	PermissionEdit Permissions = "edit"
	PermissionView Permissions = "view"
)

// CollaborationUser represents a connected editor in a page session.
// The roster is authoritative for these records; everything downstream
// (overlays, cursors, chat) treats them as read-only snapshots.
type CollaborationUser struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Avatar      string      `json:"avatar,omitempty"`
	Color       string      `json:"color"` // hex, tints cursors/locks/badges for this user
	Status      UserStatus  `json:"status"`
	Permissions Permissions `json:"permissions"`
	LastSeen    time.Time   `json:"last_seen"`
}

// CanEdit reports whether the user may acquire locks or mutate the page.
func (u *CollaborationUser) CanEdit() bool {
	return u.Permissions == PermissionEdit
}

// StatusAt derives the presence status from the last-seen timestamp.
// Learning: status is computed at read time rather than stored, so a
// stale heartbeat can never leave a user pinned "active".
func (u *CollaborationUser) StatusAt(now time.Time, idleAfter, offlineAfter time.Duration) UserStatus {
	since := now.Sub(u.LastSeen)
	switch {
	case since >= offlineAfter:
		return StatusOffline
	case since >= idleAfter:
		return StatusIdle
	default:
		return StatusActive
	}
}

// CursorPosition is where a user's pointer is on the builder canvas,
// in unzoomed canvas coordinates.
type CursorPosition struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	ComponentID string  `json:"component_id,omitempty"` // component under the cursor, if any
}
