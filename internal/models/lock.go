package models

import "time"

// LockType describes why a lock is held. It picks the verb shown to other
// editors; it does not change the locking semantics.
type LockType string

const (
	LockTypeEditing  LockType = "editing"
	LockTypeMoving   LockType = "moving"
	LockTypeResizing LockType = "resizing"
)

// Valid reports whether t is one of the known lock types.
func (t LockType) Valid() bool {
	switch t {
	case LockTypeEditing, LockTypeMoving, LockTypeResizing:
		return true
	}
	return false
}

// Verb returns the label fragment for presence badges ("Alice is editing").
func (t LockType) Verb() string {
	return string(t)
}

// ComponentLock is a time-bounded claim that one user is working on one
// builder component. The registry guarantees at most one live lock per
// component id; an expired lock is void whether or not it has been swept.
type ComponentLock struct {
	ComponentID string    `json:"component_id"`
	UserID      string    `json:"user_id"`
	LockType    LockType  `json:"lock_type"`
	AcquiredAt  time.Time `json:"acquired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the lease has run out.
func (l *ComponentLock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// RemainingSeconds returns the whole seconds left on the lease, rounded up.
// Expired locks report zero.
func (l *ComponentLock) RemainingSeconds(now time.Time) int {
	remaining := l.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	secs := int((remaining + time.Second - 1) / time.Second)
	return secs
}
