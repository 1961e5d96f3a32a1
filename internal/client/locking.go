package client

import (
	"sync"
	"time"

	"builder-collab/internal/models"
)

// LockChannel is the slice of the channel the edit controller needs.
type LockChannel interface {
	LockComponent(componentID string, lockType models.LockType)
	UnlockComponent(componentID string)
	IsComponentLocked(componentID string) bool
}

/*
LEARNING: PROACTIVE LEASE RELEASE

The controller releases a held lease releaseAfter into an edit session,
deliberately before the server-side TTL would void it. The client never
relies on server expiry as the only release path: either the user keeps
working and ExtendLock renews the lease, or the timer gives it back while
it is still valid. releaseAfter is derived from the shared TTL config
(TTL minus the renewal margin), not a second magic number.
*/

// EditController manages the local user's lease on one targeted component.
// From this user's perspective the component is either UNLOCKED or
// LOCKED_BY_ME; a foreign lease just makes StartEditing decline.
type EditController struct {
	mu sync.Mutex

	ch           LockChannel
	componentID  string
	enabled      bool
	releaseAfter time.Duration

	timer   *time.Timer
	holding bool
}

// NewEditController creates a controller for the given component target.
// componentID may be empty; no lock operations happen until a target is
// set.
func NewEditController(ch LockChannel, componentID string, releaseAfter time.Duration) *EditController {
	return &EditController{
		ch:           ch,
		componentID:  componentID,
		enabled:      true,
		releaseAfter: releaseAfter,
	}
}

// StartEditing claims the lease. It declines (returns false) when locking
// is disabled, no component is targeted, or someone else holds the lease.
func (c *EditController) StartEditing(lockType models.LockType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || c.componentID == "" {
		return false
	}
	if c.ch.IsComponentLocked(c.componentID) {
		return false
	}

	c.ch.LockComponent(c.componentID, lockType)
	c.holding = true
	c.armTimerLocked()
	return true
}

// StopEditing cancels the pending auto-release and gives the lease back.
// Idempotent; safe with no lease held.
func (c *EditController) StopEditing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopEditingLocked()
}

// ExtendLock renews the lease and re-arms the auto-release timer. This is
// how a long edit session keeps its lease alive. Unlike StartEditing it
// skips the foreign-lock check: it is meant to be called repeatedly while
// the user is already working.
func (c *EditController) ExtendLock(lockType models.LockType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || c.componentID == "" {
		return false
	}

	c.ch.LockComponent(c.componentID, lockType)
	c.holding = true
	c.armTimerLocked()
	return true
}

// IsLockedByOthers reports whether a foreign lease blocks this component.
func (c *EditController) IsLockedByOthers() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.componentID == "" {
		return false
	}
	return c.ch.IsComponentLocked(c.componentID)
}

// SetComponent retargets the controller. Any lease on the previous target
// is released first, so switching targets can never leave a lock behind.
func (c *EditController) SetComponent(componentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if componentID == c.componentID {
		return
	}
	c.stopEditingLocked()
	c.componentID = componentID
}

// SetLockingEnabled toggles the controller. Disabling releases the held
// lease immediately rather than leaving it to expire.
func (c *EditController) SetLockingEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !enabled {
		c.stopEditingLocked()
	}
	c.enabled = enabled
}

// ComponentID returns the current target.
func (c *EditController) ComponentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.componentID
}

// Holding reports whether the local user currently holds the lease.
func (c *EditController) Holding() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holding
}

// Close releases any held lease and cancels the timer. Call when the
// owning editor surface goes away.
func (c *EditController) Close() {
	c.StopEditing()
}

func (c *EditController) stopEditingLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.holding {
		c.ch.UnlockComponent(c.componentID)
		c.holding = false
	}
}

func (c *EditController) armTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	componentID := c.componentID
	c.timer = time.AfterFunc(c.releaseAfter, func() {
		c.autoRelease(componentID)
	})
}

// autoRelease fires from the timer goroutine. The holding flag guarantees
// exactly one unlock even if StopEditing races the timer.
func (c *EditController) autoRelease(componentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.holding || c.componentID != componentID {
		return
	}
	c.timer = nil
	c.holding = false
	c.ch.UnlockComponent(componentID)
}
