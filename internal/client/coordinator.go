package client

import (
	"sync"
	"time"

	"builder-collab/internal/models"
)

// CoordinatorChannel is the slice of the channel the coordinator needs.
type CoordinatorChannel interface {
	LockChannel
	UpdateSyncPreferences(patch models.PreferencesPatch)
	Preferences() models.SyncPreferences
	Status() ConnectionStatus
	Err() *ChannelError
}

// Coordinator wires component selection to the edit controller: it is the
// one place that decides when leases are taken, upgraded and given back.
type Coordinator struct {
	mu sync.Mutex

	ch       CoordinatorChannel
	ctl      *EditController
	selected string
}

// NewCoordinator creates a coordinator. releaseAfter is the proactive
// lease-release window, normally config.ClientReleaseAfter().
func NewCoordinator(ch CoordinatorChannel, releaseAfter time.Duration) *Coordinator {
	return &Coordinator{
		ch:  ch,
		ctl: NewEditController(ch, "", releaseAfter),
	}
}

// SelectComponent moves the selection. The previous component's lease is
// released strictly before the new one is evaluated, so this path can
// never hold two leases at once. Selecting a foreign-locked component
// leaves the user in a read-only view of it (StartEditing declines).
// An empty id clears the selection.
func (c *Coordinator) SelectComponent(componentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ctl.SetComponent(componentID) // releases the previous lease first
	c.selected = componentID

	if componentID == "" {
		return
	}
	c.ctl.StartEditing(models.LockTypeEditing)
}

// SelectedComponent returns the current selection, empty when none.
func (c *Coordinator) SelectedComponent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// ComponentDragStarted upgrades the held lease to "moving". Best-effort
// annotation of why the lease is held, not a separate locking phase;
// skipped when the component is foreign-locked or not selected.
func (c *Coordinator) ComponentDragStarted(componentID string) {
	c.upgradeLock(componentID, models.LockTypeMoving)
}

// ComponentResizeStarted upgrades the held lease to "resizing".
func (c *Coordinator) ComponentResizeStarted(componentID string) {
	c.upgradeLock(componentID, models.LockTypeResizing)
}

func (c *Coordinator) upgradeLock(componentID string, lockType models.LockType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if componentID == "" || componentID != c.selected {
		return
	}
	if c.ch.IsComponentLocked(componentID) {
		return
	}
	c.ctl.ExtendLock(lockType)
}

// EditingStopped releases the lease explicitly (blur, panel close).
func (c *Coordinator) EditingStopped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctl.StopEditing()
}

// UpdateSyncPreferences forwards a preferences patch and performs the
// cleanup the transition implies: turning component locking off releases
// the held lease instead of leaving a zombie until expiry.
func (c *Coordinator) UpdateSyncPreferences(patch models.PreferencesPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ch.UpdateSyncPreferences(patch)
	if patch.EnableComponentLocking != nil {
		c.ctl.SetLockingEnabled(*patch.EnableComponentLocking)
	}
}

// Blocked reports whether the canvas should gate input while the channel
// is in a transitional connection state.
func (c *Coordinator) Blocked() bool {
	switch c.ch.Status() {
	case StatusConnected, StatusDisconnected:
		return false
	}
	return true
}

// Degraded returns the non-recoverable channel error to surface as a
// banner, or nil. The builder keeps working locally either way.
func (c *Coordinator) Degraded() *ChannelError {
	err := c.ch.Err()
	if err == nil || err.Recoverable {
		return nil
	}
	return err
}

// Close releases any held lease. Call on editor teardown.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctl.Close()
}
