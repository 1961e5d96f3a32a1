package locks

import (
	"sort"
	"sync"
	"time"

	"builder-collab/internal/models"
)

/*
LEARNING: LEASE-BASED COMPONENT LOCKING

The registry is the authoritative lease table for one page: at most one
live lock per component id. Acquire is acquire-if-absent — a claim on a
component with a live foreign lease is declined, never overwritten. Only
the holder may renew or release.

Expiry is enforced twice:
1. At read time: Get/Snapshot never return an expired lease.
2. By a periodic sweep: the hub evicts expired entries and broadcasts the
   implied unlocks, so other clients don't have to wait for a render pass
   to notice a lease died.
*/

// Registry holds the live component leases for a single page.
type Registry struct {
	mu    sync.RWMutex
	locks map[string]models.ComponentLock
	ttl   time.Duration

	// clock is swapped out by tests to drive expiry deterministically.
	clock func() time.Time
}

// NewRegistry creates an empty registry granting leases of the given TTL.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		locks: make(map[string]models.ComponentLock),
		ttl:   ttl,
		clock: time.Now,
	}
}

// TTL returns the lease duration this registry grants.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Acquire claims the component for userID, or renews the claim if userID
// already holds it. It returns the granted lease and true, or the blocking
// foreign lease and false.
func (r *Registry) Acquire(componentID, userID string, lockType models.LockType) (models.ComponentLock, bool) {
	if !lockType.Valid() {
		lockType = models.LockTypeEditing
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	if existing, ok := r.locks[componentID]; ok && !existing.Expired(now) && existing.UserID != userID {
		return existing, false
	}

	lock := models.ComponentLock{
		ComponentID: componentID,
		UserID:      userID,
		LockType:    lockType,
		AcquiredAt:  now,
		ExpiresAt:   now.Add(r.ttl),
	}
	r.locks[componentID] = lock
	return lock, true
}

// Release removes the lease if userID holds it (or if it already expired).
// It reports whether an entry was removed. Safe to call for a component
// with no lease.
func (r *Registry) Release(componentID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.locks[componentID]
	if !ok {
		return false
	}
	if existing.UserID != userID && !existing.Expired(r.clock()) {
		return false
	}
	delete(r.locks, componentID)
	return true
}

// ReleaseAll drops every lease held by userID and returns the released
// component ids. Used when a session disconnects or the user turns
// component locking off.
func (r *Registry) ReleaseAll(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var released []string
	for id, lock := range r.locks {
		if lock.UserID == userID {
			delete(r.locks, id)
			released = append(released, id)
		}
	}
	sort.Strings(released)
	return released
}

// Get returns the live lease for a component, if any. Expired entries are
// treated as absent even before the sweep removes them.
func (r *Registry) Get(componentID string) (models.ComponentLock, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lock, ok := r.locks[componentID]
	if !ok || lock.Expired(r.clock()) {
		return models.ComponentLock{}, false
	}
	return lock, true
}

// LockedByOther reports whether someone other than userID holds a live
// lease on the component.
func (r *Registry) LockedByOther(componentID, userID string) bool {
	lock, ok := r.Get(componentID)
	return ok && lock.UserID != userID
}

// Snapshot returns all live leases, ordered by component id.
func (r *Registry) Snapshot() []models.ComponentLock {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock()
	out := make([]models.ComponentLock, 0, len(r.locks))
	for _, lock := range r.locks {
		if !lock.Expired(now) {
			out = append(out, lock)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ComponentID < out[j].ComponentID })
	return out
}

// ApplyRemote mirrors a lease granted by another server instance into the
// local table. No arbitration happens here — the granting instance already
// serialized the claim.
func (r *Registry) ApplyRemote(lock models.ComponentLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks[lock.ComponentID] = lock
}

// RemoveRemote mirrors a release performed by another server instance.
func (r *Registry) RemoveRemote(componentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, componentID)
}

// Sweep evicts expired leases and returns them so the caller can announce
// the implied unlocks.
func (r *Registry) Sweep() []models.ComponentLock {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	var expired []models.ComponentLock
	for id, lock := range r.locks {
		if lock.Expired(now) {
			delete(r.locks, id)
			expired = append(expired, lock)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ComponentID < expired[j].ComponentID })
	return expired
}
