package presence

import (
	"sort"
	"sync"
	"time"

	"builder-collab/internal/models"
)

// Roster tracks who is connected to one page and how recently they did
// anything. Status (active/idle/offline) is derived from LastSeen at
// snapshot time, so consumers always see the current truth without
// anyone having to push status transitions.
type Roster struct {
	mu    sync.RWMutex
	users map[string]*models.CollaborationUser

	idleAfter    time.Duration
	offlineAfter time.Duration

	// clock is swapped out by tests.
	clock func() time.Time
}

// NewRoster creates an empty roster with the given status thresholds.
func NewRoster(idleAfter, offlineAfter time.Duration) *Roster {
	return &Roster{
		users:        make(map[string]*models.CollaborationUser),
		idleAfter:    idleAfter,
		offlineAfter: offlineAfter,
		clock:        time.Now,
	}
}

// Join adds or refreshes a user. A rejoin overwrites the previous record
// (same editor, new tab).
func (r *Roster) Join(user models.CollaborationUser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user.LastSeen = r.clock()
	user.Status = models.StatusActive
	r.users[user.ID] = &user
}

// Leave removes a user. Reports whether the user was present.
func (r *Roster) Leave(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return false
	}
	delete(r.users, userID)
	return true
}

// Heartbeat marks the user as seen now. Unknown users are ignored — the
// session layer always joins before heartbeating.
func (r *Roster) Heartbeat(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[userID]; ok {
		u.LastSeen = r.clock()
	}
}

// Get returns a copy of one user's record with derived status.
func (r *Roster) Get(userID string) (models.CollaborationUser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return models.CollaborationUser{}, false
	}
	out := *u
	out.Status = out.StatusAt(r.clock(), r.idleAfter, r.offlineAfter)
	return out, true
}

// Snapshot returns all users sorted by name, with status derived from
// LastSeen at the moment of the call.
func (r *Roster) Snapshot() []models.CollaborationUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock()
	out := make([]models.CollaborationUser, 0, len(r.users))
	for _, u := range r.users {
		c := *u
		c.Status = c.StatusAt(now, r.idleAfter, r.offlineAfter)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of tracked users, whatever their status.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Prune removes users who have been silent past the offline threshold and
// returns their ids so the hub can announce the departures.
func (r *Roster) Prune() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	var gone []string
	for id, u := range r.users {
		if now.Sub(u.LastSeen) >= r.offlineAfter {
			delete(r.users, id)
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	return gone
}
