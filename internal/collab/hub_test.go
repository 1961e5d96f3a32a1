package collab

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"builder-collab/internal/models"

	"github.com/segmentio/ksuid"
)

func newTestHub() *Hub {
	return NewHub(Options{
		LockTTL:       30 * time.Second,
		IdleAfter:     60 * time.Second,
		OfflineAfter:  5 * time.Minute,
		SweepInterval: time.Hour, // sweeps are driven manually in tests
		ChatHistory:   50,
	})
}

func newTestSession(pageID, userID, name string, perms models.Permissions) *Session {
	now := time.Now()
	return &Session{
		ID:     ksuid.New().String(),
		PageID: pageID,
		User: &models.CollaborationUser{
			ID:          userID,
			Name:        name,
			Color:       "#61afef",
			Status:      models.StatusActive,
			Permissions: perms,
		},
		Prefs:        models.DefaultSyncPreferences(),
		Send:         make(chan []byte, 256),
		ConnectedAt:  now,
		LastActiveAt: now,
	}
}

// The hub is not started in these tests; handlers run synchronously and
// broadcast frames are read straight from the queue.

func drainBroadcasts(h *Hub) []models.Envelope {
	var out []models.Envelope
	for {
		select {
		case msg := <-h.broadcast:
			var env models.Envelope
			if err := json.Unmarshal(msg.Message, &env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func drainSession(s *Session) []models.Envelope {
	var out []models.Envelope
	for {
		select {
		case frame := <-s.Send:
			var env models.Envelope
			if err := json.Unmarshal(frame, &env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func mustPayload(t *testing.T, payload interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestLockGrantBroadcastsAuthoritativeLease(t *testing.T) {
	h := newTestHub()
	alice := newTestSession("page-1", "a", "Alice", models.PermissionEdit)
	h.handleRegister(alice)
	drainBroadcasts(h)
	drainSession(alice)

	room := h.room("page-1")
	before := time.Now()
	h.handleLock(alice, room, mustPayload(t, models.LockPayload{
		Lock: models.ComponentLock{ComponentID: "btn-1", LockType: models.LockTypeEditing},
	}))

	lock, ok := room.Locks.Get("btn-1")
	if !ok || lock.UserID != "a" {
		t.Fatalf("registry lease = %+v (ok=%v), want held by a", lock, ok)
	}
	if lock.ExpiresAt.Before(before.Add(29*time.Second)) || lock.ExpiresAt.After(before.Add(31*time.Second)) {
		t.Fatalf("lease expiry %v not ~30s from now", lock.ExpiresAt)
	}

	frames := drainBroadcasts(h)
	if len(frames) != 1 || frames[0].Type != models.MessageTypeLock {
		t.Fatalf("broadcasts = %v, want one lock frame", frames)
	}
	var p models.LockPayload
	if err := json.Unmarshal(frames[0].Payload, &p); err != nil {
		t.Fatalf("decode lock frame: %v", err)
	}
	if p.Lock.ExpiresAt.IsZero() {
		t.Fatal("broadcast lease is missing the authoritative expiry")
	}
}

func TestContendedLockDeniedToRequesterOnly(t *testing.T) {
	h := newTestHub()
	alice := newTestSession("page-1", "a", "Alice", models.PermissionEdit)
	bob := newTestSession("page-1", "b", "Bob", models.PermissionEdit)
	h.handleRegister(alice)
	h.handleRegister(bob)
	drainBroadcasts(h)
	drainSession(alice)
	drainSession(bob)

	room := h.room("page-1")
	h.handleLock(alice, room, mustPayload(t, models.LockPayload{
		Lock: models.ComponentLock{ComponentID: "hero-1", LockType: models.LockTypeEditing},
	}))
	drainBroadcasts(h)

	h.handleLock(bob, room, mustPayload(t, models.LockPayload{
		Lock: models.ComponentLock{ComponentID: "hero-1", LockType: models.LockTypeEditing},
	}))

	// No grant broadcast for the losing claim.
	if frames := drainBroadcasts(h); len(frames) != 0 {
		t.Fatalf("broadcasts after contended claim = %v, want none", frames)
	}

	// The denial goes to Bob alone, naming the holder.
	frames := drainSession(bob)
	if len(frames) != 1 || frames[0].Type != models.MessageTypeLockDenied {
		t.Fatalf("bob frames = %v, want one lock_denied", frames)
	}
	var p models.LockDeniedPayload
	if err := json.Unmarshal(frames[0].Payload, &p); err != nil {
		t.Fatalf("decode denial: %v", err)
	}
	if p.HolderID != "a" || p.HolderName != "Alice" {
		t.Fatalf("denial names holder %q/%q, want a/Alice", p.HolderID, p.HolderName)
	}

	// The registry still shows exactly Alice's lease.
	lock, ok := room.Locks.Get("hero-1")
	if !ok || lock.UserID != "a" {
		t.Fatalf("lease = %+v, want still held by a", lock)
	}
}

func TestViewOnlyUserCannotLock(t *testing.T) {
	h := newTestHub()
	viewer := newTestSession("page-1", "v", "Viewer", models.PermissionView)
	h.handleRegister(viewer)
	drainBroadcasts(h)
	drainSession(viewer)

	room := h.room("page-1")
	h.handleLock(viewer, room, mustPayload(t, models.LockPayload{
		Lock: models.ComponentLock{ComponentID: "btn-1", LockType: models.LockTypeEditing},
	}))

	if _, ok := room.Locks.Get("btn-1"); ok {
		t.Fatal("view-only user acquired a lease")
	}
	frames := drainSession(viewer)
	if len(frames) != 1 || frames[0].Type != models.MessageTypeLockDenied {
		t.Fatalf("viewer frames = %v, want one lock_denied", frames)
	}
}

func TestUnlockByNonHolderIsIgnored(t *testing.T) {
	h := newTestHub()
	alice := newTestSession("page-1", "a", "Alice", models.PermissionEdit)
	bob := newTestSession("page-1", "b", "Bob", models.PermissionEdit)
	h.handleRegister(alice)
	h.handleRegister(bob)
	room := h.room("page-1")
	h.handleLock(alice, room, mustPayload(t, models.LockPayload{
		Lock: models.ComponentLock{ComponentID: "btn-1", LockType: models.LockTypeEditing},
	}))
	drainBroadcasts(h)

	h.handleUnlock(bob, room, mustPayload(t, models.UnlockPayload{ComponentID: "btn-1"}))

	if _, ok := room.Locks.Get("btn-1"); !ok {
		t.Fatal("non-holder unlock removed the lease")
	}
	if frames := drainBroadcasts(h); len(frames) != 0 {
		t.Fatalf("broadcasts = %v, want none for an ignored unlock", frames)
	}
}

func TestDisconnectReleasesAllLeases(t *testing.T) {
	h := newTestHub()
	alice := newTestSession("page-1", "a", "Alice", models.PermissionEdit)
	bob := newTestSession("page-1", "b", "Bob", models.PermissionEdit)
	h.handleRegister(alice)
	h.handleRegister(bob)
	room := h.room("page-1")
	for _, id := range []string{"btn-1", "hero-1"} {
		h.handleLock(alice, room, mustPayload(t, models.LockPayload{
			Lock: models.ComponentLock{ComponentID: id, LockType: models.LockTypeEditing},
		}))
	}
	drainBroadcasts(h)

	h.handleUnregister(alice)

	if locks := room.Locks.Snapshot(); len(locks) != 0 {
		t.Fatalf("leases after disconnect = %v, want none", locks)
	}

	var unlocks int
	var leaves int
	for _, env := range drainBroadcasts(h) {
		switch env.Type {
		case models.MessageTypeUnlock:
			unlocks++
		case models.MessageTypeLeave:
			leaves++
		}
	}
	if unlocks != 2 || leaves != 1 {
		t.Fatalf("unlocks=%d leaves=%d, want 2 and 1", unlocks, leaves)
	}
}

func TestDisablingLockingPreferenceReleasesLeases(t *testing.T) {
	h := newTestHub()
	alice := newTestSession("page-1", "a", "Alice", models.PermissionEdit)
	h.handleRegister(alice)
	room := h.room("page-1")
	h.handleLock(alice, room, mustPayload(t, models.LockPayload{
		Lock: models.ComponentLock{ComponentID: "btn-1", LockType: models.LockTypeEditing},
	}))
	drainBroadcasts(h)

	off := false
	h.handlePreferences(alice, room, mustPayload(t, models.PreferencesPayload{
		Patch: models.PreferencesPatch{EnableComponentLocking: &off},
	}))

	if _, ok := room.Locks.Get("btn-1"); ok {
		t.Fatal("lease survived disabling component locking")
	}
	if alice.Prefs.EnableComponentLocking {
		t.Fatal("session preferences not updated")
	}
	frames := drainBroadcasts(h)
	if len(frames) != 1 || frames[0].Type != models.MessageTypeUnlock {
		t.Fatalf("broadcasts = %v, want one unlock", frames)
	}
}

func TestJoinSendsInitialState(t *testing.T) {
	h := newTestHub()
	alice := newTestSession("page-1", "a", "Alice", models.PermissionEdit)
	h.handleRegister(alice)
	room := h.room("page-1")
	h.handleLock(alice, room, mustPayload(t, models.LockPayload{
		Lock: models.ComponentLock{ComponentID: "btn-1", LockType: models.LockTypeEditing},
	}))
	drainBroadcasts(h)
	drainSession(alice)

	bob := newTestSession("page-1", "b", "Bob", models.PermissionEdit)
	h.handleRegister(bob)

	frames := drainSession(bob)
	var gotRoster, gotLocks bool
	for _, env := range frames {
		switch env.Type {
		case models.MessageTypeRoster:
			gotRoster = true
			var p models.RosterPayload
			if json.Unmarshal(env.Payload, &p) == nil && len(p.Users) != 2 {
				t.Fatalf("initial roster has %d users, want 2", len(p.Users))
			}
		case models.MessageTypeLockState:
			gotLocks = true
			var p models.LockStatePayload
			if json.Unmarshal(env.Payload, &p) == nil && len(p.Locks) != 1 {
				t.Fatalf("initial lock state has %d leases, want 1", len(p.Locks))
			}
		}
	}
	if !gotRoster || !gotLocks {
		t.Fatalf("initial sync frames = %v, want roster and lock_state", frames)
	}
}

func TestUnknownFrameTypeGetsRecoverableError(t *testing.T) {
	h := newTestHub()
	alice := newTestSession("page-1", "a", "Alice", models.PermissionEdit)
	h.handleRegister(alice)
	drainBroadcasts(h)
	drainSession(alice)

	h.handleMessage(context.Background(), alice, []byte(`{"type":"teleport","payload":{}}`))

	frames := drainSession(alice)
	if len(frames) != 1 || frames[0].Type != models.MessageTypeError {
		t.Fatalf("frames = %v, want one error", frames)
	}
	var p models.ErrorPayload
	if err := json.Unmarshal(frames[0].Payload, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if !p.Recoverable {
		t.Fatal("unknown frame type should be a recoverable error")
	}
}
