package locks

import (
	"testing"
	"time"

	"builder-collab/internal/models"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestRegistry(ttl time.Duration) (*Registry, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(ttl)
	r.clock = clock.Now
	return r, clock
}

func TestAcquireGrantsLease(t *testing.T) {
	r, clock := newTestRegistry(30 * time.Second)

	lock, ok := r.Acquire("btn-1", "alice", models.LockTypeEditing)
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}
	if lock.ComponentID != "btn-1" || lock.UserID != "alice" {
		t.Fatalf("unexpected lease: %+v", lock)
	}
	if got, want := lock.ExpiresAt, clock.Now().Add(30*time.Second); !got.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", got, want)
	}
}

func TestAcquireDeclinesForeignLiveLease(t *testing.T) {
	r, _ := newTestRegistry(30 * time.Second)

	r.Acquire("hero-1", "alice", models.LockTypeEditing)
	blocking, ok := r.Acquire("hero-1", "bob", models.LockTypeEditing)
	if ok {
		t.Fatal("expected contended acquire to be declined")
	}
	if blocking.UserID != "alice" {
		t.Fatalf("blocking lease held by %q, want alice", blocking.UserID)
	}

	// The decline must not create a second entry.
	if got := len(r.Snapshot()); got != 1 {
		t.Fatalf("snapshot has %d leases, want 1", got)
	}
}

func TestAcquireRenewsOwnLease(t *testing.T) {
	r, clock := newTestRegistry(30 * time.Second)

	first, _ := r.Acquire("btn-1", "alice", models.LockTypeEditing)
	clock.Advance(20 * time.Second)
	renewed, ok := r.Acquire("btn-1", "alice", models.LockTypeMoving)
	if !ok {
		t.Fatal("holder renewal should succeed")
	}
	if !renewed.ExpiresAt.After(first.ExpiresAt) {
		t.Fatal("renewal did not extend the lease")
	}
	if renewed.LockType != models.LockTypeMoving {
		t.Fatalf("lock type = %q, want moving", renewed.LockType)
	}
}

func TestExpiredLeaseIsAbsentAtReadTime(t *testing.T) {
	r, clock := newTestRegistry(30 * time.Second)

	r.Acquire("btn-1", "alice", models.LockTypeEditing)
	clock.Advance(31 * time.Second)

	if _, ok := r.Get("btn-1"); ok {
		t.Fatal("expired lease visible through Get")
	}
	if got := len(r.Snapshot()); got != 0 {
		t.Fatalf("snapshot has %d leases, want 0", got)
	}

	// And the slot is free for somebody else.
	if _, ok := r.Acquire("btn-1", "bob", models.LockTypeEditing); !ok {
		t.Fatal("acquire after expiry should succeed")
	}
}

func TestAtMostOneLiveLeasePerComponent(t *testing.T) {
	r, _ := newTestRegistry(30 * time.Second)

	users := []string{"alice", "bob", "carol", "alice", "dave"}
	for _, u := range users {
		r.Acquire("form-1", u, models.LockTypeEditing)
	}

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d leases for one component, want 1", len(snap))
	}
	if snap[0].UserID != "alice" {
		t.Fatalf("lease held by %q, want the first claimant alice", snap[0].UserID)
	}
}

func TestReleaseOnlyByHolder(t *testing.T) {
	r, _ := newTestRegistry(30 * time.Second)

	r.Acquire("btn-1", "alice", models.LockTypeEditing)
	if r.Release("btn-1", "bob") {
		t.Fatal("non-holder release should be refused")
	}
	if !r.Release("btn-1", "alice") {
		t.Fatal("holder release should succeed")
	}
	if r.Release("btn-1", "alice") {
		t.Fatal("second release should be a no-op")
	}
}

func TestReleaseAll(t *testing.T) {
	r, _ := newTestRegistry(30 * time.Second)

	r.Acquire("btn-1", "alice", models.LockTypeEditing)
	r.Acquire("hero-1", "alice", models.LockTypeMoving)
	r.Acquire("form-1", "bob", models.LockTypeEditing)

	released := r.ReleaseAll("alice")
	if len(released) != 2 || released[0] != "btn-1" || released[1] != "hero-1" {
		t.Fatalf("released = %v, want [btn-1 hero-1]", released)
	}
	if _, ok := r.Get("form-1"); !ok {
		t.Fatal("bob's lease should survive alice's ReleaseAll")
	}
}

func TestSweepEvictsOnlyExpired(t *testing.T) {
	r, clock := newTestRegistry(30 * time.Second)

	r.Acquire("old-1", "alice", models.LockTypeEditing)
	clock.Advance(20 * time.Second)
	r.Acquire("new-1", "bob", models.LockTypeEditing)
	clock.Advance(15 * time.Second) // old-1 at 35s, new-1 at 15s

	expired := r.Sweep()
	if len(expired) != 1 || expired[0].ComponentID != "old-1" {
		t.Fatalf("sweep returned %v, want just old-1", expired)
	}
	if _, ok := r.Get("new-1"); !ok {
		t.Fatal("live lease removed by sweep")
	}
}

func TestRemainingSecondsRoundsUp(t *testing.T) {
	r, clock := newTestRegistry(30 * time.Second)
	lock, _ := r.Acquire("btn-1", "alice", models.LockTypeEditing)

	cases := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 30},
		{500 * time.Millisecond, 30},
		{1 * time.Second, 29},
		{29*time.Second + 10*time.Millisecond, 1},
		{30 * time.Second, 0},
		{45 * time.Second, 0},
	}
	for _, tc := range cases {
		now := clock.Now().Add(tc.elapsed)
		if got := lock.RemainingSeconds(now); got != tc.want {
			t.Fatalf("after %v remaining = %d, want %d", tc.elapsed, got, tc.want)
		}
	}
}
