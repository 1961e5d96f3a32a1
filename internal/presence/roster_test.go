package presence

import (
	"testing"
	"time"

	"builder-collab/internal/models"
)

func newTestRoster() (*Roster, *time.Time) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	r := NewRoster(60*time.Second, 5*time.Minute)
	r.clock = func() time.Time { return now }
	return r, &now
}

func TestStatusDerivation(t *testing.T) {
	r, now := newTestRoster()
	r.Join(models.CollaborationUser{ID: "u1", Name: "Alice", Permissions: models.PermissionEdit})

	cases := []struct {
		elapsed time.Duration
		want    models.UserStatus
	}{
		{0, models.StatusActive},
		{59 * time.Second, models.StatusActive},
		{60 * time.Second, models.StatusIdle},
		{4 * time.Minute, models.StatusIdle},
		{5 * time.Minute, models.StatusOffline},
	}

	joined := *now
	for _, tc := range cases {
		*now = joined.Add(tc.elapsed)
		u, ok := r.Get("u1")
		if !ok {
			t.Fatalf("user missing after %v", tc.elapsed)
		}
		if u.Status != tc.want {
			t.Fatalf("after %v status = %q, want %q", tc.elapsed, u.Status, tc.want)
		}
	}
}

func TestHeartbeatResetsIdle(t *testing.T) {
	r, now := newTestRoster()
	r.Join(models.CollaborationUser{ID: "u1", Name: "Alice"})

	*now = now.Add(2 * time.Minute)
	r.Heartbeat("u1")
	u, _ := r.Get("u1")
	if u.Status != models.StatusActive {
		t.Fatalf("status after heartbeat = %q, want active", u.Status)
	}
}

func TestSnapshotSortedByName(t *testing.T) {
	r, _ := newTestRoster()
	r.Join(models.CollaborationUser{ID: "u2", Name: "Bob"})
	r.Join(models.CollaborationUser{ID: "u1", Name: "Alice"})
	r.Join(models.CollaborationUser{ID: "u3", Name: "Carol"})

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot len = %d, want 3", len(snap))
	}
	for i, want := range []string{"Alice", "Bob", "Carol"} {
		if snap[i].Name != want {
			t.Fatalf("snapshot[%d] = %q, want %q", i, snap[i].Name, want)
		}
	}
}

func TestRejoinOverwrites(t *testing.T) {
	r, _ := newTestRoster()
	r.Join(models.CollaborationUser{ID: "u1", Name: "Alice", Color: "#ff0000"})
	r.Join(models.CollaborationUser{ID: "u1", Name: "Alice", Color: "#00ff00"})

	if r.Len() != 1 {
		t.Fatalf("roster len = %d, want 1", r.Len())
	}
	u, _ := r.Get("u1")
	if u.Color != "#00ff00" {
		t.Fatalf("color = %q, want the rejoin value", u.Color)
	}
}

func TestPruneRemovesOnlyOffline(t *testing.T) {
	r, now := newTestRoster()
	r.Join(models.CollaborationUser{ID: "stale", Name: "Stale"})

	*now = now.Add(3 * time.Minute)
	r.Join(models.CollaborationUser{ID: "fresh", Name: "Fresh"})

	*now = now.Add(2 * time.Minute) // stale at 5m, fresh at 2m
	gone := r.Prune()
	if len(gone) != 1 || gone[0] != "stale" {
		t.Fatalf("pruned = %v, want [stale]", gone)
	}
	if _, ok := r.Get("fresh"); !ok {
		t.Fatal("fresh user pruned")
	}
	if r.Leave("stale") {
		t.Fatal("stale user still present after prune")
	}
}
