package client

import (
	"testing"
	"time"

	"builder-collab/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func TestSelectionIsLockTransactional(t *testing.T) {
	ch := newFakeChannel()
	co := NewCoordinator(ch, time.Hour)
	defer co.Close()

	co.SelectComponent("btn-1")
	co.SelectComponent("hero-1")

	ops := ch.snapshotOps()
	want := []op{
		{kind: "lock", componentID: "btn-1", lockType: models.LockTypeEditing},
		{kind: "unlock", componentID: "btn-1"},
		{kind: "lock", componentID: "hero-1", lockType: models.LockTypeEditing},
	}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("ops[%d] = %v, want %v (unlock must precede the next lock)", i, ops[i], want[i])
		}
	}
}

func TestSelectingForeignLockedComponentDoesNotLock(t *testing.T) {
	ch := newFakeChannel()
	ch.foreign["hero-1"] = true
	co := NewCoordinator(ch, time.Hour)
	defer co.Close()

	co.SelectComponent("btn-1")
	co.SelectComponent("hero-1")

	for _, o := range ch.snapshotOps() {
		if o.kind == "lock" && o.componentID == "hero-1" {
			t.Fatalf("locked a foreign-locked component: %v", o)
		}
	}
	if co.SelectedComponent() != "hero-1" {
		t.Fatal("selection itself should still move to the foreign-locked component")
	}
	// But the previous lease was released regardless.
	if got := ch.countUnlocks("btn-1"); got != 1 {
		t.Fatalf("unlock count for btn-1 = %d, want 1", got)
	}
}

func TestClearingSelectionReleases(t *testing.T) {
	ch := newFakeChannel()
	co := NewCoordinator(ch, time.Hour)
	defer co.Close()

	co.SelectComponent("btn-1")
	co.SelectComponent("")

	if got := ch.countUnlocks("btn-1"); got != 1 {
		t.Fatalf("unlock count = %d, want 1", got)
	}
	ops := ch.snapshotOps()
	if ops[len(ops)-1].kind != "unlock" {
		t.Fatalf("last op = %v, want unlock", ops[len(ops)-1])
	}
}

func TestDragAndResizeUpgradeLockType(t *testing.T) {
	ch := newFakeChannel()
	co := NewCoordinator(ch, time.Hour)
	defer co.Close()

	co.SelectComponent("btn-1")
	co.ComponentDragStarted("btn-1")
	co.ComponentResizeStarted("btn-1")

	ops := ch.snapshotOps()
	if len(ops) != 3 {
		t.Fatalf("ops = %v, want select lock + two upgrades", ops)
	}
	if ops[1].lockType != models.LockTypeMoving || ops[2].lockType != models.LockTypeResizing {
		t.Fatalf("upgrade types = %q, %q", ops[1].lockType, ops[2].lockType)
	}
}

func TestUpgradeSkippedWhenNotSelectedOrForeign(t *testing.T) {
	ch := newFakeChannel()
	co := NewCoordinator(ch, time.Hour)
	defer co.Close()

	co.SelectComponent("btn-1")
	before := len(ch.snapshotOps())

	co.ComponentDragStarted("hero-1") // not the selection

	ch.mu.Lock()
	ch.foreign["btn-1"] = true
	ch.mu.Unlock()
	co.ComponentDragStarted("btn-1") // foreign lock appeared mid-drag

	if got := len(ch.snapshotOps()); got != before {
		t.Fatalf("ops grew from %d to %d, upgrades should have been skipped", before, got)
	}
}

func TestDisablingLockingReleasesImmediately(t *testing.T) {
	ch := newFakeChannel()
	co := NewCoordinator(ch, time.Hour)
	defer co.Close()

	co.SelectComponent("btn-1")
	co.UpdateSyncPreferences(models.PreferencesPatch{EnableComponentLocking: boolPtr(false)})

	if got := ch.countUnlocks("btn-1"); got != 1 {
		t.Fatalf("unlock count = %d, want 1 (disable is a cleanup transition)", got)
	}
	if ch.Preferences().EnableComponentLocking {
		t.Fatal("preference did not propagate to the channel")
	}

	// With locking off, new selections take no leases.
	co.SelectComponent("hero-1")
	for _, o := range ch.snapshotOps() {
		if o.kind == "lock" && o.componentID == "hero-1" {
			t.Fatal("selection locked while locking is disabled")
		}
	}

	// Re-enabling restores normal behavior.
	co.UpdateSyncPreferences(models.PreferencesPatch{EnableComponentLocking: boolPtr(true)})
	co.SelectComponent("form-1")
	found := false
	for _, o := range ch.snapshotOps() {
		if o.kind == "lock" && o.componentID == "form-1" {
			found = true
		}
	}
	if !found {
		t.Fatal("selection after re-enable did not lock")
	}
}

func TestBlockedDuringTransitionalStates(t *testing.T) {
	cases := []struct {
		status ConnectionStatus
		want   bool
	}{
		{StatusConnected, false},
		{StatusDisconnected, false},
		{StatusConnecting, true},
		{StatusReconnecting, true},
		{StatusError, true},
	}
	for _, tc := range cases {
		ch := newFakeChannel()
		ch.status = tc.status
		co := NewCoordinator(ch, time.Hour)
		if got := co.Blocked(); got != tc.want {
			t.Fatalf("Blocked() with status %q = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestDegradedOnlyForNonRecoverableErrors(t *testing.T) {
	ch := newFakeChannel()
	co := NewCoordinator(ch, time.Hour)

	if co.Degraded() != nil {
		t.Fatal("no error should mean not degraded")
	}

	ch.err = &ChannelError{Code: "reconnect_failed", Message: "dial tcp", Recoverable: true}
	if co.Degraded() != nil {
		t.Fatal("recoverable errors should not surface as degraded")
	}

	ch.err = &ChannelError{Code: "forbidden", Message: "page archived", Recoverable: false}
	if co.Degraded() == nil {
		t.Fatal("non-recoverable error should surface as degraded")
	}
}
