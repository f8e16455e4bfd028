package restartguard

import (
	"testing"
	"time"
)

func newTestGuard(cooldown time.Duration) (*Guard, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	g := New(WithCooldown(cooldown))
	g.nowFunc = clock.Now
	return g, clock
}

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func TestAllowTrueWhenReady(t *testing.T) {
	g, _ := newTestGuard(time.Second)
	if !g.Allow() {
		t.Fatal("expected a fresh guard to allow a restart")
	}
}

func TestRecordRestartEntersCooling(t *testing.T) {
	g, _ := newTestGuard(time.Minute)
	g.RecordRestart()
	if g.CurrentState() != Cooling {
		t.Fatalf("expected Cooling, got %s", g.CurrentState())
	}
	if g.Allow() {
		t.Fatal("expected restart to be blocked immediately after a recorded restart")
	}
}

func TestAllowTrueAfterCooldownElapses(t *testing.T) {
	g, clock := newTestGuard(10 * time.Second)
	g.RecordRestart()
	if g.Allow() {
		t.Fatal("expected restart to be blocked before cooldown elapses")
	}
	clock.Advance(11 * time.Second)
	if !g.Allow() {
		t.Fatal("expected restart to be allowed once cooldown has elapsed")
	}
	if g.CurrentState() != Ready {
		t.Fatalf("expected state to transition back to Ready, got %s", g.CurrentState())
	}
}

func TestRepeatedRestartsWithinCooldownStayBlocked(t *testing.T) {
	g, clock := newTestGuard(time.Minute)
	g.RecordRestart()
	clock.Advance(5 * time.Second)
	if g.Allow() {
		t.Fatal("expected restart to remain blocked mid-cooldown")
	}
	clock.Advance(10 * time.Second)
	if g.Allow() {
		t.Fatal("expected restart to still be blocked at 15s of a 60s cooldown")
	}
}

func TestStateStringValues(t *testing.T) {
	if Ready.String() != "ready" {
		t.Errorf("expected Ready.String() == %q, got %q", "ready", Ready.String())
	}
	if Cooling.String() != "cooling" {
		t.Errorf("expected Cooling.String() == %q, got %q", "cooling", Cooling.String())
	}
}
