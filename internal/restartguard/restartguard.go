// Package restartguard prevents the plugin from invoking the host restart
// command more than once within a cooldown window. Adapted from tokenhub's
// internal/circuitbreaker.Breaker (state + threshold + cooldown + mutex
// shape), collapsed from its three-state Closed/Open/HalfOpen model to a
// two-state Ready/Cooling gate: a restart has no "failure" signal of its own
// to trip on, only a rate to bound, per spec.md §5's "a switch in-flight
// must not be initiated again until the host has restarted."
package restartguard

import (
	"sync"
	"time"
)

// State is the guard's current gate state.
type State int

const (
	// Ready means the next restart request is allowed through.
	Ready State = iota
	// Cooling means a restart was recently invoked; further requests are
	// rejected until the cooldown elapses.
	Cooling
)

func (s State) String() string {
	if s == Cooling {
		return "cooling"
	}
	return "ready"
}

const defaultCooldown = 20 * time.Second

// Guard is a goroutine-safe restart-rate gate.
type Guard struct {
	mu          sync.Mutex
	state       State
	cooldown    time.Duration
	lastRestart time.Time
	nowFunc     func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithCooldown overrides the default 20-second cooldown between restarts.
func WithCooldown(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.cooldown = d
		}
	}
}

// New creates a Guard in the Ready state.
func New(opts ...Option) *Guard {
	g := &Guard{state: Ready, cooldown: defaultCooldown, nowFunc: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Allow reports whether a restart may be invoked now. It does not itself
// record a restart — call RecordRestart once the restart command has
// actually been invoked.
func (g *Guard) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case Ready:
		return true
	case Cooling:
		if g.nowFunc().After(g.lastRestart.Add(g.cooldown)) {
			g.state = Ready
			return true
		}
		return false
	default:
		return false
	}
}

// RecordRestart marks a restart as having just been invoked, entering the
// Cooling state until the cooldown elapses.
func (g *Guard) RecordRestart() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = Cooling
	g.lastRestart = g.nowFunc()
}

// CurrentState returns the guard's state without checking whether the
// cooldown has elapsed (use Allow for that).
func (g *Guard) CurrentState() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
