// Package switcher persists "are we currently on fallback?" state so host
// restarts driven by a provider switch do not cause a restart loop, and
// drives the new-day restore path. Grounded on tokenhub's internal/health
// state-machine shape (explicit named states plus a recorded transition
// time) collapsed to spec.md §4.9's two-mode model.
package switcher

import (
	"context"
	"time"

	"github.com/chainrouter/chainrouter/internal/atomicstore"
	"github.com/chainrouter/chainrouter/internal/configpatch"
)

// Mode is the switcher's current mode.
type Mode string

const (
	ModeCloud Mode = "cloud"
	ModeLocal Mode = "local"
)

// State is the on-disk switcher-state document (spec.md §3). It is present
// iff Mode == ModeLocal; RestoreIfHealthy deletes it entirely rather than
// resetting it to ModeCloud.
type State struct {
	Mode            Mode      `json:"mode"`
	OriginalModel   string    `json:"originalModel"`
	SwitchedAt      time.Time `json:"switchedAt"`
	SwitchedModelID string    `json:"switchedModelId"`
}

// Switcher owns the switcher-state file and the host config patcher needed
// to restore the original model on recovery.
type Switcher struct {
	path       string
	patcher    *configpatch.Patcher
	passphrase string
}

// Option configures optional Switcher behavior.
type Option func(*Switcher)

// WithEncryption makes switcher state read and written as an AES-256-GCM
// envelope under passphrase instead of plaintext JSON — see
// ledger.WithEncryption for the same rationale (switcher state reveals which
// model an operator's routing has fallen back to).
func WithEncryption(passphrase string) Option {
	return func(s *Switcher) {
		s.passphrase = passphrase
	}
}

// New creates a Switcher backed by path, using patcher to read/write the
// host config on switch and restore.
func New(path string, patcher *configpatch.Patcher, opts ...Option) *Switcher {
	s := &Switcher{path: path, patcher: patcher}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the current switcher state, or (nil, false) if absent
// (meaning we are in normal/cloud operation).
func (s *Switcher) Load() (*State, bool, error) {
	var st State
	ok, err := s.read(&st)
	if err != nil || !ok {
		return nil, false, err
	}
	return &st, true, nil
}

func (s *Switcher) save(st State) error {
	if s.passphrase != "" {
		return atomicstore.WriteJSONEncrypted(s.path, s.passphrase, st)
	}
	return atomicstore.WriteJSON(s.path, st)
}

func (s *Switcher) read(v interface{}) (bool, error) {
	if s.passphrase != "" {
		return atomicstore.ReadJSONEncrypted(s.path, s.passphrase, v)
	}
	return atomicstore.ReadJSON(s.path, v)
}

// delete removes the switcher-state file entirely, per spec.md §4.9
// ("switcher state is deleted, not reset, when cloud is restored").
func (s *Switcher) delete() error {
	return atomicstore.Delete(s.path)
}

// SwitchToLocal records originalModel (captured by the caller from the host
// config *before* the new model was written) and marks mode=local. Calling
// this while already in local mode is a no-op: no file write, no restart —
// spec.md §8's "idempotent double-switch" property.
func (s *Switcher) SwitchToLocal(originalModel, switchedModelID string, now time.Time) error {
	existing, ok, err := s.Load()
	if err != nil {
		return err
	}
	if ok && existing.Mode == ModeLocal {
		return nil
	}
	return s.save(State{
		Mode:            ModeLocal,
		OriginalModel:   originalModel,
		SwitchedAt:      now,
		SwitchedModelID: switchedModelID,
	})
}

// RestoreResult reports what RestoreIfHealthy did, for logging at the call
// site.
type RestoreResult struct {
	Restored bool
	Reason   string
}

// RestoreIfHealthy implements spec.md §4.9's plugin-load logic: if we are in
// local mode and the current day's budget is healthy (budgetHealthy==true,
// as determined by the caller from a fresh ledger load), restore the
// original model to host config, delete switcher-state, and trigger a
// restart. If still exhausted, do nothing — we are already on fallback and
// restarting would only loop. If there is no switcher-state, this is a
// no-op.
func (s *Switcher) RestoreIfHealthy(ctx context.Context, budgetHealthy bool) (RestoreResult, error) {
	st, ok, err := s.Load()
	if err != nil {
		return RestoreResult{}, err
	}
	if !ok || st.Mode != ModeLocal {
		return RestoreResult{Reason: "not_in_local_mode"}, nil
	}
	if !budgetHealthy {
		return RestoreResult{Reason: "still_exhausted"}, nil
	}

	if err := s.patcher.SetActiveModel(ctx, st.OriginalModel); err != nil {
		return RestoreResult{}, err
	}
	if err := s.delete(); err != nil {
		return RestoreResult{}, err
	}
	return RestoreResult{Restored: true, Reason: "day_rollover_restore"}, nil
}

// IsLocal reports whether the switcher is currently in local/fallback mode.
func (s *Switcher) IsLocal() (bool, error) {
	st, ok, err := s.Load()
	if err != nil || !ok {
		return false, err
	}
	return st.Mode == ModeLocal, nil
}
