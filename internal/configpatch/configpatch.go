// Package configpatch reads and selectively mutates the host's on-disk JSON
// config, then requests a host restart. Grounded on tokenhub's
// internal/app/config.go for the getEnv*-driven defaults idiom; the
// temp-file-then-rename write discipline (internal/atomicstore) has no
// teacher precedent — tokenhub's internal/store is a database/sql-backed
// SQLite store with no file-rename or transaction shape to borrow from, so
// this is chainrouter's own design, required by spec.md §4.1 regardless.
// Patches are applied on a map[string]interface{} tree rather than a typed
// struct because spec.md §4.8 requires preserving unknown sibling keys the
// host may carry.
package configpatch

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/chainrouter/chainrouter/internal/atomicstore"
)

const restartTimeout = 15 * time.Second

// Patcher reads host config from path and writes it back atomically after
// mutating only the keys spec.md §4.8 allows.
type Patcher struct {
	path          string
	restartCmd    []string
	restartRunner func(ctx context.Context, name string, args ...string) error
}

// New creates a Patcher for the host config at path. restartCmd is the
// shell words of the host restart command (spec.md §6's `<host> gateway
// restart`, configurable).
func New(path string, restartCmd []string) *Patcher {
	return &Patcher{
		path:       path,
		restartCmd: restartCmd,
		restartRunner: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

func (p *Patcher) load() (map[string]interface{}, error) {
	var doc map[string]interface{}
	ok, err := atomicstore.ReadJSON(p.path, &doc)
	if err != nil {
		return nil, fmt.Errorf("configpatch: read %s: %w", p.path, err)
	}
	if !ok || doc == nil {
		doc = map[string]interface{}{}
	}
	return doc, nil
}

// getNestedMap returns (creating if absent) the nested map at the given dot
// path of keys, e.g. getNestedMap(doc, "agents", "defaults").
func getNestedMap(doc map[string]interface{}, keys ...string) map[string]interface{} {
	cur := doc
	for _, k := range keys {
		next, ok := cur[k].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			cur[k] = next
		}
		cur = next
	}
	return cur
}

// SetActiveModel sets agents.defaults.model.primary to modelID and ensures
// agents.defaults.models[modelID] exists (as an empty object if absent),
// preserving every other key in the document. It then writes the document
// atomically and invokes the host restart command (fire-and-forget, 15s
// timeout; the restart result is discarded, so a failed restart is neither
// returned nor logged and never rolls back the already-written config).
func (p *Patcher) SetActiveModel(ctx context.Context, modelID string) error {
	doc, err := p.load()
	if err != nil {
		return err
	}

	defaults := getNestedMap(doc, "agents", "defaults")
	model := getNestedMap(defaults, "model")
	model["primary"] = modelID

	models, ok := defaults["models"].(map[string]interface{})
	if !ok {
		models = map[string]interface{}{}
		defaults["models"] = models
	}
	if _, exists := models[modelID]; !exists {
		models[modelID] = map[string]interface{}{}
	}

	if err := atomicstore.WriteJSON(p.path, doc); err != nil {
		return fmt.Errorf("configpatch: write %s: %w", p.path, err)
	}

	p.restart(ctx)
	return nil
}

// InstallDefaults is the first-run path: it installs a model-alias table and
// sets the primary model to premiumModelID, without touching any other
// existing key. No-op (and does not restart) if agents.defaults.model.primary
// is already set — this is what makes plugin load idempotent across restarts.
func (p *Patcher) InstallDefaults(ctx context.Context, premiumModelID string, aliases map[string]string) error {
	doc, err := p.load()
	if err != nil {
		return err
	}

	defaults := getNestedMap(doc, "agents", "defaults")
	model := getNestedMap(defaults, "model")
	if primary, ok := model["primary"].(string); ok && primary != "" {
		return nil
	}
	model["primary"] = premiumModelID

	models, ok := defaults["models"].(map[string]interface{})
	if !ok {
		models = map[string]interface{}{}
		defaults["models"] = models
	}
	for modelID, alias := range aliases {
		entry, ok := models[modelID].(map[string]interface{})
		if !ok {
			entry = map[string]interface{}{}
		}
		if alias != "" {
			entry["alias"] = alias
		}
		models[modelID] = entry
	}
	if _, exists := models[premiumModelID]; !exists {
		models[premiumModelID] = map[string]interface{}{}
	}

	if err := atomicstore.WriteJSON(p.path, doc); err != nil {
		return fmt.Errorf("configpatch: write %s: %w", p.path, err)
	}

	p.restart(ctx)
	return nil
}

// CurrentPrimaryModel reads the current agents.defaults.model.primary
// without mutating anything — used by the switcher to capture originalModel
// before overwriting it.
func (p *Patcher) CurrentPrimaryModel() (string, error) {
	doc, err := p.load()
	if err != nil {
		return "", err
	}
	defaults, _ := doc["agents"].(map[string]interface{})
	if defaults == nil {
		return "", nil
	}
	d, _ := defaults["defaults"].(map[string]interface{})
	if d == nil {
		return "", nil
	}
	model, _ := d["model"].(map[string]interface{})
	if model == nil {
		return "", nil
	}
	primary, _ := model["primary"].(string)
	return primary, nil
}

// RestartHost invokes the host restart command without touching the config
// document, for callers (the session truncator) that need the host to
// reload state it owns outside agents.defaults.
func (p *Patcher) RestartHost(ctx context.Context) {
	p.restart(ctx)
}

// SetRestartRunner overrides how the restart command is invoked, so tests
// can assert it was called without spawning a real process.
func (p *Patcher) SetRestartRunner(r func(ctx context.Context, name string, args ...string) error) {
	p.restartRunner = r
}

// restart invokes the configured host restart command with a bounded
// timeout, discarding the result (spec.md §4.8: "fire-and-forget").
func (p *Patcher) restart(ctx context.Context) {
	if len(p.restartCmd) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, restartTimeout)
	defer cancel()
	_ = p.restartRunner(rctx, p.restartCmd[0], p.restartCmd[1:]...)
}
