// Package registry loads and queries the provider chain: the ordered list of
// LLM providers the decision engine tries as earlier ones are exhausted.
// It is grounded on tokenhub's internal/router.Engine's model table
// (RegisterModel/ListModels over a Model{ID, ProviderID, Weight, Enabled}
// shape), collapsed from an in-memory registration API into a single
// declarative, JSON-loaded chain per spec.md's resolution of the "several
// chain defaults" open question.
package registry

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/chainrouter/chainrouter/internal/atomicstore"
)

// Task identifies the kind of work a turn is doing, used to pick a
// task-appropriate model from a provider's model set.
type Task string

const (
	TaskGeneral Task = "general"
	TaskCoding  Task = "coding"
	TaskVision  Task = "vision"
)

// Provider is a declared chain entry. Fields are immutable at runtime once
// loaded and env-overridden; the registry never mutates the on-disk document
// in response to an override.
type Provider struct {
	ID          string            `json:"id"`
	Priority    int               `json:"priority"`
	Enabled     bool              `json:"enabled"`
	MaxDailyUSD float64           `json:"maxDailyUsd"`
	Models      map[string]string `json:"models"`
}

// ModelFor resolves the model to use for a task, falling back to the
// provider's default model when the task has no specific entry.
func (p Provider) ModelFor(task Task) string {
	if m, ok := p.Models[string(task)]; ok && m != "" {
		return m
	}
	return p.Models["default"]
}

// Free reports whether the provider can never be exhausted (maxDailyUsd==0).
func (p Provider) Free() bool {
	return p.MaxDailyUSD == 0
}

// chainDoc is the on-disk shape of data/provider-chain.json.
type chainDoc struct {
	Providers []Provider `json:"providers"`
}

// Registry answers ordering and availability questions about the provider
// chain. It holds the env-overridden view; overrides are applied in memory
// only and are never written back to disk.
type Registry struct {
	path      string
	providers []Provider // sorted by priority asc, ties by id asc
}

// Load reads data/provider-chain.json at path, creating a minimal built-in
// default if absent, then applies environment overrides (never persisted).
func Load(path string) (*Registry, error) {
	var doc chainDoc
	ok, err := atomicstore.ReadJSON(path, &doc)
	if err != nil {
		return nil, err
	}
	if !ok || len(doc.Providers) == 0 {
		doc = chainDoc{Providers: defaultChain()}
		if err := atomicstore.WriteJSON(path, doc); err != nil {
			return nil, err
		}
	}

	providers := make([]Provider, len(doc.Providers))
	copy(providers, doc.Providers)
	applyEnvOverrides(providers)

	sort.SliceStable(providers, func(i, j int) bool {
		if providers[i].Priority != providers[j].Priority {
			return providers[i].Priority < providers[j].Priority
		}
		return providers[i].ID < providers[j].ID
	})

	return &Registry{path: path, providers: providers}, nil
}

// defaultChain is the minimal, entirely data-driven built-in chain: one
// premium cloud provider, one cheap cloud provider, one free local provider.
func defaultChain() []Provider {
	return []Provider{
		{
			ID: "anthropic", Priority: 1, Enabled: true, MaxDailyUSD: 5.0,
			Models: map[string]string{
				"default": "claude-sonnet-4-20250514",
				"coding":  "claude-sonnet-4-20250514",
				"vision":  "claude-sonnet-4-20250514",
			},
		},
		{
			ID: "deepseek", Priority: 2, Enabled: true, MaxDailyUSD: 1.0,
			Models: map[string]string{
				"default": "deepseek-chat",
				"coding":  "deepseek-chat",
			},
		},
		{
			ID: "ollama", Priority: 3, Enabled: true, MaxDailyUSD: 0,
			Models: map[string]string{
				"default": "qwen3:8b",
				"coding":  "qwen3-coder:30b",
				"vision":  "qwen3-vl:8b",
			},
		},
	}
}

// applyEnvOverrides mutates providers in place per spec.md §4.2: for each
// provider id, uppercase it and replace hyphens with underscores to form
// <ID>_DAILY_BUDGET_USD and <ID>_ENABLED.
func applyEnvOverrides(providers []Provider) {
	for i := range providers {
		envID := strings.ReplaceAll(strings.ToUpper(providers[i].ID), "-", "_")

		if v := os.Getenv(envID + "_DAILY_BUDGET_USD"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				providers[i].MaxDailyUSD = f
			}
		}
		if v := os.Getenv(envID + "_ENABLED"); v != "" {
			switch strings.ToLower(v) {
			case "true":
				providers[i].Enabled = true
			case "false":
				providers[i].Enabled = false
			}
		}
	}
}

// Enabled returns enabled providers ordered by priority ascending, ties
// broken by id lexicographically.
func (r *Registry) Enabled() []Provider {
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Get returns the provider with the given id, or false if unknown.
func (r *Registry) Get(id string) (Provider, bool) {
	for _, p := range r.providers {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}

// NextAfter returns the first enabled provider with priority greater than
// current's whose id is not in exhausted, or false if none remain. A
// provider with MaxDailyUSD==0 is always eligible since it can never be
// exhausted.
func (r *Registry) NextAfter(currentID string, exhausted map[string]bool) (Provider, bool) {
	current, ok := r.Get(currentID)
	if !ok {
		return r.FirstAvailable(exhausted)
	}
	for _, p := range r.Enabled() {
		if p.Priority <= current.Priority {
			continue
		}
		if p.Free() || !exhausted[p.ID] {
			return p, true
		}
	}
	return Provider{}, false
}

// FirstAvailable returns the first enabled, non-exhausted provider.
func (r *Registry) FirstAvailable(exhausted map[string]bool) (Provider, bool) {
	for _, p := range r.Enabled() {
		if p.Free() || !exhausted[p.ID] {
			return p, true
		}
	}
	return Provider{}, false
}
