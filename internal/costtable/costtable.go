// Package costtable resolves a model identifier to a per-1K-token input/
// output rate, and recognises locally-hosted model families that are always
// free regardless of what a provider reports. Grounded on tokenhub's
// internal/router.Model's InputPer1K/OutputPer1K fields (the same $/1K-token
// unit), collapsed from a per-registered-model struct field into a builtin
// lookup table keyed on both bare and provider-prefixed model names per
// spec.md §4.3.
package costtable

import "strings"

// Rate is a per-1K-token price pair, both fields >= 0.
type Rate struct {
	InputPer1K  float64
	OutputPer1K float64
}

// localFamilies are model-name substrings that identify a locally-hosted,
// always-free model regardless of provider-reported pricing.
var localFamilies = []string{
	"qwen", "llama", "mistral", "phi", "gemma", "vicuna", "orca",
	"neural-chat", "starling", "openchat", "zephyr", "dolphin",
	"nous-hermes", "yi",
}

// builtinRates is the fallback pricing table, keyed on both the bare model
// name and the provider-prefixed form so lookups never need to guess which
// form the caller has.
var builtinRates = map[string]Rate{
	"claude-opus-4-6":              {InputPer1K: 0.015, OutputPer1K: 0.075},
	"anthropic/claude-opus-4-6":    {InputPer1K: 0.015, OutputPer1K: 0.075},
	"claude-sonnet-4-20250514":     {InputPer1K: 0.003, OutputPer1K: 0.015},
	"anthropic/claude-sonnet-4-20250514": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-sonnet-4-5-20250929":   {InputPer1K: 0.003, OutputPer1K: 0.015},
	"anthropic/claude-sonnet-4-5-20250929": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"gpt-4o":                       {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"openai/gpt-4o":                {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini":                  {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"openai/gpt-4o-mini":           {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"deepseek-chat":                {InputPer1K: 0.00014, OutputPer1K: 0.00028},
	"deepseek/deepseek-chat":       {InputPer1K: 0.00014, OutputPer1K: 0.00028},
	"deepseek-r1":                  {InputPer1K: 0.00055, OutputPer1K: 0.00219},
	"deepseek/deepseek-r1":         {InputPer1K: 0.00055, OutputPer1K: 0.00219},
	"kimi-k2.5":                    {InputPer1K: 0.0006, OutputPer1K: 0.002},
	"moonshot/kimi-k2.5":           {InputPer1K: 0.0006, OutputPer1K: 0.002},
}

// Table resolves model ids to rates. Create one with New, which seeds it
// with the built-in table; a zero-value Table has no rates map.
type Table struct {
	rates map[string]Rate
}

// New returns a Table seeded with the built-in fallback rates.
func New() *Table {
	t := &Table{rates: make(map[string]Rate, len(builtinRates))}
	for k, v := range builtinRates {
		t.rates[k] = v
	}
	return t
}

// Set registers or overrides a rate for an exact model id (bare or
// provider-prefixed — callers are expected to set both forms if they want
// both lookup paths to hit).
func (t *Table) Set(modelID string, r Rate) {
	t.rates[modelID] = r
}

// IsLocal reports whether modelID should always be treated as free: an
// "ollama/" prefix, or a name matching one of the recognised local model
// families.
func IsLocal(modelID string) bool {
	lower := strings.ToLower(modelID)
	if strings.HasPrefix(lower, "ollama/") {
		return true
	}
	for _, family := range localFamilies {
		if strings.Contains(lower, family) {
			return true
		}
	}
	return false
}

// Resolve returns the rate for modelID. Local models are always free. Unknown
// models resolve to a zero rate — a deliberate safer-failure choice that
// undercounts rather than overcounts (spec.md §7, error kind 5).
func (t *Table) Resolve(modelID string) Rate {
	if IsLocal(modelID) {
		return Rate{}
	}
	if r, ok := t.rates[modelID]; ok {
		return r
	}
	return Rate{}
}
