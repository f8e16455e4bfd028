// Package usage scans a turn's assistant messages and sums tokens/cost newer
// than a "since" cutoff, attributing the result to a provider/model pair.
// Grounded on spec.md §4.4; the fixed field-name precedence list mirrors the
// "dynamic message shapes" handling idiom tokenhub uses for its multi-SDK
// provider adapters (internal/providers/*/adapter.go each normalize their own
// SDK's usage shape into one internal representation).
package usage

import (
	"fmt"
	"time"

	"github.com/chainrouter/chainrouter/internal/costtable"
	"github.com/chainrouter/chainrouter/internal/plugin"
)

// Result is newly-discovered usage to post to the ledger, or nil if nothing
// new was found.
type Result struct {
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// tokenPair is one of the three accepted (input, output) field-name pairs.
type tokenPair struct {
	in, out *int
}

// extractTokens returns the first qualifying (input, output) pair from u in
// the precedence order spec.md §4.4 names, or ok=false if none yields
// numbers.
func extractTokens(u *plugin.Usage) (in, out int, ok bool) {
	if u == nil {
		return 0, 0, false
	}
	pairs := []tokenPair{
		{u.InputTokens, u.OutputTokens},
		{u.PromptTokens, u.CompletionTokens},
		{u.Input, u.Output},
	}
	for _, p := range pairs {
		if p.in != nil && p.out != nil {
			return *p.in, *p.out, true
		}
	}
	return 0, 0, false
}

// Aggregate scans messages for qualifying assistant usage newer than since
// (if since is non-nil), sums tokens, resolves cost via costs, and resolves
// a model id by combining the first qualifying message's provider/model
// fields, falling back to fallbackModel. Returns nil if nothing new was
// found.
func Aggregate(messages []plugin.Message, costs *costtable.Table, fallbackModel string, since *time.Time) *Result {
	var (
		totalIn, totalOut int
		totalCost         float64
		resolvedModel     string
		found             bool
	)

	for _, m := range messages {
		if m.Role != "assistant" || m.Usage == nil {
			continue
		}
		if since != nil {
			if m.Timestamp == nil || !m.Timestamp.Time.After(*since) {
				continue
			}
		}
		in, out, ok := extractTokens(m.Usage)
		if !ok {
			continue
		}

		if resolvedModel == "" {
			resolvedModel = modelID(m)
		}

		totalIn += in
		totalOut += out

		isLocal := costtable.IsLocal(m.Provider) || costtable.IsLocal(m.Model) || costtable.IsLocal(resolvedModel)
		switch {
		case isLocal:
			// contributes 0
		case m.Usage.Cost != nil && m.Usage.Cost.Total > 0:
			totalCost += m.Usage.Cost.Total
		default:
			rate := costs.Resolve(resolvedModel)
			totalCost += (float64(in)/1000)*rate.InputPer1K + (float64(out)/1000)*rate.OutputPer1K
		}
		found = true
	}

	if !found {
		return nil
	}
	if resolvedModel == "" {
		resolvedModel = fallbackModel
	}
	return &Result{Model: resolvedModel, InputTokens: totalIn, OutputTokens: totalOut, Cost: totalCost}
}

// modelID combines a message's provider and model fields into
// "<provider>/<model>", or just the bare model if provider is absent.
func modelID(m plugin.Message) string {
	if m.Provider != "" && m.Model != "" {
		return fmt.Sprintf("%s/%s", m.Provider, m.Model)
	}
	return m.Model
}
