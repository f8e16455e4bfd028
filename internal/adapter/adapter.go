// Package adapter binds the decision engine and every stateful component to
// the host's before_agent_start/agent_end hooks (spec.md §4.11). It lives
// outside internal/plugin because internal/decision and internal/usage both
// depend on internal/plugin's wire types, so the binding layer that imports
// all three must sit one level further out. Grounded on tokenhub's
// internal/app.Server hook-registration idiom (one struct holding every
// collaborator, methods bound as handlers) but for a plugin's two hooks
// instead of HTTP routes. Error handling follows spec.md §4.11/§7's "catch
// and log everything, never propagate to the host" rule: every method here
// returns (nil, nil) on internal failure rather than surfacing an error.
package adapter

import (
	"context"
	"time"

	"github.com/chainrouter/chainrouter/internal/configpatch"
	"github.com/chainrouter/chainrouter/internal/costtable"
	"github.com/chainrouter/chainrouter/internal/decision"
	"github.com/chainrouter/chainrouter/internal/events"
	"github.com/chainrouter/chainrouter/internal/failure"
	"github.com/chainrouter/chainrouter/internal/ledger"
	"github.com/chainrouter/chainrouter/internal/metrics"
	"github.com/chainrouter/chainrouter/internal/plugin"
	"github.com/chainrouter/chainrouter/internal/probe"
	"github.com/chainrouter/chainrouter/internal/registry"
	"github.com/chainrouter/chainrouter/internal/restartguard"
	"github.com/chainrouter/chainrouter/internal/switcher"
	"github.com/chainrouter/chainrouter/internal/truncate"
	"github.com/chainrouter/chainrouter/internal/usage"
)

// Settings is the subset of config.Config the adapter needs to act, kept
// independent of internal/config so this package stays free of an opinion
// on how values were sourced — cmd/chainrouter-plugin maps a config.Config
// onto this struct once at startup.
type Settings struct {
	FailureThreshold         int
	AutoModelRoutingOn       bool
	OllamaURL                string
	SessionLogPath           func() string
	ContextTruncationEnabled bool
	ContextMaxTokens         int
	ContextKeepRecent        int
	LocalModelFor            func(task string) string
}

// Adapter owns every stateful component and exposes HookHandler-compatible
// methods for the two hooks chainrouter consumes.
type Adapter struct {
	Registry *registry.Registry
	Ledger   *ledger.Ledger
	Failure  *failure.Tracker
	Switcher *switcher.Switcher
	Patcher  *configpatch.Patcher
	Prober   *probe.Prober
	Restart  *restartguard.Guard
	Costs    *costtable.Table
	Bus      *events.Bus
	Metrics  *metrics.Registry
	Logger   plugin.Logger
	Settings Settings
}

// OnBeforeAgentStart implements plugin.HookHandler for
// plugin.HookBeforeAgentStart: it consults the decision engine and returns
// an advisory injection string. It never mutates state.
func (a *Adapter) OnBeforeAgentStart(turn plugin.Turn) (*plugin.PreTurnResult, error) {
	d, err := decision.Decide(a.Ledger, a.Registry, a.Failure, a.Settings.FailureThreshold, turn.Prompt, turn.Messages)
	if err != nil {
		a.logError("pre-turn decide failed", err)
		return nil, nil
	}
	a.recordDecisionMetric(d.Action)
	a.Logger.Info("pre-turn decision", "action", string(d.Action), "provider", d.Provider, "task", string(d.Task))

	if d.Action != decision.ActionAllow {
		// A switch is due but before_agent_start never performs it — the
		// switch happens at agent_end once this turn's usage has been
		// recorded. No injection here avoids advising a tier we have not
		// actually switched to yet.
		return &plugin.PreTurnResult{}, nil
	}

	complexity := decision.ClassifyComplexity(turn.Prompt, turn.Messages)
	estimated := decision.EstimateContextTokens(turn.Prompt, turn.Messages)
	premiumID := ""
	if premium, ok := a.Registry.FirstAvailable(map[string]bool{}); ok {
		premiumID = premium.ID
	}
	injection := decision.Injection(d.Provider, premiumID, complexity, a.Settings.AutoModelRoutingOn, estimated)
	return &plugin.PreTurnResult{PrependContext: injection}, nil
}

// OnAgentEnd implements plugin.HookHandler for plugin.HookAgentEnd:
// classify the turn, record usage, re-consult the decision engine, and act
// on a switch or truncation if one is due. Every step is independently
// guarded so a failure partway through still lets later steps run.
func (a *Adapter) OnAgentEnd(turn plugin.Turn) (*plugin.PreTurnResult, error) {
	ctx := context.Background()

	activeProvider, err := a.Ledger.ActiveProvider()
	if err != nil {
		a.logError("agent-end: read active provider failed", err)
		activeProvider = ""
	}

	if failure.Classify(turn) {
		if _, err := a.Failure.RecordFailure(activeProvider); err != nil {
			a.logError("agent-end: record failure failed", err)
		}
	} else if err := a.Failure.RecordSuccess(activeProvider); err != nil {
		a.logError("agent-end: record success failed", err)
	}
	a.recordFailureMetric(activeProvider)

	a.recordUsage(activeProvider, turn)

	d, err := decision.Decide(a.Ledger, a.Registry, a.Failure, a.Settings.FailureThreshold, turn.Prompt, turn.Messages)
	if err != nil {
		a.logError("agent-end: decide failed", err)
		a.maybeTruncate(ctx)
		return nil, nil
	}
	a.recordDecisionMetric(d.Action)

	switch d.Action {
	case decision.ActionSwitchProvider:
		a.applySwitch(ctx, activeProvider, d)
	case decision.ActionAllExhausted:
		a.applyLocalFallback(ctx, activeProvider, turn)
	}

	a.maybeTruncate(ctx)

	return nil, nil
}

// recordUsage aggregates this turn's new usage (since the last recorded
// transaction) and posts it to the ledger.
func (a *Adapter) recordUsage(activeProvider string, turn plugin.Turn) {
	since, err := a.Ledger.LastTransactionTimestamp()
	if err != nil {
		a.logError("agent-end: read last transaction timestamp failed", err)
		since = nil
	}
	fallbackModel := turn.Model
	if fallbackModel == "" {
		if p, ok := a.Registry.Get(activeProvider); ok {
			fallbackModel = p.ModelFor(registry.TaskGeneral)
		}
	}
	result := usage.Aggregate(turn.Messages, a.Costs, fallbackModel, since)
	if result == nil {
		return
	}
	if err := a.Ledger.RecordTransaction(activeProvider, result.Model, result.InputTokens, result.OutputTokens, result.Cost); err != nil {
		a.logError("agent-end: record transaction failed", err)
		return
	}
	if a.Metrics != nil {
		if doc, err := a.Ledger.Load(); err == nil {
			if row, ok := doc.Providers[activeProvider]; ok {
				a.Metrics.LedgerSpentUSD.WithLabelValues(activeProvider).Set(row.SpentUSD)
			}
			exhausted, _ := a.Ledger.Exhausted(activeProvider)
			a.Metrics.LedgerExhausted.WithLabelValues(activeProvider).Set(boolToFloat(exhausted))
		}
	}
	if a.Bus != nil {
		a.Bus.Publish(events.Event{
			Type: events.EventTransactionRecorded, ProviderID: activeProvider,
			ModelID: result.Model, CostUSD: result.Cost,
		})
	}
}

// applySwitch moves the chain pointer to d.Provider and reconfigures the
// host, subject to the restart guard.
func (a *Adapter) applySwitch(ctx context.Context, from string, d decision.Decision) {
	if !a.Restart.Allow() {
		a.Logger.Warn("switch suppressed by restart guard", "from", from, "to", d.Provider)
		return
	}
	if err := a.Ledger.RecordSwitch(from, d.Provider, d.Reason); err != nil {
		a.logError("agent-end: record switch failed", err)
		return
	}
	if err := a.Patcher.SetActiveModel(ctx, d.Model); err != nil {
		a.logError("agent-end: set active model failed", err)
		return
	}
	a.Restart.RecordRestart()
	if a.Metrics != nil {
		a.Metrics.SwitchTotal.WithLabelValues(d.Reason).Inc()
	}
	if a.Bus != nil {
		a.Bus.Publish(events.Event{Type: events.EventSwitch, From: from, To: d.Provider, Reason: d.Reason})
		a.Bus.Publish(events.Event{Type: events.EventRestartInvoked, Reason: "provider_switch"})
	}
	a.Logger.Info("switched provider", "from", from, "to", d.Provider, "model", d.Model, "reason", d.Reason)
}

// applyLocalFallback probes the local provider and, if reachable, switches
// to it and records switcher state so a future healthy day restores the
// original model. Per spec.md §7 error kind 3, a probe failure silently
// abandons the fallback — the decision engine tries again next turn.
func (a *Adapter) applyLocalFallback(ctx context.Context, from string, turn plugin.Turn) {
	local, ok := a.findLocalProvider()
	if !ok {
		a.Logger.Warn("all providers exhausted and no local provider configured")
		return
	}
	if !a.Prober.Available(ctx, a.Settings.OllamaURL) {
		a.Logger.Warn("local provider probe failed, abandoning fallback", "url", a.Settings.OllamaURL)
		return
	}
	if !a.Restart.Allow() {
		a.Logger.Warn("local fallback suppressed by restart guard")
		return
	}

	task := decision.ClassifyTask(turn.Prompt, turn.Messages)
	model := local.ModelFor(task)
	if a.Settings.LocalModelFor != nil {
		if override := a.Settings.LocalModelFor(string(task)); override != "" {
			model = override
		}
	}

	originalModel, err := a.Patcher.CurrentPrimaryModel()
	if err != nil {
		a.logError("agent-end: read current primary model failed", err)
		return
	}
	if err := a.Switcher.SwitchToLocal(originalModel, model, time.Now().UTC()); err != nil {
		a.logError("agent-end: switch to local failed", err)
		return
	}
	if err := a.Ledger.RecordSwitch(from, local.ID, ledger.ReasonBudgetExhausted); err != nil {
		a.logError("agent-end: record switch to local failed", err)
	}
	if err := a.Patcher.SetActiveModel(ctx, model); err != nil {
		a.logError("agent-end: set active model for local fallback failed", err)
		return
	}
	a.Restart.RecordRestart()
	if a.Metrics != nil {
		a.Metrics.SwitchTotal.WithLabelValues(ledger.ReasonBudgetExhausted).Inc()
	}
	if a.Bus != nil {
		a.Bus.Publish(events.Event{Type: events.EventSwitch, From: from, To: local.ID, Reason: ledger.ReasonBudgetExhausted})
		a.Bus.Publish(events.Event{Type: events.EventRestartInvoked, Reason: "local_fallback"})
	}
	a.Logger.Info("fell back to local provider", "from", from, "to", local.ID, "model", model)
}

// findLocalProvider returns the registry's free (always-available) provider,
// if any is declared.
func (a *Adapter) findLocalProvider() (registry.Provider, bool) {
	for _, p := range a.Registry.Enabled() {
		if p.Free() {
			return p, true
		}
	}
	return registry.Provider{}, false
}

// maybeTruncate evaluates the session log's size and, if over budget,
// truncates it and restarts the host — gated by the same restart guard a
// provider switch uses, so a switch and a truncation in the same turn never
// trigger two restarts.
func (a *Adapter) maybeTruncate(ctx context.Context) {
	if !a.Settings.ContextTruncationEnabled || a.Settings.SessionLogPath == nil {
		return
	}
	path := a.Settings.SessionLogPath()
	if path == "" {
		return
	}
	result, err := truncate.Truncate(path, a.Settings.ContextMaxTokens, a.Settings.ContextKeepRecent, a.Bus)
	if err != nil {
		a.logError("agent-end: truncate failed", err)
		return
	}
	if !result.Truncated {
		return
	}
	if a.Metrics != nil {
		a.Metrics.TruncationTotal.Inc()
		a.Metrics.TruncationTokensEstimated.Set(float64(result.EstimateAfter))
	}
	a.Logger.Info("truncated session log", "removed", result.RemovedCount, "estimateBefore", result.EstimateBefore, "estimateAfter", result.EstimateAfter)

	if !a.Restart.Allow() {
		a.Logger.Warn("truncation restart suppressed by restart guard")
		return
	}
	a.Patcher.RestartHost(ctx)
	a.Restart.RecordRestart()
	if a.Bus != nil {
		a.Bus.Publish(events.Event{Type: events.EventRestartInvoked, Reason: "truncation"})
	}
}

func (a *Adapter) recordDecisionMetric(action decision.Action) {
	if a.Metrics != nil {
		a.Metrics.DecisionTotal.WithLabelValues(string(action)).Inc()
	}
}

func (a *Adapter) recordFailureMetric(provider string) {
	if a.Metrics == nil || provider == "" {
		return
	}
	count, err := a.Failure.ConsecutiveFailures(provider)
	if err != nil {
		return
	}
	a.Metrics.FailureConsecutive.WithLabelValues(provider).Set(float64(count))
}

func (a *Adapter) logError(msg string, err error) {
	if a.Logger == nil {
		return
	}
	a.Logger.Error(msg, "error", err.Error())
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
