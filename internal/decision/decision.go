// Package decision combines the ledger, provider registry, and failure
// tracker into a single allow/switch/exhausted decision per turn, and
// classifies a turn's task/complexity to pick a task-appropriate model and
// emit an advisory pre-turn injection. Grounded on tokenhub's
// internal/router (task classification + routing decision in one function)
// but re-expressed for spec.md §4.7's simpler budget-driven chain instead of
// a Thompson-sampling bandit.
package decision

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chainrouter/chainrouter/internal/failure"
	"github.com/chainrouter/chainrouter/internal/ledger"
	"github.com/chainrouter/chainrouter/internal/plugin"
	"github.com/chainrouter/chainrouter/internal/registry"
)

// Action is the outcome of Decide.
type Action string

const (
	ActionAllow          Action = "allow"
	ActionSwitchProvider Action = "switch_provider"
	ActionAllExhausted   Action = "all_exhausted"
)

// Complexity is an advisory classification of a prompt's difficulty, used
// only to drive the [MODEL RECOMMENDATION] injection line.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Decision is the result of one decide() call.
type Decision struct {
	Action      Action
	Provider    string
	Model       string
	Task        registry.Task
	Remaining   float64
	PercentUsed float64
	Reason      string
}

// estimatedContextTokenCeiling is spec.md §4.7's injection-suppression
// threshold (chars/4 estimate).
const estimatedContextTokenCeiling = 150_000

var codingKeywords = regexp.MustCompile(`(?i)\b(code|function|bug|implement|refactor|debug|algorithm|compile|syntax|variable|method|class|endpoint|script|stack trace|exception|unit test|pull request|compiler error)\b`)

var codeFileExtensions = regexp.MustCompile(`(?i)\.(ts|tsx|js|jsx|py|go|rs|java|rb|php|c|cpp|h|hpp|cs|swift|kt|scala|sh)\b`)

var complexKeywords = regexp.MustCompile(`(?i)\b(architect|security|audit|deep analysis|refactor entire|distributed|production)\b`)

var mediumKeywords = regexp.MustCompile(`(?i)\b(implement|fix bug|update|integrate|write tests|explain)\b`)

// ClassifyTask implements spec.md §4.7's task classification: vision
// dominates coding, which dominates general.
func ClassifyTask(prompt string, messages []plugin.Message) registry.Task {
	if hasImageBlock(messages) {
		return registry.TaskVision
	}
	if codingKeywords.MatchString(prompt) || codeFileExtensions.MatchString(prompt) {
		return registry.TaskCoding
	}
	return registry.TaskGeneral
}

func hasImageBlock(messages []plugin.Message) bool {
	for i := range messages {
		messages[i].NormalizeContent()
		for _, b := range messages[i].Blocks {
			if b.Type == "image" {
				return true
			}
		}
	}
	return false
}

// ClassifyComplexity implements spec.md §4.7's advisory complexity
// classification.
func ClassifyComplexity(prompt string, messages []plugin.Message) Complexity {
	totalLen := len(prompt)
	for i := range messages {
		totalLen += len(messages[i].TextContent())
	}

	if complexKeywords.MatchString(prompt) || totalLen > 50_000 || len(messages) > 10 {
		return ComplexityComplex
	}
	if mediumKeywords.MatchString(prompt) || len(prompt) > 200 || len(messages) > 3 {
		return ComplexityMedium
	}
	return ComplexitySimple
}

// EstimateContextTokens is the chars/4 heuristic used to suppress injection
// when the context is already too large to usefully extend.
func EstimateContextTokens(prompt string, messages []plugin.Message) int {
	total := len(prompt)
	for i := range messages {
		total += len(messages[i].TextContent())
	}
	return total / 4
}

// Decide implements spec.md §4.7's decide() algorithm: combine ledger +
// registry + failure counters into one of {allow, switch-provider,
// all-exhausted}, and pick a task-appropriate model.
func Decide(l *ledger.Ledger, reg *registry.Registry, tracker *failure.Tracker, threshold int, prompt string, messages []plugin.Message) (Decision, error) {
	task := ClassifyTask(prompt, messages)

	doc, err := l.Load()
	if err != nil {
		return Decision{}, fmt.Errorf("decision: load ledger: %w", err)
	}
	exhaustedSet, err := l.ExhaustedSet()
	if err != nil {
		return Decision{}, fmt.Errorf("decision: exhausted set: %w", err)
	}

	p, ok := reg.Get(doc.ActiveProvider)
	if !ok || !p.Enabled {
		fa, ok := reg.FirstAvailable(exhaustedSet)
		if !ok {
			return Decision{Action: ActionAllExhausted, Task: task}, nil
		}
		return Decision{
			Action: ActionSwitchProvider, Provider: fa.ID, Model: fa.ModelFor(task),
			Task: task, Reason: ledger.ReasonProviderDisabled,
		}, nil
	}

	isExhausted, err := l.Exhausted(p.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("decision: exhausted: %w", err)
	}
	shouldSwitch, err := tracker.ShouldSwitch(p.ID, threshold)
	if err != nil {
		return Decision{}, fmt.Errorf("decision: should switch: %w", err)
	}

	if isExhausted || shouldSwitch {
		nxt, ok := reg.NextAfter(p.ID, exhaustedSet)
		if !ok {
			return Decision{Action: ActionAllExhausted, Task: task}, nil
		}
		reason := ledger.ReasonBudgetExhausted
		if shouldSwitch && !isExhausted {
			reason = ledger.ReasonConsecutiveFailures
		}
		return Decision{
			Action: ActionSwitchProvider, Provider: nxt.ID, Model: nxt.ModelFor(task),
			Task: task, Reason: reason,
		}, nil
	}

	remaining, err := l.Remaining(p.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("decision: remaining: %w", err)
	}
	return Decision{
		Action: ActionAllow, Provider: p.ID, Model: p.ModelFor(task), Task: task,
		Remaining: remaining, PercentUsed: percentUsed(p, doc),
	}, nil
}

func percentUsed(p registry.Provider, doc *ledger.Document) float64 {
	if p.Free() {
		return 0
	}
	spent := doc.Providers[p.ID].SpentUSD
	pct := (spent / p.MaxDailyUSD) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

const premiumPreface = "Optimize for quality: you are running on a premium-tier model. Be thorough and precise."
const cheapPreface = "Optimize for efficiency: you are running on a cost-efficient model. Be concise and avoid unnecessary tool calls."

// Injection builds the pre-turn advisory string per spec.md §4.7: a
// provider-tier preface plus an optional [MODEL RECOMMENDATION] line when
// task complexity is mismatched to the current provider's tier. Suppressed
// entirely when estimatedContextTokens exceeds the ceiling.
func Injection(currentProvider, premiumProviderID string, complexity Complexity, advisoryRoutingOn bool, estimatedContextTokens int) string {
	if estimatedContextTokens > estimatedContextTokenCeiling {
		return ""
	}

	var sb strings.Builder
	isPremium := currentProvider == premiumProviderID
	if isPremium {
		sb.WriteString(premiumPreface)
	} else {
		sb.WriteString(cheapPreface)
	}

	if advisoryRoutingOn {
		if complexity == ComplexitySimple && isPremium {
			sb.WriteString("\n[MODEL RECOMMENDATION] This looks like a simple task; a cheaper model would likely suffice.")
		} else if complexity == ComplexityComplex && !isPremium {
			sb.WriteString("\n[MODEL RECOMMENDATION] This looks like a complex task; consider escalating to the premium-tier model.")
		}
	}

	return sb.String()
}
