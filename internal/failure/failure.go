// Package failure classifies a completed turn as success or failure and
// drives consecutive-failure-based provider switching. Adapted from
// tokenhub's internal/health.Tracker (consecutive-error counting with
// RecordSuccess/RecordFailure and an EventBus publish) but re-keyed to
// spec.md §4.6's classification rule and persisted to a daily JSON document
// instead of held in memory: there is no in-memory map or mutex, every call
// loads and saves the document, and every recorded failure publishes an
// event.
package failure

import (
	"strings"
	"time"

	"github.com/chainrouter/chainrouter/internal/atomicstore"
	"github.com/chainrouter/chainrouter/internal/events"
	"github.com/chainrouter/chainrouter/internal/plugin"
)

// errorPatterns are case-insensitive substrings recognised in a final
// assistant message's text as provider-side failure signals.
var errorPatterns = []string{
	"rate limit", "429", "502", "503", "401", "403",
	"timeout", "gateway timeout", "internal server error",
	"connection refused", "econnrefused", "etimedout",
	"billing error", "insufficient balance", "insufficient credits",
	"insufficient funds", "quota exceeded", "payment required",
	"unauthorized", "invalid api key", "authentication failed",
}

const minSuccessTextChars = 20

// defaultThreshold is how many consecutive failures trigger a switch,
// overridden by FAILURE_THRESHOLD.
const defaultThreshold = 3

// ProviderFailures is the per-provider counter persisted in the document.
type ProviderFailures struct {
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastFailureAt       time.Time `json:"lastFailureAt,omitempty"`
}

// Document is the on-disk failure-tracker shape (spec.md §3).
type Document struct {
	Date      string                      `json:"date"`
	Providers map[string]ProviderFailures `json:"providers"`
}

// Tracker owns the failure document.
type Tracker struct {
	path     string
	bus      *events.Bus
	now      func() time.Time
	today    func() string
}

// New creates a Tracker backed by path.
func New(path string, bus *events.Bus) *Tracker {
	return &Tracker{
		path: path,
		bus:  bus,
		now:  func() time.Time { return time.Now().UTC() },
		today: func() string { return time.Now().UTC().Format("2006-01-02") },
	}
}

func (t *Tracker) load() (*Document, error) {
	var doc Document
	ok, err := atomicstore.ReadJSON(t.path, &doc)
	if err != nil {
		return nil, err
	}
	today := t.today()
	if !ok || doc.Date != today {
		doc = Document{Date: today, Providers: map[string]ProviderFailures{}}
		if err := atomicstore.WriteJSON(t.path, doc); err != nil {
			return nil, err
		}
		return &doc, nil
	}
	if doc.Providers == nil {
		doc.Providers = map[string]ProviderFailures{}
	}
	return &doc, nil
}

func (t *Tracker) save(doc *Document) error {
	return atomicstore.WriteJSON(t.path, doc)
}

// RecordFailure increments provider's consecutive-failure counter and
// returns the new value.
func (t *Tracker) RecordFailure(provider string) (int, error) {
	doc, err := t.load()
	if err != nil {
		return 0, err
	}
	row := doc.Providers[provider]
	row.ConsecutiveFailures++
	row.LastFailureAt = t.now()
	doc.Providers[provider] = row
	if err := t.save(doc); err != nil {
		return 0, err
	}
	if t.bus != nil {
		t.bus.Publish(events.Event{
			Type:       events.EventFailureRecorded,
			ProviderID: provider,
			Reason:     "turn classified as failure",
		})
	}
	return row.ConsecutiveFailures, nil
}

// RecordSuccess resets provider's consecutive-failure counter to 0.
func (t *Tracker) RecordSuccess(provider string) error {
	doc, err := t.load()
	if err != nil {
		return err
	}
	row := doc.Providers[provider]
	row.ConsecutiveFailures = 0
	doc.Providers[provider] = row
	return t.save(doc)
}

// ConsecutiveFailures returns the current count for provider.
func (t *Tracker) ConsecutiveFailures(provider string) (int, error) {
	doc, err := t.load()
	if err != nil {
		return 0, err
	}
	return doc.Providers[provider].ConsecutiveFailures, nil
}

// ShouldSwitch reports whether provider's consecutive-failure count has
// reached threshold.
func (t *Tracker) ShouldSwitch(provider string, threshold int) (bool, error) {
	count, err := t.ConsecutiveFailures(provider)
	if err != nil {
		return false, err
	}
	return count >= threshold, nil
}

// DefaultThreshold returns spec.md's default consecutive-failure threshold.
func DefaultThreshold() int { return defaultThreshold }

// Classify implements spec.md §4.6's classification rule for a completed
// turn, returning true if the turn is a failure.
func Classify(turn plugin.Turn) bool {
	if turn.Error != "" {
		return true
	}
	assistant, ok := lastAssistantMessage(turn.Messages)
	if !ok {
		return true
	}
	assistant.NormalizeContent()

	if isEmptyContent(assistant) {
		return true
	}
	if matchesErrorPattern(assistant.TextContent()) {
		return true
	}
	if assistant.Usage == nil && len(strings.TrimSpace(assistant.TextContent())) < minSuccessTextChars {
		return true
	}
	return false
}

func lastAssistantMessage(messages []plugin.Message) (plugin.Message, bool) {
	if len(messages) == 0 {
		return plugin.Message{}, false
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" {
			return messages[i], true
		}
	}
	return plugin.Message{}, false
}

func isEmptyContent(m plugin.Message) bool {
	if s, ok := m.Content.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	if m.Content == nil {
		return true
	}
	return len(m.Blocks) == 0
}

func matchesErrorPattern(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range errorPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
