package decision

import (
	"path/filepath"
	"testing"

	"github.com/chainrouter/chainrouter/internal/atomicstore"
	"github.com/chainrouter/chainrouter/internal/events"
	"github.com/chainrouter/chainrouter/internal/failure"
	"github.com/chainrouter/chainrouter/internal/ledger"
	"github.com/chainrouter/chainrouter/internal/plugin"
	"github.com/chainrouter/chainrouter/internal/registry"
	"github.com/stretchr/testify/require"
)

type chainDoc struct {
	Providers []registry.Provider `json:"providers"`
}

func newCascadeChain(t *testing.T) (*registry.Registry, *ledger.Ledger, string) {
	t.Helper()
	dir := t.TempDir()
	chainPath := filepath.Join(dir, "provider-chain.json")

	doc := chainDoc{Providers: []registry.Provider{
		{ID: "a", Priority: 1, Enabled: true, MaxDailyUSD: 3.00, Models: map[string]string{"default": "a-model"}},
		{ID: "b", Priority: 2, Enabled: true, MaxDailyUSD: 2.00, Models: map[string]string{"default": "b-model"}},
		{ID: "c", Priority: 3, Enabled: true, MaxDailyUSD: 1.00, Models: map[string]string{"default": "c-model"}},
		{ID: "ollama", Priority: 4, Enabled: true, MaxDailyUSD: 0, Models: map[string]string{"default": "qwen3:8b"}},
	}}
	require.NoError(t, atomicstore.WriteJSON(chainPath, doc))

	reg, err := registry.Load(chainPath)
	require.NoError(t, err)

	l := ledger.New(filepath.Join(dir, "chain-budget.json"), reg)
	return reg, l, dir
}

func newDefaultChain(t *testing.T) (*registry.Registry, *ledger.Ledger, *failure.Tracker, string) {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.Load(filepath.Join(dir, "provider-chain.json"))
	require.NoError(t, err)
	l := ledger.New(filepath.Join(dir, "chain-budget.json"), reg)
	tr := failure.New(filepath.Join(dir, "failure-tracker.json"), events.NewBus(10))
	return reg, l, tr, dir
}

// Scenario 1 (chain mode): spending past the premium provider's cap switches
// to the next provider in the chain.
func TestScenarioOverBudgetSwitchesToNextProvider(t *testing.T) {
	reg, l, tr, _ := newDefaultChain(t)

	require.NoError(t, l.RecordTransaction("anthropic", "claude-sonnet-4-20250514", 1000, 1000, 5.50))

	dec, err := Decide(l, reg, tr, failure.DefaultThreshold(), "summarize this document", nil)
	require.NoError(t, err)

	require.Equal(t, ActionSwitchProvider, dec.Action)
	require.Equal(t, registry.TaskGeneral, dec.Task)
	require.Equal(t, "deepseek", dec.Provider)
}

// Scenario 2: coding task routing, once the whole chain is exhausted down to
// the free local provider.
func TestScenarioCodingTaskRoutesToCodingModel(t *testing.T) {
	reg, l, tr, _ := newDefaultChain(t)

	require.NoError(t, l.RecordTransaction("anthropic", "claude-sonnet-4-20250514", 0, 0, 5.50))
	require.NoError(t, l.RecordTransaction("deepseek", "deepseek-chat", 0, 0, 1.50))
	require.NoError(t, l.SetActive("anthropic"))

	dec, err := Decide(l, reg, tr, failure.DefaultThreshold(), "fix the bug in my code", nil)
	require.NoError(t, err)

	require.Equal(t, registry.TaskCoding, dec.Task)
	require.Equal(t, "ollama", dec.Provider)
	require.Equal(t, "qwen3-coder:30b", dec.Model)
}

// Scenario 3: vision dominates coding.
func TestScenarioVisionDominatesCoding(t *testing.T) {
	reg, l, tr, _ := newDefaultChain(t)
	require.NoError(t, l.RecordTransaction("anthropic", "claude-sonnet-4-20250514", 0, 0, 5.50))
	require.NoError(t, l.RecordTransaction("deepseek", "deepseek-chat", 0, 0, 1.50))
	require.NoError(t, l.SetActive("anthropic"))

	messages := []plugin.Message{
		{Role: "user", Content: "debug this function", Blocks: []plugin.ContentBlock{{Type: "image", Text: ""}}},
	}

	dec, err := Decide(l, reg, tr, failure.DefaultThreshold(), "debug this function", messages)
	require.NoError(t, err)

	require.Equal(t, registry.TaskVision, dec.Task)
	require.Equal(t, "qwen3-vl:8b", dec.Model)
}

// Scenario 4: chain exhaustion cascade A -> B -> C -> Ollama.
func TestScenarioChainExhaustionCascade(t *testing.T) {
	reg, l, _ := newCascadeChain(t)
	bus := events.NewBus(10)
	tr := failure.New(filepath.Join(t.TempDir(), "failure-tracker.json"), bus)

	require.NoError(t, l.SetActive("a"))
	require.NoError(t, l.RecordTransaction("a", "a-model", 0, 0, 3.50))
	dec1, err := Decide(l, reg, tr, failure.DefaultThreshold(), "hello", nil)
	require.NoError(t, err)
	require.Equal(t, ActionSwitchProvider, dec1.Action)
	require.Equal(t, "b", dec1.Provider)
	require.NoError(t, l.SetActive("b"))

	require.NoError(t, l.RecordTransaction("b", "b-model", 0, 0, 2.50))
	dec2, err := Decide(l, reg, tr, failure.DefaultThreshold(), "hello", nil)
	require.NoError(t, err)
	require.Equal(t, ActionSwitchProvider, dec2.Action)
	require.Equal(t, "c", dec2.Provider)
	require.NoError(t, l.SetActive("c"))

	require.NoError(t, l.RecordTransaction("c", "c-model", 0, 0, 1.50))
	dec3, err := Decide(l, reg, tr, failure.DefaultThreshold(), "hello", nil)
	require.NoError(t, err)
	require.Equal(t, ActionSwitchProvider, dec3.Action)
	require.Equal(t, "ollama", dec3.Provider)
	require.NoError(t, l.SetActive("ollama"))

	dec4, err := Decide(l, reg, tr, failure.DefaultThreshold(), "hello", nil)
	require.NoError(t, err)
	require.Equal(t, ActionAllow, dec4.Action)
	require.Equal(t, "ollama", dec4.Provider)
}

// Scenario 5: consecutive-failure switch, then reset on success.
func TestScenarioConsecutiveFailureSwitch(t *testing.T) {
	reg, l, tr, _ := newDefaultChain(t)
	require.NoError(t, l.SetActive("anthropic"))

	for i := 0; i < 3; i++ {
		_, err := tr.RecordFailure("anthropic")
		require.NoError(t, err)
	}

	should, err := tr.ShouldSwitch("anthropic", 3)
	require.NoError(t, err)
	require.True(t, should)

	dec, err := Decide(l, reg, tr, 3, "hello", nil)
	require.NoError(t, err)
	require.Equal(t, ActionSwitchProvider, dec.Action)
	require.Equal(t, ledger.ReasonConsecutiveFailures, dec.Reason)

	require.NoError(t, tr.RecordSuccess("anthropic"))
	count, err := tr.ConsecutiveFailures("anthropic")
	require.NoError(t, err)
	require.Equal(t, 0, count)

	dec2, err := Decide(l, reg, tr, 3, "hello", nil)
	require.NoError(t, err)
	require.Equal(t, ActionAllow, dec2.Action)
}

func TestClassifyComplexitySimpleMediumComplex(t *testing.T) {
	require.Equal(t, ComplexitySimple, ClassifyComplexity("hi", nil))
	require.Equal(t, ComplexityMedium, ClassifyComplexity("please implement the retry helper", nil))
	require.Equal(t, ComplexityComplex, ClassifyComplexity("please architect a distributed production system", nil))
}

func TestInjectionSuppressedOverContextCeiling(t *testing.T) {
	out := Injection("anthropic", "anthropic", ComplexitySimple, true, 200_000)
	require.Empty(t, out)
}

func TestInjectionRecommendsCheaperModelForSimpleTaskOnPremium(t *testing.T) {
	out := Injection("anthropic", "anthropic", ComplexitySimple, true, 100)
	require.Contains(t, out, "[MODEL RECOMMENDATION]")
	require.Contains(t, out, "cheaper")
}

func TestInjectionRecommendsPremiumForComplexTaskOnCheapTier(t *testing.T) {
	out := Injection("deepseek", "anthropic", ComplexityComplex, true, 100)
	require.Contains(t, out, "[MODEL RECOMMENDATION]")
	require.Contains(t, out, "premium")
}

func TestInjectionOmitsRecommendationWhenAdvisoryOff(t *testing.T) {
	out := Injection("anthropic", "anthropic", ComplexitySimple, false, 100)
	require.NotContains(t, out, "[MODEL RECOMMENDATION]")
}

func TestAllowOnFreeProviderWhenPaidProvidersExhausted(t *testing.T) {
	reg, l, tr, _ := newDefaultChain(t)
	require.NoError(t, l.RecordTransaction("anthropic", "claude-sonnet-4-20250514", 0, 0, 5.50))
	require.NoError(t, l.RecordTransaction("deepseek", "deepseek-chat", 0, 0, 1.50))
	require.NoError(t, l.SetActive("ollama"))

	// Disabling ollama via the registry's env override path is out of scope
	// here; instead verify that once every paid provider is exhausted and
	// ollama itself is already active and non-exhausted, Decide takes the
	// Allow branch, the complement of AllExhausted.
	dec, err := Decide(l, reg, tr, failure.DefaultThreshold(), "hello", nil)
	require.NoError(t, err)
	require.Equal(t, ActionAllow, dec.Action)
}
