package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultChain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "provider-chain.json")

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	enabled := r.Enabled()
	if len(enabled) != 3 {
		t.Fatalf("expected 3 default providers, got %d", len(enabled))
	}
	if enabled[0].ID != "anthropic" {
		t.Errorf("expected anthropic first by priority, got %s", enabled[0].ID)
	}
	if !atomicStoreExists(path) {
		t.Errorf("expected default chain to be persisted to %s", path)
	}
}

func atomicStoreExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestEnvOverrideDisablesProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "provider-chain.json")

	t.Setenv("DEEPSEEK_ENABLED", "false")
	t.Setenv("ANTHROPIC_DAILY_BUDGET_USD", "10.5")

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	enabled := r.Enabled()
	for _, p := range enabled {
		if p.ID == "deepseek" {
			t.Errorf("deepseek should be disabled by env override")
		}
	}
	anthropic, ok := r.Get("anthropic")
	if !ok {
		t.Fatalf("expected anthropic provider present")
	}
	if anthropic.MaxDailyUSD != 10.5 {
		t.Errorf("expected overridden budget 10.5, got %f", anthropic.MaxDailyUSD)
	}

	// Overrides must never be persisted back to disk.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read chain file: %v", err)
	}
	if containsString(string(raw), "10.5") {
		t.Errorf("env override leaked into on-disk chain document")
	}
}

func containsString(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}

func TestNextAfterSkipsExhausted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "provider-chain.json")
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	next, ok := r.NextAfter("anthropic", map[string]bool{"deepseek": true})
	if !ok {
		t.Fatalf("expected a next provider")
	}
	if next.ID != "ollama" {
		t.Errorf("expected to skip exhausted deepseek to ollama, got %s", next.ID)
	}
}

func TestNextAfterFreeProviderAlwaysEligible(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "provider-chain.json")
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Even if "ollama" were (incorrectly) marked exhausted, it must remain
	// eligible because it is free.
	next, ok := r.NextAfter("deepseek", map[string]bool{"ollama": true})
	if !ok {
		t.Fatalf("expected ollama to remain eligible despite appearing exhausted")
	}
	if next.ID != "ollama" {
		t.Errorf("expected ollama, got %s", next.ID)
	}
}

func TestFirstAvailableAllExhausted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "provider-chain.json")
	t.Setenv("OLLAMA_ENABLED", "false")
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, ok := r.FirstAvailable(map[string]bool{"anthropic": true, "deepseek": true})
	if ok {
		t.Errorf("expected no available provider when all exhausted and local disabled")
	}
}

func TestModelForTaskFallsBackToDefault(t *testing.T) {
	p := Provider{Models: map[string]string{"default": "base-model"}}
	if got := p.ModelFor(TaskVision); got != "base-model" {
		t.Errorf("expected fallback to default, got %s", got)
	}
}
