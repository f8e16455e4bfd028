package costtable

import "testing"

func TestResolveExactBareAndPrefixed(t *testing.T) {
	tb := New()
	bare := tb.Resolve("claude-sonnet-4-20250514")
	prefixed := tb.Resolve("anthropic/claude-sonnet-4-20250514")
	if bare != prefixed {
		t.Errorf("expected bare and prefixed lookups to match, got %+v vs %+v", bare, prefixed)
	}
	if bare.InputPer1K <= 0 {
		t.Errorf("expected a positive known rate, got %+v", bare)
	}
}

func TestResolveUnknownModelIsZero(t *testing.T) {
	tb := New()
	r := tb.Resolve("some-brand-new-model-nobody-has-priced")
	if r != (Rate{}) {
		t.Errorf("expected zero rate for unknown model, got %+v", r)
	}
}

func TestIsLocalFamilies(t *testing.T) {
	cases := []struct {
		model string
		want  bool
	}{
		{"qwen3:8b", true},
		{"qwen3-coder:30b", true},
		{"llama-3.1-70b", true},
		{"ollama/anything-at-all", true},
		{"claude-sonnet-4-20250514", false},
		{"gpt-4o", false},
	}
	for _, c := range cases {
		if got := IsLocal(c.model); got != c.want {
			t.Errorf("IsLocal(%q) = %v, want %v", c.model, got, c.want)
		}
	}
}

func TestResolveLocalModelAlwaysFreeEvenIfTableHasEntry(t *testing.T) {
	tb := New()
	tb.Set("ollama/qwen3:8b", Rate{InputPer1K: 99, OutputPer1K: 99})
	r := tb.Resolve("ollama/qwen3:8b")
	if r != (Rate{}) {
		t.Errorf("expected local model to resolve free regardless of table entry, got %+v", r)
	}
}
