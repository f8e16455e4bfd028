package cli

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/chainrouter/chainrouter/internal/truncate"
)

func TestRunResetDayRefusesWithoutYes(t *testing.T) {
	err := runResetDay(resetDayCmd, nil)
	if err == nil {
		t.Fatal("expected an error when --yes is not set")
	}
}

func TestPrintTruncateResultNoTruncationNeeded(t *testing.T) {
	out := captureStdout(t, func() {
		printTruncateResult(truncate.Result{}, false)
	})
	if out != "No truncation needed.\n" {
		t.Errorf("got %q", out)
	}
}

func TestPrintTruncateResultDryRunUsesWouldTruncate(t *testing.T) {
	result := truncate.Result{Truncated: true, RemovedCount: 5, EstimateBefore: 200, EstimateAfter: 120}
	out := captureStdout(t, func() {
		printTruncateResult(result, true)
	})
	want := "Would truncate: removed 5 messages (estimate 200 -> 120 tokens)\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	fn()
	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("copy: %v", err)
	}
	return buf.String()
}
