package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/chainrouter/chainrouter/internal/events"
	"github.com/chainrouter/chainrouter/internal/failure"
	"github.com/chainrouter/chainrouter/internal/ledger"
	"github.com/chainrouter/chainrouter/internal/metrics"
	"github.com/chainrouter/chainrouter/internal/registry"
	"github.com/chainrouter/chainrouter/internal/switcher"
	"github.com/chainrouter/chainrouter/internal/configpatch"
)

func newTestDeps(t *testing.T) Dependencies {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.Load(filepath.Join(dir, "provider-chain.json"))
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}
	l := ledger.New(filepath.Join(dir, "chain-budget.json"), reg)
	bus := events.NewBus(10)
	tr := failure.New(filepath.Join(dir, "failure.json"), bus)
	patcher := configpatch.New(filepath.Join(dir, "host.json"), []string{"true"})
	sw := switcher.New(filepath.Join(dir, "switcher.json"), patcher)
	return Dependencies{
		Registry: reg, Ledger: l, Failure: tr, Switcher: sw,
		Metrics: metrics.New(), EventBus: bus,
	}
}

func TestHealthz(t *testing.T) {
	d := newTestDeps(t)
	r := NewRouter(d)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStatusReportsActiveProviderAndChain(t *testing.T) {
	d := newTestDeps(t)
	r := NewRouter(d)
	srv := httptest.NewServer(r)
	defer srv.Close()

	if err := d.Ledger.RecordTransaction("anthropic", "claude-sonnet-4-20250514", 1000, 500, 1.0); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var snap statusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.ActiveProvider != "anthropic" {
		t.Errorf("expected active provider anthropic, got %q", snap.ActiveProvider)
	}
	if len(snap.Providers) == 0 {
		t.Error("expected at least one provider in snapshot")
	}
}

func TestEventsReturnsRecentBusEvents(t *testing.T) {
	d := newTestDeps(t)
	d.EventBus.Publish(events.Event{Type: events.EventSwitch, Reason: "test"})
	r := NewRouter(d)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/events?limit=10")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got []events.Event
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Reason != "test" {
		t.Errorf("expected reason %q, got %q", "test", got[0].Reason)
	}
}

func TestMetricsEndpointServesPrometheusExposition(t *testing.T) {
	d := newTestDeps(t)
	r := NewRouter(d)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
