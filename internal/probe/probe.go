// Package probe performs a single-shot availability check of the local
// Ollama provider. Grounded on tokenhub's internal/health.Prober.probe
// (timeout-bounded http.Client request, context.WithTimeout) but collapsed
// from a periodic background ticker to one synchronous call — spec.md §5's
// concurrency model runs no background goroutines, and a local-switch
// decision needs the answer inline before it proceeds.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const defaultTimeout = 3 * time.Second

// Prober checks whether a local model-serving endpoint (Ollama) is
// reachable.
type Prober struct {
	client  *http.Client
	timeout time.Duration
}

// New creates a Prober with spec.md §5's 3-second probe timeout.
func New() *Prober {
	return &Prober{client: &http.Client{}, timeout: defaultTimeout}
}

// Available reports whether the Ollama server at baseURL responds to
// GET {baseURL}/api/tags within the probe timeout. Any error (timeout,
// connection refused, non-2xx status) is treated as unavailable per
// spec.md §7's "local-provider probe failure aborts a local switch" rule —
// the caller is expected to abandon the local switch on a false return, not
// to distinguish failure causes.
func (p *Prober) Available(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/tags", baseURL), nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
