// Package statusapi serves a tiny loopback-only HTTP introspection surface
// for chainrouter: liveness, a ledger/failure/switcher snapshot, Prometheus
// exposition, and recent bus events. Grounded on tokenhub's internal/httpapi
// + internal/app.NewServer router-assembly shape (chi.Router, RequestID/
// RealIP/Recoverer/RequestLogger middleware, chi/cors), generalized from
// "LLM gateway API" down to a read-only router-introspection surface — it
// serves no provider traffic and never writes state, so it cannot violate
// the single-writer-per-file discipline the core components rely on.
package statusapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chainrouter/chainrouter/internal/events"
	"github.com/chainrouter/chainrouter/internal/failure"
	"github.com/chainrouter/chainrouter/internal/ledger"
	"github.com/chainrouter/chainrouter/internal/logging"
	"github.com/chainrouter/chainrouter/internal/metrics"
	"github.com/chainrouter/chainrouter/internal/registry"
	"github.com/chainrouter/chainrouter/internal/switcher"
)

// Dependencies are the read-only accessors the status surface reports on.
type Dependencies struct {
	Registry *registry.Registry
	Ledger   *ledger.Ledger
	Failure  *failure.Tracker
	Switcher *switcher.Switcher
	Metrics  *metrics.Registry
	EventBus *events.Bus
	Logger   *slog.Logger

	// CORSOrigins mirrors tokenhub's CORSOrigins config; empty means no
	// cross-origin access (this surface is loopback-only by design).
	CORSOrigins []string
}

// NewRouter assembles the chi router for the status surface.
func NewRouter(d Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if d.Logger != nil {
		r.Use(logging.RequestLogger(d.Logger))
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept"},
	}))

	r.Get("/healthz", healthzHandler())
	r.Get("/status", statusHandler(d))
	r.Get("/events", eventsHandler(d))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
	return r
}

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}
}

// providerSnapshot is one provider's status-surface view.
type providerSnapshot struct {
	ID                 string  `json:"id"`
	Enabled            bool    `json:"enabled"`
	Free               bool    `json:"free"`
	SpentUSD           float64 `json:"spentUsd"`
	MaxDailyUSD        float64 `json:"maxDailyUsd"`
	Exhausted          bool    `json:"exhausted"`
	ConsecutiveFailure int     `json:"consecutiveFailures"`
}

type statusSnapshot struct {
	ActiveProvider string             `json:"activeProvider"`
	SwitcherMode   string             `json:"switcherMode"`
	Providers      []providerSnapshot `json:"providers"`
}

func statusHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		doc, err := d.Ledger.Load()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		mode := "cloud"
		if st, ok, err := d.Switcher.Load(); err == nil && ok {
			mode = string(st.Mode)
		}

		snap := statusSnapshot{ActiveProvider: doc.ActiveProvider, SwitcherMode: mode}
		for _, p := range d.Registry.Enabled() {
			exhausted, _ := d.Ledger.Exhausted(p.ID)
			consecutive, _ := d.Failure.ConsecutiveFailures(p.ID)
			spent := 0.0
			if pd, ok := doc.Providers[p.ID]; ok {
				spent = pd.SpentUSD
			}
			snap.Providers = append(snap.Providers, providerSnapshot{
				ID: p.ID, Enabled: p.Enabled, Free: p.Free(),
				SpentUSD: spent, MaxDailyUSD: p.MaxDailyUSD,
				Exhausted: exhausted, ConsecutiveFailure: consecutive,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}
}

const defaultEventsLimit = 50

func eventsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultEventsLimit
		if q := r.URL.Query().Get("limit"); q != "" {
			if n, err := strconv.Atoi(q); err == nil && n > 0 {
				limit = n
			}
		}
		var recent []events.Event
		if d.EventBus != nil {
			recent = d.EventBus.Recent(limit)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(recent)
	}
}
