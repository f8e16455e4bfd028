// Command chainrouter-plugin is the host-loadable entry point: built with
// -buildmode=plugin it exposes Register(api) for the host's plugin loader to
// call once at load time (spec.md §6, "A register(api) entry point is
// invoked once at load"); built as a normal binary it wires the same
// components, optionally serves internal/statusapi, and blocks until a
// signal arrives — useful for running the status surface without the real
// runtime attached; the binary itself never calls Register. Grounded
// on tokenhub's cmd/tokenhub/main.go for the config-load/construct/
// signal-wait/graceful-shutdown shape.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainrouter/chainrouter/internal/adapter"
	"github.com/chainrouter/chainrouter/internal/config"
	"github.com/chainrouter/chainrouter/internal/configpatch"
	"github.com/chainrouter/chainrouter/internal/costtable"
	"github.com/chainrouter/chainrouter/internal/events"
	"github.com/chainrouter/chainrouter/internal/failure"
	"github.com/chainrouter/chainrouter/internal/ledger"
	"github.com/chainrouter/chainrouter/internal/logging"
	"github.com/chainrouter/chainrouter/internal/metrics"
	"github.com/chainrouter/chainrouter/internal/plugin"
	"github.com/chainrouter/chainrouter/internal/probe"
	"github.com/chainrouter/chainrouter/internal/registry"
	"github.com/chainrouter/chainrouter/internal/restartguard"
	"github.com/chainrouter/chainrouter/internal/statusapi"
	"github.com/chainrouter/chainrouter/internal/switcher"
)

// version is set at build time via -ldflags.
var version = "dev"

// slogAdapter satisfies plugin.Logger by forwarding to a *slog.Logger.
type slogAdapter struct{ l *slog.Logger }

func (s slogAdapter) Debug(msg string, args ...interface{}) { s.l.Debug(msg, args...) }
func (s slogAdapter) Info(msg string, args ...interface{})  { s.l.Info(msg, args...) }
func (s slogAdapter) Warn(msg string, args ...interface{})  { s.l.Warn(msg, args...) }
func (s slogAdapter) Error(msg string, args ...interface{}) { s.l.Error(msg, args...) }

// build wires every component from cfg and returns the adapter that will
// back both hooks.
func build(cfg config.Config, logger *slog.Logger) (*adapter.Adapter, error) {
	reg, err := registry.Load(cfg.DataPath(config.FileProviderChain))
	if err != nil {
		return nil, fmt.Errorf("load provider chain: %w", err)
	}
	var ledgerOpts []ledger.Option
	var switcherOpts []switcher.Option
	if cfg.EncryptionKey != "" {
		ledgerOpts = append(ledgerOpts, ledger.WithEncryption(cfg.EncryptionKey))
		switcherOpts = append(switcherOpts, switcher.WithEncryption(cfg.EncryptionKey))
	}

	l := ledger.New(cfg.DataPath(config.FileChainBudget), reg, ledgerOpts...)
	bus := events.NewBus(200)
	failureTracker := failure.New(cfg.DataPath(config.FileFailure), bus)
	patcher := configpatch.New(cfg.HostConfig, []string{"forge", "gateway", "restart"})
	sw := switcher.New(cfg.DataPath(config.FileSwitcherState), patcher, switcherOpts...)
	prober := probe.New()
	guard := restartguard.New()
	costs := costtable.New()
	metricsReg := metrics.New()

	if premium, ok := reg.FirstAvailable(map[string]bool{}); ok {
		aliases := map[string]string{}
		for _, p := range reg.Enabled() {
			if p.Free() {
				aliases[p.ModelFor(registry.TaskGeneral)] = p.ID
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := patcher.InstallDefaults(ctx, premium.ModelFor(registry.TaskGeneral), aliases); err != nil {
			logger.Warn("install default host config failed", "error", err.Error())
		}
	}

	return &adapter.Adapter{
		Registry: reg,
		Ledger:   l,
		Failure:  failureTracker,
		Switcher: sw,
		Patcher:  patcher,
		Prober:   prober,
		Restart:  guard,
		Costs:    costs,
		Bus:      bus,
		Metrics:  metricsReg,
		Logger:   slogAdapter{logger},
		Settings: adapter.Settings{
			FailureThreshold:         cfg.FailureThreshold,
			AutoModelRoutingOn:       cfg.AutoModelRouting != "off",
			OllamaURL:                cfg.OllamaURL,
			SessionLogPath:           func() string { return os.Getenv("SESSION_LOG_PATH") },
			ContextTruncationEnabled: cfg.ContextTruncationEnabled,
			ContextMaxTokens:         cfg.ContextMaxTokens,
			ContextKeepRecent:        cfg.ContextKeepRecent,
			LocalModelFor:            cfg.LocalModelFor,
		},
	}, nil
}

// Register is the host's plugin-loader symbol (spec.md §6). It is exported
// so a -buildmode=plugin build of this package can be opened with
// plugin.Open and looked up by name.
func Register(api plugin.HostAPI) error {
	logger := logging.Setup(os.Getenv("CHAINROUTER_LOG_LEVEL"))
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("chainrouter-plugin: config: %w", err)
	}
	a, err := build(cfg, logger)
	if err != nil {
		return fmt.Errorf("chainrouter-plugin: build: %w", err)
	}
	api.On(plugin.HookBeforeAgentStart, a.OnBeforeAgentStart, 0)
	api.On(plugin.HookAgentEnd, a.OnAgentEnd, 0)
	logger.Info("chainrouter plugin registered", "version", version)
	return nil
}

func main() {
	logger := logging.Setup(os.Getenv("CHAINROUTER_LOG_LEVEL"))
	logger.Info("chainrouter-plugin version", "version", version)

	cfg, err := config.Load(".")
	if err != nil {
		logger.Error("config error", "error", err.Error())
		os.Exit(1)
	}

	a, err := build(cfg, logger)
	if err != nil {
		logger.Error("build error", "error", err.Error())
		os.Exit(1)
	}

	var httpServer *http.Server
	if cfg.StatusAddr != "" {
		router := statusapi.NewRouter(statusapi.Dependencies{
			Registry: a.Registry,
			Ledger:   a.Ledger,
			Failure:  a.Failure,
			Switcher: a.Switcher,
			Metrics:  a.Metrics,
			EventBus: a.Bus,
			Logger:   logger,
		})
		httpServer = &http.Server{
			Addr:              cfg.StatusAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			logger.Info("status surface listening", "addr", cfg.StatusAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("status surface listen error", "error", err.Error())
			}
		}()
	}

	logger.Info("chainrouter-plugin running standalone; without a host this only serves the status surface")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("status surface shutdown error", "error", err.Error())
		}
	}
	logger.Info("shutdown complete")
}
