package cli

import (
	"os"
	"strings"

	"github.com/chainrouter/chainrouter/internal/config"
	"github.com/chainrouter/chainrouter/internal/configpatch"
	"github.com/chainrouter/chainrouter/internal/events"
	"github.com/chainrouter/chainrouter/internal/failure"
	"github.com/chainrouter/chainrouter/internal/ledger"
	"github.com/chainrouter/chainrouter/internal/registry"
	"github.com/chainrouter/chainrouter/internal/switcher"
)

// deps bundles the components every subcommand needs to read (and
// occasionally write) on-disk state. Built fresh per command invocation —
// chainrouterctl is a one-shot process, not a long-lived service.
type deps struct {
	cfg      config.Config
	registry *registry.Registry
	ledger   *ledger.Ledger
	failure  *failure.Tracker
	switcher *switcher.Switcher
	patcher  *configpatch.Patcher
}

// loadDeps reads config from the environment/.env and opens every
// data-directory file the subcommands operate on.
func loadDeps() (*deps, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}

	reg, err := registry.Load(cfg.DataPath(config.FileProviderChain))
	if err != nil {
		return nil, err
	}
	var ledgerOpts []ledger.Option
	var switcherOpts []switcher.Option
	if cfg.EncryptionKey != "" {
		ledgerOpts = append(ledgerOpts, ledger.WithEncryption(cfg.EncryptionKey))
		switcherOpts = append(switcherOpts, switcher.WithEncryption(cfg.EncryptionKey))
	}

	l := ledger.New(cfg.DataPath(config.FileChainBudget), reg, ledgerOpts...)
	bus := events.NewBus(1)
	tr := failure.New(cfg.DataPath(config.FileFailure), bus)
	patcher := configpatch.New(cfg.HostConfig, restartCommand())
	sw := switcher.New(cfg.DataPath(config.FileSwitcherState), patcher, switcherOpts...)

	return &deps{cfg: cfg, registry: reg, ledger: l, failure: tr, switcher: sw, patcher: patcher}, nil
}

// restartCommand is the host restart command, split into shell words; the
// default matches spec.md §6's `<host> gateway restart`, overridable via
// HOST_RESTART_CMD for hosts with a different binary name.
func restartCommand() []string {
	if v := os.Getenv("HOST_RESTART_CMD"); v != "" {
		return strings.Fields(v)
	}
	return []string{"forge", "gateway", "restart"}
}
