package cli

import (
	"fmt"

	"github.com/avoronkov/warden/internal/audit"
	"github.com/avoronkov/warden/internal/cmdcheck"
	"github.com/avoronkov/warden/internal/config"
	"github.com/avoronkov/warden/internal/dirperm"
	"github.com/avoronkov/warden/internal/escalate"
	"github.com/avoronkov/warden/internal/govcache"
	"github.com/avoronkov/warden/internal/governance"
	"github.com/avoronkov/warden/internal/identity"
	"github.com/avoronkov/warden/internal/queue"
	"github.com/avoronkov/warden/internal/shell"
	"github.com/avoronkov/warden/internal/store"
)

// app is the wired service graph every command runs against.
type app struct {
	cfg      *config.Config
	store    *store.Store
	registry *identity.StaticRegistry
	gov      *governance.Service
	dirs     *dirperm.Service
	shell    *shell.Service
	queue    *queue.Queue
	escalate *escalate.Workflow
	log      *audit.Log
}

// openApp loads configuration and wires every service.
func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := identity.NewStatic(cfg.Agents)
	gov := governance.New(registry, govcache.New(), st)
	gov.SetTTL(cfg.CacheTTL())

	table, err := dirperm.LoadTable(cfg.DirectoryTablePath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load directory table: %w", err)
	}
	dirs, err := dirperm.New(govcache.New(), table, cfg.CacheTTL())
	if err != nil {
		st.Close()
		return nil, err
	}

	rules, err := cmdcheck.Load(cfg.CommandRulesPath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load command rules: %w", err)
	}

	log, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		st.Close()
		return nil, err
	}

	sh := shell.New(gov, rules, dirs, st, log)
	sh.SetDefaultTimeout(cfg.ShellTimeout())

	return &app{
		cfg:      cfg,
		store:    st,
		registry: registry,
		gov:      gov,
		dirs:     dirs,
		shell:    sh,
		queue:    queue.New(st),
		escalate: escalate.New(st),
		log:      log,
	}, nil
}

func (a *app) close() {
	a.log.Close()
	a.store.Close()
}
