package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avoronkov/warden/internal/maturity"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheTTLSeconds != 60 || cfg.WorkerConcurrency != 2 {
		t.Errorf("defaults: %+v", cfg)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
db_path: /tmp/test-warden.db
cache_ttl_seconds: 5
agents:
  agent-1:
    maturity: supervised
    confidence_score: 0.7
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/test-warden.db" || cfg.CacheTTLSeconds != 5 {
		t.Errorf("overlay: %+v", cfg)
	}
	// Unspecified fields keep defaults.
	if cfg.WorkerConcurrency != 2 {
		t.Errorf("worker concurrency = %d, want default 2", cfg.WorkerConcurrency)
	}
	rec, ok := cfg.Agents["agent-1"]
	if !ok || rec.Level != maturity.Supervised || rec.ConfidenceScore != 0.7 {
		t.Errorf("agents: %+v", cfg.Agents)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("cache_ttl_seconds: 5\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("WARDEN_CACHE_TTL_SECONDS", "120")
	t.Setenv("WARDEN_DB_PATH", "/tmp/env.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheTTLSeconds != 120 || cfg.DBPath != "/tmp/env.db" {
		t.Errorf("env overlay: %+v", cfg)
	}
	if cfg.CacheTTL() != 2*time.Minute {
		t.Errorf("CacheTTL = %v", cfg.CacheTTL())
	}
}

func TestReloaderFiresOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("whitelist: [ls]\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	fired := make(chan struct{}, 1)
	r, err := NewReloader([]string{path, "/does/not/exist"}, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewReloader: %v", err)
	}
	if len(r.Paths()) != 1 {
		t.Fatalf("watched paths: %v", r.Paths())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Give the watcher a moment, then touch the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("whitelist: [ls, cat]\n"), 0600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}
