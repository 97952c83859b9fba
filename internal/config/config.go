// Package config loads the warden configuration: compiled defaults,
// overlaid by an optional YAML file, overlaid by environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/avoronkov/warden/internal/identity"
)

// Config holds all tunable parameters.
type Config struct {
	DBPath             string `yaml:"db_path"`
	AuditLogPath       string `yaml:"audit_log_path"`
	CommandRulesPath   string `yaml:"command_rules_path"`
	DirectoryTablePath string `yaml:"directory_table_path"`

	CacheTTLSeconds       int `yaml:"cache_ttl_seconds"`
	ShellTimeoutSeconds   int `yaml:"shell_timeout_seconds"`
	WorkerConcurrency     int `yaml:"worker_concurrency"`
	OutboxIntervalSeconds int `yaml:"outbox_interval_seconds"`

	// Agents seeds the in-memory registry. Deployments with a real
	// agent registry leave this empty.
	Agents map[string]identity.AgentRecord `yaml:"agents"`
}

// Default returns the compiled-in configuration rooted at ~/.warden.
func Default() *Config {
	base := ""
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".warden")
	}
	return &Config{
		DBPath:                filepath.Join(base, "warden.db"),
		AuditLogPath:          filepath.Join(base, "audit.jsonl"),
		CommandRulesPath:      filepath.Join(base, "commands.yaml"),
		DirectoryTablePath:    filepath.Join(base, "directories.yaml"),
		CacheTTLSeconds:       60,
		ShellTimeoutSeconds:   300,
		WorkerConcurrency:     2,
		OutboxIntervalSeconds: 2,
	}
}

// Load reads configuration from path. Empty path falls back to
// ~/.warden/config.yaml; a missing file returns defaults. Environment
// variables override both.
func Load(path string) (*Config, error) {
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".warden", "config.yaml")
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays WARDEN_* environment variables.
func (c *Config) applyEnv() {
	envString("WARDEN_DB_PATH", &c.DBPath)
	envString("WARDEN_AUDIT_LOG", &c.AuditLogPath)
	envString("WARDEN_COMMAND_RULES", &c.CommandRulesPath)
	envString("WARDEN_DIRECTORY_TABLE", &c.DirectoryTablePath)
	envInt("WARDEN_CACHE_TTL_SECONDS", &c.CacheTTLSeconds)
	envInt("WARDEN_SHELL_TIMEOUT_SECONDS", &c.ShellTimeoutSeconds)
	envInt("WARDEN_WORKER_CONCURRENCY", &c.WorkerConcurrency)
	envInt("WARDEN_OUTBOX_INTERVAL_SECONDS", &c.OutboxIntervalSeconds)
}

// CacheTTL returns the decision cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// ShellTimeout returns the default shell timeout as a duration.
func (c *Config) ShellTimeout() time.Duration {
	return time.Duration(c.ShellTimeoutSeconds) * time.Second
}

// OutboxInterval returns the outbox poll interval as a duration.
func (c *Config) OutboxInterval() time.Duration {
	return time.Duration(c.OutboxIntervalSeconds) * time.Second
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
