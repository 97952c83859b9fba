// Package dirperm authorizes filesystem paths for agents: canonicalize
// the requested directory, refuse blocked system prefixes outright,
// then test maturity-scoped prefix containment.
package dirperm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avoronkov/warden/internal/govcache"
	"github.com/avoronkov/warden/internal/maturity"
	"github.com/avoronkov/warden/internal/model"
)

// ValidationError reports a directory that cannot be canonicalized.
type ValidationError struct {
	Directory string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid directory %q: %v", e.Directory, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Service resolves directory permissions. Safe for concurrent use;
// the table swap (hot reload) is the only mutation.
type Service struct {
	cache *govcache.Cache
	ttl   time.Duration
	home  string

	mu      sync.RWMutex
	table   Table
	blocked []string
}

// New creates a Service with the given decision cache and table. The
// table is validated for completeness and home-expanded up front.
func New(cache *govcache.Cache, table Table, ttl time.Duration) (*Service, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	if ttl <= 0 {
		ttl = govcache.DefaultTTL
	}
	return &Service{
		cache:   cache,
		ttl:     ttl,
		home:    home,
		table:   table.expand(home),
		blocked: BlockedPrefixes,
	}, nil
}

// SetTable swaps in a new prefix table, validating it first. Used by
// the config hot-reloader.
func (s *Service) SetTable(table Table) error {
	if err := table.Validate(); err != nil {
		return err
	}
	expanded := table.expand(s.home)
	s.mu.Lock()
	s.table = expanded
	s.mu.Unlock()
	return nil
}

// Resolve decides whether the agent may act in the given directory.
// Order is fixed: cache → canonicalize → blocked prefixes (always win,
// regardless of maturity) → per-maturity allowed prefixes.
func (s *Service) Resolve(agentID, directory string, level maturity.Level) (model.PermissionDecision, error) {
	if directory == "" {
		return model.PermissionDecision{}, &ValidationError{Directory: directory, Err: fmt.Errorf("empty path")}
	}

	cacheKey := "dir:" + directory
	if s.cache != nil {
		if d, ok := s.cache.Get(agentID, cacheKey); ok {
			return d, nil
		}
	}

	canonical, err := Canonicalize(directory, s.home)
	if err != nil {
		return model.PermissionDecision{}, &ValidationError{Directory: directory, Err: err}
	}

	decision := s.decide(canonical, level)
	decision.Level = level
	decision.SuggestOnly = !level.Satisfies(maturity.Autonomous)
	decision.ResolvedPath = canonical

	if s.cache != nil {
		s.cache.Set(agentID, cacheKey, decision, s.ttl)
	}
	return decision, nil
}

func (s *Service) decide(canonical string, level maturity.Level) model.PermissionDecision {
	for _, prefix := range s.blocked {
		if hasPathPrefix(canonical, prefix) {
			return model.PermissionDecision{
				Allowed: false,
				Reason:  fmt.Sprintf("path under blocked prefix %s", prefix),
			}
		}
	}

	s.mu.RLock()
	prefixes := s.table[level]
	s.mu.RUnlock()

	for _, prefix := range prefixes {
		if hasPathPrefix(canonical, prefix) {
			return model.PermissionDecision{
				Allowed: true,
				Reason:  fmt.Sprintf("path under allowed prefix %s for %s", prefix, level),
			}
		}
	}
	return model.PermissionDecision{
		Allowed: false,
		Reason:  fmt.Sprintf("path not in allowed prefixes for %s", level),
	}
}

// Canonicalize turns a possibly home-relative, possibly dotted path
// into a clean absolute one, resolving symlinks when the path exists.
// Nonexistent paths are still canonicalized textually so the prefix
// checks run on the real target location.
func Canonicalize(path, home string) (string, error) {
	expanded := expandHome(path, home)
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}
