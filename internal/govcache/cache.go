// Package govcache memoizes authorization decisions with a short TTL so
// hot-path checks stay sub-millisecond. The cache is a performance
// optimization only: every caller must behave correctly on a permanent
// miss.
package govcache

import (
	"sync"
	"time"

	"github.com/avoronkov/warden/internal/model"
)

// DefaultTTL bounds how long a decision stays hot before it is
// recomputed against the live maturity tables.
const DefaultTTL = 60 * time.Second

type entry struct {
	decision  model.PermissionDecision
	expiresAt time.Time
}

// Cache is a read-heavy in-memory TTL map. Writers overwrite
// idempotently; last write wins, which is safe because decisions are
// deterministic given the same inputs.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// key joins agent and action into one lookup key. The NUL separator
// keeps "a"+"b:c" and "a:b"+"c" distinct.
func key(agentID, actionKey string) string {
	return agentID + "\x00" + actionKey
}

// Get returns the cached decision for (agentID, actionKey), or a miss
// if absent or past its TTL.
func (c *Cache) Get(agentID, actionKey string) (model.PermissionDecision, bool) {
	c.mu.RLock()
	e, ok := c.entries[key(agentID, actionKey)]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expiresAt) {
		return model.PermissionDecision{}, false
	}
	return e.decision, true
}

// Set stores a decision for the given TTL. Degraded decisions and
// non-positive TTLs are refused: a decision computed while a backend
// was down must be recomputed once it recovers.
func (c *Cache) Set(agentID, actionKey string, d model.PermissionDecision, ttl time.Duration) {
	if d.Degraded || ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key(agentID, actionKey)] = entry{decision: d, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Invalidate drops every cached decision for one agent. Called when an
// agent's maturity changes out from under the cache.
func (c *Cache) Invalidate(agentID string) {
	prefix := agentID + "\x00"
	c.mu.Lock()
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Purge removes expired entries. Callers run this periodically; Get
// already treats expired entries as misses, so purging is about memory,
// not correctness.
func (c *Cache) Purge() {
	now := c.now()
	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
