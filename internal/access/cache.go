package access

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/adapter/metrics"
	"github.com/fabgilson/scrumboard-live/internal/domain"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

type membershipKey struct {
	projectID int64
	userID    int64
}

// flightKey separates lookups started before an invalidation from those started after it.
func (k membershipKey) flightKey(generation uint64) string {
	return fmt.Sprintf("%d:%d:%d", k.projectID, k.userID, generation)
}

type cacheEntry struct {
	role      domain.ProjectRole
	expiresAt time.Time
}

type lookup struct {
	role  domain.ProjectRole
	found bool
}

// MembershipCache is a domain.MembershipResolver. A non-positive TTL disables caching but
// keeps request coalescing.
type MembershipCache struct {
	next    domain.MembershipResolver
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *metrics.CacheMetrics

	mu      sync.RWMutex
	entries map[membershipKey]cacheEntry
	// bumped by every invalidation; a lookup only stores its result if no invalidation
	// happened while it ran
	generation uint64
	group      singleflight.Group
}

func NewMembershipCache(next domain.MembershipResolver, ttl time.Duration, clock clockwork.Clock, m *metrics.CacheMetrics) *MembershipCache {
	return &MembershipCache{
		next:    next,
		ttl:     ttl,
		clock:   clock,
		metrics: m,
		entries: make(map[membershipKey]cacheEntry),
	}
}

func (c *MembershipCache) GetRoleForUserInProject(ctx context.Context, projectID, userID int64) (domain.ProjectRole, bool, error) {
	key := membershipKey{projectID: projectID, userID: userID}
	if role, ok := c.get(key); ok {
		if c.metrics != nil {
			c.metrics.Hits.Inc()
		}
		return role, true, nil
	}

	generation := c.currentGeneration()
	v, err, shared := c.group.Do(key.flightKey(generation), func() (any, error) {
		if c.metrics != nil {
			c.metrics.Misses.Inc()
		}
		role, found, err := c.next.GetRoleForUserInProject(ctx, projectID, userID)
		if err != nil {
			return nil, err
		}
		if found {
			c.set(key, role, generation)
		}
		return lookup{role: role, found: found}, nil
	})
	if shared && c.metrics != nil {
		c.metrics.Coalesced.Inc()
	}
	if err != nil {
		return "", false, err
	}
	res := v.(lookup)
	return res.role, res.found, nil
}

func (c *MembershipCache) get(key membershipKey) (domain.ProjectRole, bool) {
	if c.ttl <= 0 {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.clock.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.role, true
}

func (c *MembershipCache) currentGeneration() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// set stores role unless an invalidation happened since generation was read. The result is
// then possibly stale and is only returned to the callers that asked before the write.
func (c *MembershipCache) set(key membershipKey, role domain.ProjectRole, generation uint64) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		return
	}
	c.entries[key] = cacheEntry{role: role, expiresAt: c.clock.Now().Add(c.ttl)}
}

// Invalidate drops the cached role of one user in one project. Lookups already running are
// not cached and later callers do not share them.
func (c *MembershipCache) Invalidate(projectID, userID int64) {
	c.mu.Lock()
	delete(c.entries, membershipKey{projectID: projectID, userID: userID})
	c.generation++
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.Invalidations.Inc()
	}
}

// InvalidateProject drops every cached role for a project.
func (c *MembershipCache) InvalidateProject(projectID int64) {
	c.mu.Lock()
	for key := range c.entries {
		if key.projectID == projectID {
			delete(c.entries, key)
		}
	}
	c.generation++
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.Invalidations.Inc()
	}
}

func (c *MembershipCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// EvictExpired removes expired entries and returns how many were removed.
func (c *MembershipCache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// StartEvictionTimer evicts expired entries every interval until the returned stop
// function is called.
func (c *MembershipCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.EvictExpired(); evicted > 0 {
					slog.Debug("Evicted expired membership cache entries", "count", evicted, "remaining", c.Size())
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
