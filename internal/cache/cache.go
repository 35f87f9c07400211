// Package cache stores the most recent topology snapshot per scope with
// TTL expiry, at-most-one-concurrent-build population, and stale-serve
// when every discovery source is down.
package cache

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"topolens/internal/domain"
	"topolens/internal/metrics"
)

// Builder produces a fresh topology for a scope. prior is the last
// known snapshot for the scope (possibly loaded from the store), used by
// the merge engine's stale-device aging; it may be nil.
type Builder func(ctx context.Context, scope string, prior *domain.Topology) (*domain.Topology, error)

// Store persists snapshots so stale-serve survives a process restart.
// Load returns (nil, nil) when no snapshot exists for the scope.
type Store interface {
	Save(ctx context.Context, topo *domain.Topology) error
	Load(ctx context.Context, scope string) (*domain.Topology, error)
}

type entry struct {
	topo      *domain.Topology
	createdAt time.Time
}

// Cache is the topology cache. Scopes are independent: population of
// one scope never blocks reads or builds of another.
type Cache struct {
	build Builder
	store Store
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]*entry

	group   singleflight.Group
	onBuild func(*domain.Topology)
	metrics *metrics.Registry
	now     func() time.Time
}

// New creates a cache. store and m may be nil.
func New(build Builder, store Store, ttl time.Duration, m *metrics.Registry) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		build:   build,
		store:   store,
		ttl:     ttl,
		entries: make(map[string]*entry),
		metrics: m,
		now:     time.Now,
	}
}

// SetOnBuild registers a callback invoked after every successful fresh
// build, outside the cache lock.
func (c *Cache) SetOnBuild(fn func(*domain.Topology)) { c.onBuild = fn }

// GetOrBuild returns the topology for a scope. A fresh cached snapshot
// is returned with no I/O; otherwise one build runs per scope and
// concurrent callers share its result. When the build fails with total
// source unavailability and any previous snapshot exists (in memory or
// persisted), that snapshot is served flagged stale instead of an error.
func (c *Cache) GetOrBuild(ctx context.Context, scope string, forceRefresh bool) (*domain.Topology, error) {
	if !forceRefresh {
		if topo := c.fresh(scope); topo != nil {
			if c.metrics != nil {
				c.metrics.CacheHitsTotal.Inc()
			}
			return topo, nil
		}
	}
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}

	v, err, _ := c.group.Do(scope, func() (any, error) {
		// A caller that queued behind an in-flight build may find the
		// result already cached; forced refreshes always rebuild.
		if !forceRefresh {
			if topo := c.fresh(scope); topo != nil {
				return topo, nil
			}
		}

		prior := c.prior(ctx, scope)
		topo, err := c.build(ctx, scope, prior)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[scope] = &entry{topo: topo, createdAt: c.now()}
		c.mu.Unlock()

		if c.store != nil {
			if err := c.store.Save(ctx, topo); err != nil {
				log.Printf("cache: persisting snapshot for %q failed: %v", scope, err)
			}
		}
		if c.onBuild != nil {
			c.onBuild(topo)
		}
		return topo, nil
	})
	if err == nil {
		return v.(*domain.Topology), nil
	}

	// A cancelled build must not poison the scope: singleflight forgets
	// the key on return, so the next caller simply retries.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	if prior := c.prior(ctx, scope); prior != nil {
		if c.metrics != nil {
			c.metrics.CacheStaleServeTotal.Inc()
		}
		log.Printf("cache: serving stale snapshot for %q (%v)", scope, err)
		return prior.AsStale(), nil
	}
	return nil, err
}

// fresh returns the cached snapshot when it is within TTL.
func (c *Cache) fresh(scope string) *domain.Topology {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[scope]
	if !ok || c.now().Sub(e.createdAt) > c.ttl {
		return nil
	}
	return e.topo
}

// prior returns the last known snapshot regardless of TTL, consulting
// the persistent store when memory has none (e.g. after a restart).
func (c *Cache) prior(ctx context.Context, scope string) *domain.Topology {
	c.mu.RLock()
	e, ok := c.entries[scope]
	c.mu.RUnlock()
	if ok {
		return e.topo
	}
	if c.store == nil {
		return nil
	}
	topo, err := c.store.Load(ctx, scope)
	if err != nil {
		log.Printf("cache: loading persisted snapshot for %q failed: %v", scope, err)
		return nil
	}
	return topo
}

// Invalidate drops the in-memory entry for a scope.
func (c *Cache) Invalidate(scope string) {
	c.mu.Lock()
	delete(c.entries, scope)
	c.mu.Unlock()
}
