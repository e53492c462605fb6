// Package cache memoises ranked query results in Redis. Concurrent misses
// for the same query are collapsed into one computation.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/metrics"
)

const keyPrefix = "search:"

// Backend is the key-value store behind the cache. *redis.Client from
// pkg/redis implements it.
type Backend interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	FlushByPrefix(ctx context.Context, prefix string) (int64, error)
}

// DefaultComputeTimeout bounds a shared computation once it no longer
// follows any single caller's context.
const DefaultComputeTimeout = 10 * time.Second

type QueryCache struct {
	backend        Backend
	ttl            time.Duration
	computeTimeout time.Duration
	metrics        *metrics.Metrics
	group          singleflight.Group
	logger         *slog.Logger
	hits           atomic.Int64
	misses         atomic.Int64
}

func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend:        backend,
		ttl:            ttl,
		computeTimeout: DefaultComputeTimeout,
		metrics:        m,
		logger:         slog.Default().With("component", "query-cache"),
	}
}

// Compute produces the ranking for a cache miss.
type Compute func(ctx context.Context) (executor.Response, error)

// Get returns the cached results of plan. Backend errors count as misses.
func (c *QueryCache) Get(ctx context.Context, plan *parser.Plan) ([]executor.Result, bool) {
	key := buildKey(plan)
	var results []executor.Result
	found, err := c.backend.GetJSON(ctx, key, &results)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	if err != nil || !found {
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "query", plan.RawQuery, "key", key)
	return results, true
}

func (c *QueryCache) Set(ctx context.Context, plan *parser.Plan, results []executor.Result) {
	key := buildKey(plan)
	if err := c.backend.SetJSON(ctx, key, results, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached results for plan or runs compute once per key
// across concurrent callers. The shared computation is detached from the
// caller that started it and bounded by computeTimeout instead, so one
// client going away does not fail the others; each caller still stops
// waiting when its own ctx ends. Degraded rankings are returned but not
// cached.
func (c *QueryCache) GetOrCompute(ctx context.Context, plan *parser.Plan, compute Compute) ([]executor.Result, bool, error) {
	if results, ok := c.Get(ctx, plan); ok {
		return results, true, nil
	}
	ch := c.group.DoChan(buildKey(plan), func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()
		resp, err := compute(cctx)
		if err != nil {
			return nil, err
		}
		if resp.Degraded {
			c.logger.Warn("ranking degraded by storage errors, not caching", "query", plan.RawQuery)
		} else {
			c.Set(cctx, plan, resp.Results)
		}
		return resp.Results, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]executor.Result), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Invalidate drops every cached query. It is called after an index reload.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPrefix(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func buildKey(plan *parser.Plan) string {
	hash := sha256.Sum256([]byte(plan.Key()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
