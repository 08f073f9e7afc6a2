// Package cache adapts the query cache pattern to processor.Result,
// caching by normalized-query hash and de-duplicating concurrent identical
// queries via singleflight, exactly as the search-executor cache does for
// its SearchResult type.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/marcazamora/corpusdex/internal/query/processor"
	"github.com/marcazamora/corpusdex/pkg/config"
	"github.com/marcazamora/corpusdex/pkg/metrics"
	pkgredis "github.com/marcazamora/corpusdex/pkg/redis"
	"github.com/marcazamora/corpusdex/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

// breakerName labels this cache's circuit breaker in both its own logs and
// the circuit_breaker_state Prometheus gauge.
const breakerName = "query-cache-redis"

const keyPrefix = "query:"

// ResultCache caches processor.Result values in Redis, keyed by a
// normalized form of the query plus the requested limit.
type ResultCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a ResultCache backed by client. A Redis outage trips the
// circuit breaker after repeated failures, so GetOrCompute falls straight
// through to computeFn instead of stacking up slow calls against a dead
// Redis. m may be nil, in which case cache metrics are not recorded.
func New(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *ResultCache {
	return &ResultCache{
		client:  client,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker(breakerName, resilience.CircuitBreakerConfig{}),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// reportBreakerState publishes the breaker's current state to the
// circuit_breaker_state gauge, if metrics are enabled.
func (c *ResultCache) reportBreakerState() {
	if c.metrics != nil {
		c.metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(float64(c.breaker.GetState()))
	}
}

// Get returns a cached result, if present.
func (c *ResultCache) Get(ctx context.Context, query string, limit int) (*processor.Result, bool) {
	key := c.buildKey(query, limit)
	var data string
	err := c.breaker.Execute(func() error {
		var getErr error
		data, getErr = c.client.Get(ctx, key)
		return getErr
	})
	c.reportBreakerState()
	if err != nil {
		if !pkgredis.IsNilError(err) && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.recordMiss()
		return nil, false
	}
	var result processor.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	return &result, true
}

func (c *ResultCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ResultCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Set stores result under a key derived from query and limit.
func (c *ResultCache) Set(ctx context.Context, query string, limit int, result *processor.Result) {
	key := c.buildKey(query, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.cfg.CacheTTL)
	})
	c.reportBreakerState()
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns a cached result or computes it via computeFn,
// collapsing concurrent callers for the same (query, limit) into a single
// computation via singleflight.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	query string,
	limit int,
	computeFn func() (*processor.Result, error),
) (*processor.Result, bool, error) {
	if result, ok := c.Get(ctx, query, limit); ok {
		return result, true, nil
	}
	key := c.buildKey(query, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, query, limit); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*processor.Result), false, nil
}

// Stats returns cumulative hit/miss counts.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) buildKey(query string, limit int) string {
	normalized := normalizeQuery(query)
	raw := fmt.Sprintf("%s:limit=%d", normalized, limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery lowercases and sorts the query's whitespace-delimited
// tokens so that "beta alpha" and "alpha beta" hit the same cache entry —
// the processor's conjunctive intersection is order-independent.
func normalizeQuery(query string) string {
	words := strings.Fields(strings.ToLower(query))
	sort.Strings(words)
	return strings.Join(words, ",")
}
