// Package handler exposes internal/query/processor over HTTP for
// cmd/processor's -serve mode.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/marcazamora/corpusdex/internal/analytics"
	"github.com/marcazamora/corpusdex/internal/auth/apikey"
	"github.com/marcazamora/corpusdex/internal/auth/ratelimit"
	"github.com/marcazamora/corpusdex/internal/query/cache"
	"github.com/marcazamora/corpusdex/internal/query/processor"
	"github.com/marcazamora/corpusdex/pkg/logger"
	"github.com/marcazamora/corpusdex/pkg/metrics"
	"github.com/marcazamora/corpusdex/pkg/middleware"
	"github.com/marcazamora/corpusdex/pkg/resilience"
	"github.com/marcazamora/corpusdex/pkg/tracing"
)

// QueryEngine is the subset of *processor.Processor the handler depends on,
// so tests can substitute a fake.
type QueryEngine interface {
	Query(query string, limit int) (processor.Result, error)
}

// Handler answers HTTP queries against a resident Processor.
type Handler struct {
	engine         QueryEngine
	cache          *cache.ResultCache
	collector      *analytics.Collector
	apiValidator   *apikey.Validator
	limiter        *ratelimit.Limiter
	requireAPIKeys bool
	defaultLimit   int
	maxResults     int
	queryTimeout   time.Duration
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// New creates a Handler. cache, collector, apiValidator, limiter, and m may
// all be nil, in which case caching, telemetry, auth/rate-limiting, and
// metrics are disabled respectively. queryTimeout bounds the
// candidate-fetch-and-score phase of a single request; zero disables the
// bound.
func New(engine QueryEngine, resultCache *cache.ResultCache, collector *analytics.Collector, apiValidator *apikey.Validator, limiter *ratelimit.Limiter, requireAPIKeys bool, defaultLimit, maxResults int, queryTimeout time.Duration, m *metrics.Metrics) *Handler {
	return &Handler{
		engine:         engine,
		cache:          resultCache,
		collector:      collector,
		apiValidator:   apiValidator,
		limiter:        limiter,
		requireAPIKeys: requireAPIKeys,
		defaultLimit:   defaultLimit,
		maxResults:     maxResults,
		queryTimeout:   queryTimeout,
		metrics:        m,
		logger:         slog.Default().With("component", "query-handler"),
	}
}

// Search handles GET /api/v1/search?q=...&limit=....
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	ctx, span := tracing.StartSpan(ctx, "query.search", middleware.GetRequestID(ctx))
	defer span.Log()
	defer span.End()

	key, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if h.limiter != nil {
		limitKey, limit := rateLimitBucket(key, r)
		if !h.limiter.Allow(limitKey, limit) {
			h.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}

	var result *processor.Result
	cacheHit := false

	computeCtx, computeSpan := tracing.StartChildSpan(ctx, "query.compute")
	err := resilience.WithTimeout(computeCtx, h.queryTimeout, "query", func(timeoutCtx context.Context) error {
		var computeErr error
		if h.cache != nil {
			result, cacheHit, computeErr = h.cache.GetOrCompute(timeoutCtx, query, limit, func() (*processor.Result, error) {
				r, err := h.engine.Query(query, limit)
				return &r, err
			})
		} else {
			var r processor.Result
			r, computeErr = h.engine.Query(query, limit)
			result = &r
		}
		return computeErr
	})
	computeSpan.SetAttr("cache_hit", cacheHit)
	computeSpan.End()

	if err != nil {
		if h.metrics != nil {
			h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("query timed out", "query", query, "error", err)
			h.writeError(w, http.StatusGatewayTimeout, "query timed out")
			return
		}
		log.Error("query execution failed", "query", query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	elapsed := time.Since(start)
	latencyMs := elapsed.Milliseconds()
	log.Info("query completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)

	if h.metrics != nil {
		resultType := "miss"
		cacheStatus := "miss"
		if cacheHit {
			resultType = "hit"
			cacheStatus = "hit"
		} else if result.TotalHits == 0 {
			resultType = "zero_result"
		}
		h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
		h.metrics.SearchResultsCount.WithLabelValues().Observe(float64(len(result.Results)))
	}

	if h.collector != nil {
		eventType := analytics.EventCacheMiss
		if cacheHit {
			eventType = analytics.EventCacheHit
		}
		h.collector.Track(analytics.SearchEvent{
			Type:      eventType,
			Query:     query,
			TotalHits: result.TotalHits,
			Returned:  len(result.Results),
			LatencyMs: latencyMs,
			CacheHit:  cacheHit,
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// Health handles GET /health/live.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authorize checks the request's API key when requireAPIKeys is set. It
// returns the validated key's info (nil when auth is disabled) and whether
// the request may proceed.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (*apikey.KeyInfo, bool) {
	if !h.requireAPIKeys || h.apiValidator == nil {
		return nil, true
	}
	raw := r.Header.Get("X-API-Key")
	if raw == "" {
		h.writeError(w, http.StatusUnauthorized, "missing X-API-Key header")
		return nil, false
	}
	info, err := h.apiValidator.Validate(r.Context(), raw)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "invalid or expired api key")
		return nil, false
	}
	return info, true
}

// unauthenticatedRateLimit is the token-bucket size each remote address
// gets when no API key is presented; authenticated callers get their key's own
// configured limit instead.
const unauthenticatedRateLimit = 60

func rateLimitBucket(key *apikey.KeyInfo, r *http.Request) (bucketKey string, limit int) {
	if key == nil {
		return r.RemoteAddr, unauthenticatedRateLimit
	}
	return key.ID, key.RateLimit
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
