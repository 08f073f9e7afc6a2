package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/marcazamora/corpusdex/internal/analytics"
	"github.com/marcazamora/corpusdex/internal/auth/apikey"
	"github.com/marcazamora/corpusdex/internal/auth/ratelimit"
	"github.com/marcazamora/corpusdex/internal/query/cache"
	"github.com/marcazamora/corpusdex/internal/query/handler"
	"github.com/marcazamora/corpusdex/internal/query/processor"
	"github.com/marcazamora/corpusdex/pkg/config"
	apperrors "github.com/marcazamora/corpusdex/pkg/errors"
	"github.com/marcazamora/corpusdex/pkg/grpc"
	"github.com/marcazamora/corpusdex/pkg/health"
	"github.com/marcazamora/corpusdex/pkg/kafka"
	"github.com/marcazamora/corpusdex/pkg/metrics"
	"github.com/marcazamora/corpusdex/pkg/middleware"
	"github.com/marcazamora/corpusdex/pkg/postgres"
	"github.com/marcazamora/corpusdex/pkg/proto"
	pkgredis "github.com/marcazamora/corpusdex/pkg/redis"
)

// serveOptions bundles -serve mode's settings. httpAddr and grpcAddr always
// listen; metricsAddr, redisAddr and kafkaBrokers are off unless a
// non-empty value is supplied on the command line, and usePostgres turns
// on the Postgres integrations using postgresCfg.
type serveOptions struct {
	httpAddr       string
	grpcAddr       string
	metricsAddr    string
	redisAddr      string
	kafkaBrokers   string
	usePostgres    bool
	requireAPIKeys bool
	defaultLimit   int
	maxResults     int
	queryTimeout   time.Duration
	postgresCfg    config.PostgresConfig
}

// runServe keeps proc resident and answers queries over HTTP and RPC until
// SIGINT/SIGTERM, per spec.md §4.6's eager-load framing.
func runServe(proc *processor.Processor, opts serveOptions) int {
	ctx, stop := signalContext()
	defer stop()

	var httpMetrics *metrics.Metrics
	if opts.metricsAddr != "" {
		httpMetrics = metrics.New()
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			_ = http.ListenAndServe(opts.metricsAddr, mux)
		}()
	}

	cfg := config.RedisConfig{Addr: opts.redisAddr, CacheTTL: 60 * time.Second}
	var resultCache *cache.ResultCache
	var redisClient *pkgredis.Client
	if opts.redisAddr != "" {
		client, err := pkgredis.NewClient(cfg)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			redisClient = client
			defer redisClient.Close()
			resultCache = cache.New(redisClient, cfg, httpMetrics)
		}
	}

	var collector *analytics.Collector
	if opts.kafkaBrokers != "" {
		kcfg := config.KafkaConfig{Brokers: splitCSV(opts.kafkaBrokers), Topics: config.KafkaTopics{SearchEvents: "search-events"}}
		producer := kafka.NewProducer(kcfg, kcfg.Topics.SearchEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 4096)
		collector.Start(ctx)
		defer collector.Close()
	}

	var db *postgres.Client
	var apiValidator *apikey.Validator
	if opts.usePostgres {
		client, err := postgres.New(opts.postgresCfg)
		if err != nil {
			slog.Warn("postgres unavailable, api-key auth disabled", "error", err)
		} else {
			db = client
			defer db.Close()
			apiValidator = apikey.NewValidator(db)
		}
	}
	if opts.requireAPIKeys && apiValidator == nil {
		fmt.Fprintln(os.Stderr, "--require-api-keys was set but --postgres-dsn is missing or unreachable")
		return apperrors.ExitConfigError
	}

	limiter := ratelimit.New(time.Minute)

	h := handler.New(proc, resultCache, collector, apiValidator, limiter, opts.requireAPIKeys, opts.defaultLimit, opts.maxResults, opts.queryTimeout, httpMetrics)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	if db != nil {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := db.DB.PingContext(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(5 * time.Second)(chain)
	if httpMetrics != nil {
		chain = middleware.Metrics(httpMetrics)(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         opts.httpAddr,
		Handler:      chain,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	rpcServer := grpc.NewServer()
	rpcServer.Register("SearchService.Search", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.SearchRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		limit := int(req.Limit)
		if limit <= 0 {
			limit = opts.defaultLimit
		}
		result, err := proc.Query(req.Query, limit)
		if err != nil {
			return nil, err
		}
		resp := proto.SearchResponse{Query: result.Query, TotalHits: int32(result.TotalHits)}
		for _, r := range result.Results {
			resp.Results = append(resp.Results, proto.SearchResult{DocID: r.DocID, Score: float32(r.Score)})
		}
		return resp, nil
	})
	go func() {
		if err := rpcServer.Serve(opts.grpcAddr); err != nil {
			slog.Error("rpc server error", "error", err)
		}
	}()
	defer rpcServer.Stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("processor serving", "http_addr", opts.httpAddr, "grpc_addr", opts.grpcAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		return apperrors.ExitIOError
	}
	slog.Info("processor stopped")
	return apperrors.ExitOK
}
