// Command monitor consumes indexing and query telemetry (IndexEvent and
// SearchEvent messages published to Kafka by cmd/indexer and cmd/processor),
// aggregates them into rolling stats (latency percentiles, top queries,
// zero-result queries, queries-per-minute, cache hit rate), exposes them
// over HTTP for dashboards, and periodically snapshots them to Postgres.
//
// Usage:
//
//	monitor [-config configs/development.yaml] [-persist]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcazamora/corpusdex/internal/analytics"
	"github.com/marcazamora/corpusdex/internal/analytics/aggregator"
	"github.com/marcazamora/corpusdex/pkg/config"
	"github.com/marcazamora/corpusdex/pkg/health"
	"github.com/marcazamora/corpusdex/pkg/kafka"
	"github.com/marcazamora/corpusdex/pkg/logger"
	"github.com/marcazamora/corpusdex/pkg/middleware"
	"github.com/marcazamora/corpusdex/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	httpAddr := flag.String("http_addr", ":8091", "HTTP listen address")
	usePostgres := flag.Bool("persist", false, "persist periodic snapshots to Postgres (requires the config's postgres section)")
	snapshotInterval := flag.Duration("snapshot-interval", time.Minute, "interval between Postgres snapshots when -persist is set")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting monitor service", "http_addr", *httpAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator(nil)
	handler := analytics.HandleEvent(agg)

	indexConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexEvents, handler)
	searchConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, handler)
	agg.AttachConsumers(indexConsumer, searchConsumer)

	go func() {
		if err := agg.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("aggregator started", "index_topic", cfg.Kafka.Topics.IndexEvents, "search_topic", cfg.Kafka.Topics.SearchEvents)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumers active"}
	})

	var store *aggregator.Store
	if *usePostgres {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, snapshot persistence disabled", "error", err)
		} else {
			defer db.Close()
			store = aggregator.NewStore(db)
			store.StartPeriodicSave(ctx, agg, *snapshotInterval)
			checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
				if err := db.DB.PingContext(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
		}
	}

	statsHandler := analytics.NewHandler(agg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", statsHandler.Stats)
	if store != nil {
		mux.HandleFunc("GET /api/v1/analytics/history", func(w http.ResponseWriter, r *http.Request) {
			snapshots, err := store.ListSnapshots(r.Context(), 50)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, snapshots)
		})
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         *httpAddr,
		Handler:      chain,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("monitor service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("monitor service stopped")
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
