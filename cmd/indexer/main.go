// Command indexer builds an inverted index from a JSONL corpus.
//
// Usage:
//
//	indexer --memory_limit_mb 512 --corpus_path corpus.jsonl --index_dir ./index
//
// It is a one-shot batch tool: it reads the corpus once, fans out across a
// worker pool bounded by the memory budget, merges the resulting partial
// indexes, and exits. It never mutates an existing index in place.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcazamora/corpusdex/internal/indexer/orchestrator"
	apperrors "github.com/marcazamora/corpusdex/pkg/errors"
	"github.com/marcazamora/corpusdex/pkg/kafka"
	"github.com/marcazamora/corpusdex/pkg/logger"
	"github.com/marcazamora/corpusdex/pkg/metrics"
	"github.com/marcazamora/corpusdex/pkg/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		memoryLimitMB int64
		corpusPath    string
		indexDir      string
		configPath    string
		kafkaBrokers  string
		postgresDSN   string
		metricsAddr   string
	)
	flag.Int64Var(&memoryLimitMB, "memory_limit_mb", 0, "total memory budget in MB (required)")
	flag.Int64Var(&memoryLimitMB, "m", 0, "shorthand for --memory_limit_mb")
	flag.StringVar(&corpusPath, "corpus_path", "", "path to the JSONL corpus file (required)")
	flag.StringVar(&corpusPath, "c", "", "shorthand for --corpus_path")
	flag.StringVar(&indexDir, "index_dir", "", "output directory for the built index (required)")
	flag.StringVar(&indexDir, "i", "", "shorthand for --index_dir")
	flag.StringVar(&configPath, "config", "", "optional YAML config file for tuning knobs")
	flag.StringVar(&kafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers for IndexEvent telemetry (optional)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "any non-empty value enables the run-record audit ledger, connecting with the config's postgres section; the value itself is not parsed (optional)")
	flag.StringVar(&metricsAddr, "metrics_addr", "", "address to serve Prometheus metrics on (optional)")
	flag.Parse()

	if memoryLimitMB <= 0 || corpusPath == "" || indexDir == "" {
		fmt.Fprintln(os.Stderr, "usage: indexer --memory_limit_mb N --corpus_path FILE --index_dir DIR")
		return apperrors.ExitConfigError
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return apperrors.ExitCode(err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	var m *metrics.Metrics
	if metricsAddr != "" {
		m = metrics.New()
		go serveMetrics(metricsAddr)
	}

	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		wrapped := apperrors.New(apperrors.ErrIO, fmt.Sprintf("creating index dir: %v", err))
		slog.Error("startup failed", "error", wrapped)
		return apperrors.ExitCode(wrapped)
	}

	var producer *kafka.Producer
	if kafkaBrokers != "" {
		cfg.Kafka.Brokers = splitCSV(kafkaBrokers)
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexEvents)
		defer producer.Close()
	}

	var db *postgres.Client
	if postgresDSN != "" {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, run record will not be persisted", "error", err)
		} else {
			defer db.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCfg := orchestrator.Config{
		CorpusPath:        corpusPath,
		IndexDir:          indexDir,
		MemoryLimitBytes:  memoryLimitMB * 1024 * 1024,
		Workers:           cfg.Indexing.Workers,
		BatchSize:         cfg.Indexing.BatchSize,
		PerEntryCostBytes: cfg.Indexing.PerEntryCostBytes,
		Producer:          producer,
		Logger:            slog.Default(),
	}

	start := time.Now()
	result, err := orchestrator.Run(ctx, runCfg)
	if err != nil {
		wrapped := apperrors.New(apperrors.ErrIO, fmt.Sprintf("indexing run failed: %v", err))
		slog.Error("indexing failed", "error", wrapped)
		return apperrors.ExitCode(wrapped)
	}
	elapsed := time.Since(start)

	if m != nil {
		m.DocsIndexedTotal.Add(float64(result.DocsIndexed))
		m.IndexFlushesTotal.WithLabelValues("ok").Add(float64(result.FlushCount))
	}

	slog.Info("indexing complete",
		"docs_indexed", result.DocsIndexed,
		"tokens_indexed", result.TokensIndexed,
		"malformed_records", result.MalformedRecords,
		"flush_count", result.FlushCount,
		"elapsed", elapsed,
	)

	if db != nil {
		if err := persistRunRecord(ctx, db, corpusPath, indexDir, memoryLimitMB, result, elapsed); err != nil {
			slog.Error("persisting run record failed", "error", err)
		}
	}

	return apperrors.ExitOK
}
