// Command processor answers queries against a built index.
//
// Batch usage:
//
//	processor --index_file_path index/final_inverted_index.jsonl \
//	          --queries_file_path queries.txt --ranker bm25
//
// Each line of queries.txt is processed independently; one JSON Result is
// written to stdout per line, then the process exits.
//
// Serve usage:
//
//	processor -serve --index_file_path ... --ranker bm25
//
// keeps the lexicon, document index, and index file handle resident and
// answers queries over HTTP and a lightweight RPC transport until signaled
// to stop.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/marcazamora/corpusdex/internal/query/processor"
	"github.com/marcazamora/corpusdex/internal/query/scorer"
	apperrors "github.com/marcazamora/corpusdex/pkg/errors"
	"github.com/marcazamora/corpusdex/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		indexFilePath  string
		queriesPath    string
		rankerName     string
		configPath     string
		serve          bool
		limit          int
		httpAddr       string
		grpcAddr       string
		metricsAddr    string
		redisAddr      string
		kafkaBrokers   string
		requireAPIKeys bool
		postgresDSN    string
	)
	flag.StringVar(&indexFilePath, "index_file_path", "", "path to final_inverted_index.jsonl (required)")
	flag.StringVar(&indexFilePath, "i", "", "shorthand for --index_file_path")
	flag.StringVar(&queriesPath, "queries_file_path", "", "path to a file with one query per line (required in batch mode)")
	flag.StringVar(&queriesPath, "q", "", "shorthand for --queries_file_path")
	flag.StringVar(&rankerName, "ranker", "", "bm25 or tfidf (required)")
	flag.StringVar(&rankerName, "r", "", "shorthand for --ranker")
	flag.StringVar(&configPath, "config", "", "optional YAML config file for tuning knobs")
	flag.BoolVar(&serve, "serve", false, "run as a long-lived query server instead of a one-shot batch")
	flag.IntVar(&limit, "limit", 10, "max results per query in batch mode")
	flag.StringVar(&httpAddr, "http_addr", ":8080", "HTTP listen address in -serve mode")
	flag.StringVar(&grpcAddr, "grpc_addr", ":8090", "RPC listen address in -serve mode")
	flag.StringVar(&metricsAddr, "metrics_addr", "", "address to serve Prometheus metrics on (optional)")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address for result caching in -serve mode (optional)")
	flag.StringVar(&kafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers for SearchEvent telemetry (optional)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "any non-empty value enables API-key validation in -serve mode, connecting with the config's postgres section; the value itself is not parsed (optional)")
	flag.BoolVar(&requireAPIKeys, "require-api-keys", false, "require a valid API key on every -serve query request")
	flag.Parse()

	if indexFilePath == "" || rankerName == "" {
		fmt.Fprintln(os.Stderr, "usage: processor --index_file_path FILE --ranker bm25|tfidf [--queries_file_path FILE | -serve]")
		return apperrors.ExitConfigError
	}
	if !serve && queriesPath == "" {
		fmt.Fprintln(os.Stderr, "--queries_file_path is required unless -serve is set")
		return apperrors.ExitConfigError
	}

	ranker, err := parseRanker(rankerName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return apperrors.ExitConfigError
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return apperrors.ExitCode(err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	dir := filepath.Dir(indexFilePath)
	lexiconPath := filepath.Join(dir, "lexicon.jsonl")
	docIndexPath := filepath.Join(dir, "document_index.jsonl")

	proc, err := processor.Open(indexFilePath, lexiconPath, docIndexPath, ranker)
	if err != nil {
		wrapped := apperrors.New(apperrors.ErrIO, fmt.Sprintf("opening index: %v", err))
		slog.Error("startup failed", "error", wrapped)
		return apperrors.ExitCode(wrapped)
	}
	defer proc.Close()

	if !serve {
		return runBatch(proc, queriesPath, limit)
	}

	return runServe(proc, serveOptions{
		httpAddr:       httpAddr,
		grpcAddr:       grpcAddr,
		metricsAddr:    metricsAddr,
		redisAddr:      redisAddr,
		kafkaBrokers:   kafkaBrokers,
		usePostgres:    postgresDSN != "",
		postgresCfg:    cfg.Postgres,
		requireAPIKeys: requireAPIKeys,
		defaultLimit:   cfg.Serve.DefaultLimit,
		maxResults:     cfg.Serve.MaxResults,
		queryTimeout:   cfg.Serve.QueryTimeout,
	})
}

func parseRanker(name string) (scorer.Ranker, error) {
	switch name {
	case "bm25":
		return scorer.BM25, nil
	case "tfidf":
		return scorer.TFIDF, nil
	default:
		return "", fmt.Errorf("unknown ranker %q, must be bm25 or tfidf", name)
	}
}

// runBatch processes each line of queriesPath as an independent query,
// writing one JSON Result per line to stdout.
func runBatch(proc *processor.Processor, queriesPath string, limit int) int {
	f, err := os.Open(queriesPath)
	if err != nil {
		wrapped := apperrors.New(apperrors.ErrIO, fmt.Sprintf("opening queries file: %v", err))
		slog.Error("batch failed", "error", wrapped)
		return apperrors.ExitCode(wrapped)
	}
	defer f.Close()

	enc := json.NewEncoder(os.Stdout)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		query := scanner.Text()
		if query == "" {
			continue
		}
		result, err := proc.Query(query, limit)
		if err != nil {
			wrapped := apperrors.New(apperrors.ErrIO, fmt.Sprintf("query %q failed: %v", query, err))
			slog.Error("batch failed", "error", wrapped)
			return apperrors.ExitCode(wrapped)
		}
		if err := enc.Encode(result); err != nil {
			slog.Error("writing result failed", "error", err)
			return apperrors.ExitIOError
		}
	}
	if err := scanner.Err(); err != nil {
		wrapped := apperrors.New(apperrors.ErrIO, fmt.Sprintf("reading queries file: %v", err))
		slog.Error("batch failed", "error", wrapped)
		return apperrors.ExitCode(wrapped)
	}
	return apperrors.ExitOK
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
