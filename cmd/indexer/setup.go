package main

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/marcazamora/corpusdex/internal/indexer/orchestrator"
	"github.com/marcazamora/corpusdex/pkg/config"
	"github.com/marcazamora/corpusdex/pkg/metrics"
	"github.com/marcazamora/corpusdex/pkg/postgres"
)

func loadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	_ = http.ListenAndServe(addr, mux)
}

// persistRunRecord writes one audit-ledger row per invocation.
func persistRunRecord(ctx context.Context, db *postgres.Client, corpusPath, indexDir string, memoryLimitMB int64, result orchestrator.IndexingContext, elapsed time.Duration) error {
	return db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO indexer_runs (corpus_path, index_dir, memory_limit_mb, workers, docs_indexed, tokens_indexed, malformed_records, flush_count, elapsed_ms, run_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			corpusPath, indexDir, memoryLimitMB, len(result.WorkerStats),
			result.DocsIndexed, result.TokensIndexed, result.MalformedRecords, result.FlushCount,
			elapsed.Milliseconds(), time.Now().UTC(),
		)
		return err
	})
}
