// Package orchestrator wires the Document Reader and the pool of Workers
// together and drives a full indexing run end to end: read, index in
// parallel, merge, and report aggregate stats. It replaces the mutable
// global state the original engine threaded through ambient collectors with
// one explicit IndexingContext value that is built up as the run proceeds
// and returned to the caller.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marcazamora/corpusdex/internal/analytics"
	"github.com/marcazamora/corpusdex/internal/indexer/corpusread"
	"github.com/marcazamora/corpusdex/internal/indexer/merger"
	"github.com/marcazamora/corpusdex/internal/indexer/worker"
	"github.com/marcazamora/corpusdex/pkg/kafka"
)

// Config bundles the tunables an indexing run needs. Workers defaults to
// runtime.NumCPU() when zero.
type Config struct {
	CorpusPath        string
	IndexDir          string
	MemoryLimitBytes  int64
	Workers           int
	BatchSize         int
	PerEntryCostBytes int64
	Producer          *kafka.Producer
	Logger            *slog.Logger
}

// IndexingContext accumulates the results of one indexing run: how many
// documents and tokens were processed, how many corpus records were
// malformed, how long each phase took, and the final merge stats. It is the
// single value threaded through Run and returned to the caller, replacing
// any package-level mutable state.
type IndexingContext struct {
	DocsIndexed      int64
	TokensIndexed    int64
	MalformedRecords int64
	FlushCount       int
	WorkerStats      []worker.Stats
	MergeStats       merger.Stats
	ReadDuration     time.Duration
	IndexDuration    time.Duration
	MergeDuration    time.Duration
}

// Run executes one full indexing pass: it starts the Document Reader and
// cfg.Workers worker goroutines fanned out via errgroup, waits for all of
// them to finish, then merges every worker's outputs into the run's final
// files. A failure in the reader or any worker cancels the whole group;
// Run returns the first such error.
func Run(ctx context.Context, cfg Config) (IndexingContext, error) {
	numWorkers := cfg.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "orchestrator")

	perWorkerBudget := cfg.MemoryLimitBytes / int64(numWorkers)
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = corpusread.BatchSize(perWorkerBudget, 0)
	}

	queue := make(chan corpusread.Batch, numWorkers*4)
	reader := corpusread.New(cfg.CorpusPath, batchSize, numWorkers, logger)

	// Every worker shares one buffered collector rather than publishing
	// IndexEvent telemetry to Kafka synchronously on the per-document hot
	// path; a full buffer drops events instead of stalling indexing.
	var collector *analytics.Collector
	if cfg.Producer != nil {
		collector = analytics.NewCollector(cfg.Producer, numWorkers*1024)
		collector.Start(ctx)
		defer collector.Close()
	}

	group, groupCtx := errgroup.WithContext(ctx)

	readStart := time.Now()
	group.Go(func() error {
		return reader.Run(groupCtx, queue)
	})

	workerStats := make([]worker.Stats, numWorkers)
	indexStart := time.Now()
	for i := 0; i < numWorkers; i++ {
		id := i
		w := worker.New(id, perWorkerBudget, cfg.PerEntryCostBytes, cfg.IndexDir, collector, logger)
		group.Go(func() error {
			stats, err := w.Run(groupCtx, queue)
			workerStats[id] = stats
			return err
		})
	}

	if err := group.Wait(); err != nil {
		return IndexingContext{}, fmt.Errorf("indexing run failed: %w", err)
	}
	indexDuration := time.Since(indexStart)
	readDuration := time.Since(readStart)

	var partialFiles, shardFiles []string
	var docsIndexed, tokensIndexed int64
	var flushCount int
	for _, s := range workerStats {
		docsIndexed += s.DocsSeen
		tokensIndexed += s.TokensSeen
		flushCount += s.FlushCount
		partialFiles = append(partialFiles, s.PartialFiles...)
		if s.DocShardFile != "" {
			shardFiles = append(shardFiles, s.DocShardFile)
		}
	}

	mergeStart := time.Now()
	mergeStats, err := merger.Merge(cfg.IndexDir, partialFiles, shardFiles)
	if err != nil {
		return IndexingContext{}, fmt.Errorf("merging index: %w", err)
	}
	mergeDuration := time.Since(mergeStart)

	logger.Info("indexing run complete",
		"docs_indexed", docsIndexed,
		"tokens_indexed", tokensIndexed,
		"malformed_records", reader.MalformedCount(),
		"flushes", flushCount,
		"output_dir", filepath.Clean(cfg.IndexDir),
	)

	return IndexingContext{
		DocsIndexed:      docsIndexed,
		TokensIndexed:    tokensIndexed,
		MalformedRecords: reader.MalformedCount(),
		FlushCount:       flushCount,
		WorkerStats:      workerStats,
		MergeStats:       mergeStats,
		ReadDuration:     readDuration,
		IndexDuration:    indexDuration,
		MergeDuration:    mergeDuration,
	}, nil
}
