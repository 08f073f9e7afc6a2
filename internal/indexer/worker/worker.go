// Package worker implements the indexing Worker (spec.md §4.3): it drains
// batches from the Document Reader's queue, tokenizes, feeds a per-worker
// memindex.Index, flushes to a partial-index file when the memory budget is
// hit, and tracks per-document statistics into a docshard.Writer.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcazamora/corpusdex/internal/analytics"
	"github.com/marcazamora/corpusdex/internal/indexer/corpusread"
	"github.com/marcazamora/corpusdex/internal/indexer/docshard"
	"github.com/marcazamora/corpusdex/internal/indexer/memindex"
	"github.com/marcazamora/corpusdex/internal/indexer/partial"
	"github.com/marcazamora/corpusdex/internal/indexer/tokenizer"
	"github.com/marcazamora/corpusdex/pkg/resilience"
)

// Stats summarizes one worker's contribution to the run, merged by the
// orchestrator into the run-wide totals.
type Stats struct {
	WorkerID      int
	DocsSeen      int64
	TokensSeen    int64
	PartialFiles  []string
	DocShardFile  string
	FlushCount    int
}

// Worker consumes batches assigned to it, in isolation from every other
// worker: it owns its memindex.Index, its own partial.Writer sequence, and
// its own docshard.Writer. The only structure it shares with anything else
// is the read side of the batch channel.
type Worker struct {
	id            int
	budgetBytes   int64
	costBytes     int64
	partialWriter *partial.Writer
	shardWriter   *docshard.Writer
	collector     *analytics.Collector
	logger        *slog.Logger
}

// New creates a Worker with id, a per-worker memory budget, a per-entry
// memory cost calibration (0 falls back to memindex.PerEntryCostBytes), and
// output directories for partial-index and document-index-shard files.
// collector may be nil, in which case no IndexEvent telemetry is published.
func New(id int, budgetBytes int64, costBytes int64, indexDir string, collector *analytics.Collector, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		id:            id,
		budgetBytes:   budgetBytes,
		costBytes:     costBytes,
		partialWriter: partial.NewWriter(indexDir, id),
		shardWriter:   docshard.NewWriter(indexDir, id),
		collector:     collector,
		logger:        logger.With("component", "worker", "worker_id", id),
	}
}

// Run drains batches from in until a Done batch arrives or ctx is
// cancelled, tokenizing and indexing each document, flushing whenever the
// in-memory index crosses its budget threshold, and finally flushing
// whatever remains plus the document-index shard.
func (w *Worker) Run(ctx context.Context, in <-chan corpusread.Batch) (Stats, error) {
	idx := memindex.NewWithCost(w.costBytes)
	stats := Stats{WorkerID: w.id}

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case batch, ok := <-in:
			if !ok || batch.Done {
				if err := w.flushRemainder(ctx, idx, &stats); err != nil {
					return stats, err
				}
				return stats, nil
			}
			for _, doc := range batch.Docs {
				start := time.Now()
				terms := tokenizer.Tokenize(doc.Text)
				idx.AddDocument(doc.DocID, terms)
				w.shardWriter.Add(doc.DocID, len(terms), len(doc.Text))

				stats.DocsSeen++
				stats.TokensSeen += int64(len(terms))

				if w.collector != nil {
					w.collector.Track(analytics.IndexEvent{
						Type:       analytics.EventIndexDoc,
						DocumentID: doc.DocID,
						TokenCount: len(terms),
						SizeBytes:  len(doc.Text),
						LatencyMs:  time.Since(start).Milliseconds(),
					})
				}

				if idx.ShouldFlush(w.budgetBytes) {
					if err := w.flush(idx, &stats); err != nil {
						return stats, err
					}
				}
			}
		}
	}
}

// flush drains idx and writes it to a fresh partial-index file, retrying
// on transient I/O failure exactly as the teacher's Kafka publishes are
// retried.
func (w *Worker) flush(idx *memindex.Index, stats *Stats) error {
	entries := idx.DrainSorted()
	if len(entries) == 0 {
		return nil
	}
	var path string
	err := resilience.Retry(context.Background(), fmt.Sprintf("worker-%d-flush", w.id), resilience.RetryConfig{}, func() error {
		p, err := w.partialWriter.Write(entries)
		if err != nil {
			return err
		}
		path = p
		return nil
	})
	if err != nil {
		return fmt.Errorf("worker %d flushing partial index: %w", w.id, err)
	}
	stats.PartialFiles = append(stats.PartialFiles, path)
	stats.FlushCount++
	w.logger.Info("partial index flushed", "path", path, "terms", len(entries))
	return nil
}

// flushRemainder flushes whatever the in-memory index still holds plus the
// worker's document-index shard, once the batch stream ends.
func (w *Worker) flushRemainder(ctx context.Context, idx *memindex.Index, stats *Stats) error {
	if !idx.IsEmpty() {
		if err := w.flush(idx, stats); err != nil {
			return err
		}
	}
	path, err := w.shardWriter.Flush()
	if err != nil {
		return fmt.Errorf("worker %d flushing document-index shard: %w", w.id, err)
	}
	stats.DocShardFile = path
	return nil
}
