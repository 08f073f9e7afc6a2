// Package corpusread implements the Document Reader (spec.md §4.4): a
// single-producer that streams (doc_id, text) records from a line-delimited
// JSON corpus file and pushes fixed-size batches onto a bounded queue for
// workers to consume, back-pressuring itself when workers fall behind.
package corpusread

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/marcazamora/corpusdex/internal/ingestion/validate"
)

// Document is one corpus record surviving validation.
type Document struct {
	DocID string
	Text  string
}

// Batch is a unit of work handed to a worker. A Batch with Done set carries
// no documents and signals that no more batches will arrive on the queue.
type Batch struct {
	Docs []Document
	Done bool
}

// avgAssumedDocBytes is the average document size BatchSize assumes when
// the caller passes a non-positive avgDocBytes.
const avgAssumedDocBytes = 2048

// minBatchSize and maxBatchSize bound the computed batch size so a single
// huge document or a tiny budget never produces a degenerate batch.
const (
	minBatchSize = 8
	maxBatchSize = 4096
)

// queueOccupancyTarget is the number of queued batches BatchSize budgets
// for; the reader does not enforce it, the queue's capacity is set by the
// caller (spec.md §4.4: "queue occupancy ×
// batch size × average document bytes is small relative to per-worker
// memory budget").
const queueOccupancyTarget = 4

// BatchSize computes a batch size such that queueOccupancyTarget batches of
// that size, at avgDocBytes per document, stay comfortably under
// perWorkerBudget/8 — a conservative slice of one worker's budget, since the
// queue is shared across all workers, not owned by any one of them.
func BatchSize(perWorkerBudgetBytes int64, avgDocBytes int) int {
	if avgDocBytes <= 0 {
		avgDocBytes = avgAssumedDocBytes
	}
	ceiling := perWorkerBudgetBytes / 8
	size := int(ceiling / int64(queueOccupancyTarget*avgDocBytes))
	if size < minBatchSize {
		size = minBatchSize
	}
	if size > maxBatchSize {
		size = maxBatchSize
	}
	return size
}

// Reader streams a corpus file and feeds a bounded channel of Batches.
type Reader struct {
	path      string
	batchSize int
	numQueues int
	logger    *slog.Logger

	malformed int64
}

// New creates a Reader for the corpus at path, batching documents into
// groups of batchSize, and terminating with numWorkers sentinel Batches.
func New(path string, batchSize, numWorkers int, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize < 1 {
		batchSize = minBatchSize
	}
	return &Reader{
		path:      path,
		batchSize: batchSize,
		numQueues: numWorkers,
		logger:    logger.With("component", "corpus-reader"),
	}
}

// MalformedCount returns the number of corpus records skipped for failing
// validation. It is only meaningful after Run has returned.
func (r *Reader) MalformedCount() int64 {
	return r.malformed
}

// Run streams the corpus into out, one Batch at a time, then pushes
// r.numQueues sentinel Batches so every worker observes a clean shutdown
// signal (spec.md §4.4). It returns any I/O error encountered opening or
// reading the corpus; malformed individual records are skipped and counted,
// never fatal. If ctx is cancelled, Run stops enqueuing new batches and
// stops pushing sentinels as well; workers observe the cancellation through
// ctx themselves.
func (r *Reader) Run(ctx context.Context, out chan<- Batch) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("opening corpus file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	current := make([]Document, 0, r.batchSize)
	lineNo := 0

loop:
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			r.logger.Warn("corpus reader stopping early", "reason", ctx.Err())
			break loop
		default:
		}

		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec validate.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			r.malformed++
			r.logger.Warn("skipping malformed corpus record", "line", lineNo, "error", err)
			continue
		}
		if err := validate.Validate(rec); err != nil {
			r.malformed++
			r.logger.Warn("skipping malformed corpus record", "line", lineNo, "reason", err)
			continue
		}

		current = append(current, Document{DocID: rec.ID, Text: rec.Text})
		if len(current) >= r.batchSize {
			if !r.send(ctx, out, Batch{Docs: current}) {
				break loop
			}
			current = make([]Document, 0, r.batchSize)
		}
	}
	if err := scanner.Err(); err != nil {
		r.drainSentinels(ctx, out)
		return fmt.Errorf("reading corpus file: %w", err)
	}

	if len(current) > 0 {
		r.send(ctx, out, Batch{Docs: current})
	}
	r.drainSentinels(ctx, out)
	return nil
}

// send pushes b onto out, honoring cancellation. It reports whether the
// batch was actually delivered.
func (r *Reader) send(ctx context.Context, out chan<- Batch, b Batch) bool {
	select {
	case out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

// drainSentinels pushes one Done batch per worker so every worker's receive
// loop terminates. Each push honors ctx cancellation: once workers have
// abandoned the queue on an aborted run, there may be no room left for
// sentinels and no one left to drain them, so a plain blocking send here
// would hang Run (and orchestrator.go's group.Wait with it) forever.
func (r *Reader) drainSentinels(ctx context.Context, out chan<- Batch) {
	for i := 0; i < r.numQueues; i++ {
		select {
		case out <- Batch{Done: true}:
		case <-ctx.Done():
			return
		}
	}
}
