package worker

import (
	"context"
	"testing"

	"github.com/marcazamora/corpusdex/internal/indexer/corpusread"
	"github.com/marcazamora/corpusdex/internal/indexer/docshard"
	"github.com/marcazamora/corpusdex/internal/indexer/partial"
)

func TestRunIndexesBatchesUntilDone(t *testing.T) {
	dir := t.TempDir()
	w := New(0, 1<<30, 0, dir, nil, nil)

	in := make(chan corpusread.Batch, 4)
	in <- corpusread.Batch{Docs: []corpusread.Document{
		{DocID: "d1", Text: "alpha beta alpha"},
		{DocID: "d2", Text: "beta gamma"},
	}}
	in <- corpusread.Batch{Done: true}
	close(in)

	stats, err := w.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.DocsSeen != 2 {
		t.Fatalf("expected 2 docs seen, got %d", stats.DocsSeen)
	}
	if stats.DocShardFile == "" {
		t.Fatal("expected a document-index shard file to be written")
	}
	records, err := docshard.ReadShard(stats.DocShardFile)
	if err != nil {
		t.Fatalf("ReadShard returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 document-index records, got %d", len(records))
	}
}

func TestRunFlushesWhenBudgetExceeded(t *testing.T) {
	dir := t.TempDir()
	// A tiny budget forces a flush after the very first document.
	w := New(1, 200, 0, dir, nil, nil)

	in := make(chan corpusread.Batch, 4)
	in <- corpusread.Batch{Docs: []corpusread.Document{
		{DocID: "d1", Text: "alpha beta gamma delta"},
	}}
	in <- corpusread.Batch{Done: true}
	close(in)

	stats, err := w.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.FlushCount < 1 {
		t.Fatalf("expected at least one flush, got %d", stats.FlushCount)
	}
	if len(stats.PartialFiles) != stats.FlushCount {
		t.Fatalf("expected %d partial files, got %d", stats.FlushCount, len(stats.PartialFiles))
	}
	for _, p := range stats.PartialFiles {
		r, err := partial.OpenReader(p)
		if err != nil {
			t.Fatalf("OpenReader returned error: %v", err)
		}
		if _, ok := r.Peek(); !ok {
			t.Fatal("expected at least one record in flushed partial file")
		}
		r.Close()
	}
}

func TestRunOnEmptyBatchStreamWritesNoShard(t *testing.T) {
	dir := t.TempDir()
	w := New(2, 1<<30, 0, dir, nil, nil)

	in := make(chan corpusread.Batch, 1)
	in <- corpusread.Batch{Done: true}
	close(in)

	stats, err := w.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.DocsSeen != 0 {
		t.Fatalf("expected 0 docs seen, got %d", stats.DocsSeen)
	}
	if stats.DocShardFile != "" {
		t.Fatalf("expected no shard file when nothing was indexed, got %q", stats.DocShardFile)
	}
}
