package corpusread

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeCorpus(t *testing.T, lines []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	return path
}

func TestRunEmitsBatchesAndSentinelsPerWorker(t *testing.T) {
	path := writeCorpus(t, []string{
		`{"id":"d1","text":"alpha beta"}`,
		`{"id":"d2","text":"gamma"}`,
		`{"id":"d3","text":"delta"}`,
	})
	r := New(path, 2, 3, nil)

	out := make(chan Batch, 16)
	if err := r.Run(context.Background(), out); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	close(out)

	var docCount, sentinels int
	for b := range out {
		if b.Done {
			sentinels++
			continue
		}
		docCount += len(b.Docs)
	}
	if docCount != 3 {
		t.Fatalf("expected 3 documents delivered, got %d", docCount)
	}
	if sentinels != 3 {
		t.Fatalf("expected 3 sentinels (one per worker), got %d", sentinels)
	}
	if r.MalformedCount() != 0 {
		t.Fatalf("expected no malformed records, got %d", r.MalformedCount())
	}
}

func TestRunSkipsMalformedRecords(t *testing.T) {
	path := writeCorpus(t, []string{
		`{"id":"d1","text":"alpha"}`,
		`not json at all`,
		`{"id":"","text":"missing id"}`,
		`{"id":"d2","text":""}`,
		`{"id":"d3","text":"beta"}`,
	})
	r := New(path, 10, 1, nil)

	out := make(chan Batch, 16)
	if err := r.Run(context.Background(), out); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	close(out)

	var docs []Document
	sentinels := 0
	for b := range out {
		if b.Done {
			sentinels++
			continue
		}
		docs = append(docs, b.Docs...)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 valid documents, got %d", len(docs))
	}
	if r.MalformedCount() != 3 {
		t.Fatalf("expected 3 malformed records counted, got %d", r.MalformedCount())
	}
	if sentinels != 1 {
		t.Fatalf("expected 1 sentinel, got %d", sentinels)
	}
}

func TestRunOnEmptyCorpusOnlyEmitsSentinels(t *testing.T) {
	path := writeCorpus(t, nil)
	r := New(path, 10, 2, nil)

	out := make(chan Batch, 16)
	if err := r.Run(context.Background(), out); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	close(out)

	total := 0
	sentinels := 0
	for b := range out {
		if b.Done {
			sentinels++
		}
		total += len(b.Docs)
	}
	if total != 0 {
		t.Fatalf("expected no documents, got %d", total)
	}
	if sentinels != 2 {
		t.Fatalf("expected 2 sentinels, got %d", sentinels)
	}
}

func TestRunErrorsOnMissingFile(t *testing.T) {
	r := New("/nonexistent/path/corpus.jsonl", 10, 1, nil)
	out := make(chan Batch, 4)
	if err := r.Run(context.Background(), out); err == nil {
		t.Fatal("expected an error for a missing corpus file")
	}
}

func TestBatchSizeStaysWithinBounds(t *testing.T) {
	if got := BatchSize(1000, 2048); got != minBatchSize {
		t.Fatalf("expected minBatchSize for a tiny budget, got %d", got)
	}
	if got := BatchSize(1<<40, 1); got != maxBatchSize {
		t.Fatalf("expected maxBatchSize for a huge budget, got %d", got)
	}
}
