package docshard

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFlushAndReadShardRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 2)
	w.Add("d1", 10, 50)
	w.Add("d2", 5, 20)

	path, err := w.Flush()
	if err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if path == "" {
		t.Fatal("expected non-empty path")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected tmp file to be gone, stat err = %v", err)
	}

	records, err := ReadShard(path)
	if err != nil {
		t.Fatalf("ReadShard returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].DocID != "d1" || records[0].Tokens != 10 || records[0].Chars != 50 {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].DocID != "d2" || records[1].Tokens != 5 || records[1].Chars != 20 {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
}

func TestFlushWithNoRecordsIsNoOp(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 0)
	path, err := w.Flush()
	if err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if path != "" {
		t.Fatalf("expected empty path, got %q", path)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir returned error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files written, got %v", entries)
	}
}

func TestShardFileNamedByWorkerID(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 7)
	w.Add("d1", 1, 1)
	path, err := w.Flush()
	if err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if filepath.Base(path) != "docindex-worker-7.shard" {
		t.Fatalf("expected shard named after worker id, got %q", filepath.Base(path))
	}
}
