package merger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/marcazamora/corpusdex/internal/indexer/docshard"
	"github.com/marcazamora/corpusdex/internal/indexer/partial"
	"github.com/marcazamora/corpusdex/internal/indexer/posting"
)

func writePartial(t *testing.T, dir string, workerID int, entries []posting.Entry) string {
	t.Helper()
	w := partial.NewWriter(dir, workerID)
	path, err := w.Write(entries)
	if err != nil {
		t.Fatalf("writing partial file: %v", err)
	}
	return path
}

func writeShard(t *testing.T, dir string, workerID int, records []docshard.Record) string {
	t.Helper()
	w := docshard.NewWriter(dir, workerID)
	for _, r := range records {
		w.Add(r.DocID, r.Tokens, r.Chars)
	}
	path, err := w.Flush()
	if err != nil {
		t.Fatalf("writing shard file: %v", err)
	}
	return path
}

func readIndexRecords(t *testing.T, path string) []indexRecord {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()
	var records []indexRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec indexRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshaling record: %v", err)
		}
		records = append(records, rec)
	}
	return records
}

func TestMergeCombinesDisjointWorkersInTermOrder(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")

	p1 := writePartial(t, dir, 0, []posting.Entry{
		{Term: "beta", Postings: posting.List{{DocID: "d1", TF: 1}}},
		{Term: "zeta", Postings: posting.List{{DocID: "d1", TF: 3}}},
	})
	p2 := writePartial(t, dir, 1, []posting.Entry{
		{Term: "alpha", Postings: posting.List{{DocID: "d2", TF: 2}}},
		{Term: "beta", Postings: posting.List{{DocID: "d3", TF: 5}}},
	})
	s1 := writeShard(t, dir, 0, []docshard.Record{{DocID: "d1", Tokens: 4, Chars: 20}})
	s2 := writeShard(t, dir, 1, []docshard.Record{{DocID: "d2", Tokens: 2, Chars: 10}, {DocID: "d3", Tokens: 5, Chars: 30}})

	stats, err := Merge(out, []string{p1, p2}, []string{s1, s2})
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}

	records := readIndexRecords(t, filepath.Join(out, "final_inverted_index.jsonl"))
	if len(records) != 3 {
		t.Fatalf("expected 3 terms, got %d", len(records))
	}
	terms := []string{records[0].Term, records[1].Term, records[2].Term}
	want := []string{"alpha", "beta", "zeta"}
	for i := range want {
		if terms[i] != want[i] {
			t.Fatalf("expected term order %v, got %v", want, terms)
		}
	}

	beta := records[1]
	if len(beta.Postings) != 2 {
		t.Fatalf("expected beta to have 2 postings (merged from both workers), got %d", len(beta.Postings))
	}
	if beta.Postings[0][0] != "d1" || beta.Postings[1][0] != "d3" {
		t.Fatalf("expected beta postings sorted by doc_id [d1 d3], got %v", beta.Postings)
	}

	if stats.NumDocuments != 3 {
		t.Fatalf("expected 3 documents, got %d", stats.NumDocuments)
	}
	if stats.NumTokens != int64(1+3+2+5) {
		t.Fatalf("expected num_tokens = sum of tf, got %d", stats.NumTokens)
	}
}

func TestMergeOnEmptyInputsProducesEmptyOutputs(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")

	stats, err := Merge(out, nil, nil)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if stats.NumDocuments != 0 || stats.NumTokens != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
	records := readIndexRecords(t, filepath.Join(out, "final_inverted_index.jsonl"))
	if len(records) != 0 {
		t.Fatalf("expected empty index, got %d records", len(records))
	}
}

func TestMergeWritesConsistentLexiconOffsets(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")

	p1 := writePartial(t, dir, 0, []posting.Entry{
		{Term: "alpha", Postings: posting.List{{DocID: "d1", TF: 2}}},
		{Term: "beta", Postings: posting.List{{DocID: "d1", TF: 1}, {DocID: "d2", TF: 4}}},
	})
	s1 := writeShard(t, dir, 0, []docshard.Record{{DocID: "d1", Tokens: 3, Chars: 15}, {DocID: "d2", Tokens: 4, Chars: 18}})

	if _, err := Merge(out, []string{p1}, []string{s1}); err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}

	indexPath := filepath.Join(out, "final_inverted_index.jsonl")
	f, err := os.Open(indexPath)
	if err != nil {
		t.Fatalf("opening index: %v", err)
	}
	defer f.Close()
	data, err := os.ReadFile(indexPath)
	if err != nil {
		t.Fatalf("reading index: %v", err)
	}

	lexData, err := os.ReadFile(filepath.Join(out, "lexicon.jsonl"))
	if err != nil {
		t.Fatalf("reading lexicon: %v", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(lexData))
	for scanner.Scan() {
		var entry LexiconEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("unmarshaling lexicon entry: %v", err)
		}
		if entry.Offset < 0 || int(entry.Offset) > len(data) {
			t.Fatalf("offset %d out of range for term %q", entry.Offset, entry.Term)
		}
		var rec indexRecord
		line := readLineAt(t, data, entry.Offset)
		if err := json.Unmarshal(line, &rec); err != nil {
			t.Fatalf("unmarshaling record at offset %d: %v", entry.Offset, err)
		}
		if rec.Term != entry.Term {
			t.Fatalf("expected record at offset %d to be term %q, got %q", entry.Offset, entry.Term, rec.Term)
		}
		if len(rec.Postings) != entry.DF {
			t.Fatalf("expected df=%d postings for %q, got %d", entry.DF, entry.Term, len(rec.Postings))
		}
	}
}

func readLineAt(t *testing.T, data []byte, offset int64) []byte {
	t.Helper()
	end := offset
	for int(end) < len(data) && data[end] != '\n' {
		end++
	}
	return data[offset:end]
}

