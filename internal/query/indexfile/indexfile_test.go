package indexfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadTermReturnsPostingsAtOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "final_inverted_index.jsonl")
	line1 := `{"term":"alpha","postings":[["d1",2],["d2",1]]}` + "\n"
	line2 := `{"term":"beta","postings":[["d3",5]]}` + "\n"
	if err := os.WriteFile(path, []byte(line1+line2), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer f.Close()

	postings, err := f.ReadTerm("alpha", 0)
	if err != nil {
		t.Fatalf("ReadTerm returned error: %v", err)
	}
	if len(postings) != 2 || postings[0].DocID != "d1" || postings[0].TF != 2 {
		t.Fatalf("unexpected postings for alpha: %+v", postings)
	}

	postings, err = f.ReadTerm("beta", int64(len(line1)))
	if err != nil {
		t.Fatalf("ReadTerm returned error: %v", err)
	}
	if len(postings) != 1 || postings[0].DocID != "d3" || postings[0].TF != 5 {
		t.Fatalf("unexpected postings for beta: %+v", postings)
	}
}

func TestReadTermRejectsOffsetMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "final_inverted_index.jsonl")
	line := `{"term":"alpha","postings":[["d1",1]]}` + "\n"
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer f.Close()

	if _, err := f.ReadTerm("beta", 0); err == nil {
		t.Fatal("expected an error when the record at offset does not match the requested term")
	}
}
