// Package indexfile provides random-access reads of final_inverted_index.jsonl
// at the byte offsets recorded in the lexicon, avoiding a full load of the
// index into memory (spec.md §4.6 step 5, §8 P3).
package indexfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/marcazamora/corpusdex/internal/indexer/posting"
)

// record mirrors the on-disk shape written by the merger:
// {"term": T, "postings": [[doc, tf], ...]}.
type record struct {
	Term     string   `json:"term"`
	Postings [][2]any `json:"postings"`
}

// File wraps an open final_inverted_index.jsonl for concurrent, read-only
// ReadAt-based access. Multiple queries may share one File concurrently;
// os.File.ReadAt is safe for concurrent use since it does not move the file
// offset.
type File struct {
	f *os.File
}

// Open opens path for random access.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening final index file: %w", err)
	}
	return &File{f: f}, nil
}

// Close closes the underlying file.
func (idx *File) Close() error {
	return idx.f.Close()
}

// ReadTerm reads the posting list for the term recorded at offset in the
// lexicon, validating that the record actually names term (spec.md P3:
// lexicon/index consistency).
func (idx *File) ReadTerm(term string, offset int64) (posting.List, error) {
	reader := bufio.NewReader(&offsetReader{f: idx.f, off: offset})
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, fmt.Errorf("reading index record at offset %d: %w", offset, err)
	}
	var rec record
	if err := json.Unmarshal(trimNewline(line), &rec); err != nil {
		return nil, fmt.Errorf("parsing index record at offset %d: %w", offset, err)
	}
	if rec.Term != term {
		return nil, fmt.Errorf("index record at offset %d is for term %q, expected %q", offset, rec.Term, term)
	}
	postings := make(posting.List, len(rec.Postings))
	for i, pair := range rec.Postings {
		docID, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("parsing doc_id for term %q: unexpected type %T", term, pair[0])
		}
		tf, ok := pair[1].(float64)
		if !ok {
			return nil, fmt.Errorf("parsing tf for term %q: unexpected type %T", term, pair[1])
		}
		postings[i] = posting.Posting{DocID: docID, TF: int(tf)}
	}
	return postings, nil
}

func trimNewline(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		return b[:n-1]
	}
	return b
}

// offsetReader adapts os.File.ReadAt into an io.Reader starting at a fixed
// offset, so bufio.Reader can be used to find the line terminator without
// loading the whole file.
type offsetReader struct {
	f   *os.File
	off int64
}

func (r *offsetReader) Read(p []byte) (int, error) {
	n, err := r.f.ReadAt(p, r.off)
	r.off += int64(n)
	return n, err
}
