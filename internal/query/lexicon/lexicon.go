// Package lexicon loads lexicon.jsonl into memory: a map from term to its
// document frequency, corpus frequency, and byte offset into the final
// inverted index file (spec.md §4.6 step 3).
package lexicon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Entry is one term's lexicon row.
type Entry struct {
	Term   string `json:"term"`
	DF     int    `json:"df"`
	CF     int    `json:"cf"`
	Offset int64  `json:"offset"`
}

// Lexicon is a read-only, concurrency-safe lookup table for terms. It is
// built once and shared read-only across every query, matching spec.md
// §5's "read-only sharing of the lexicon" requirement — no locking is
// needed because it is never mutated after Load returns.
type Lexicon struct {
	entries map[string]Entry
}

// Load reads every line of path into memory.
func Load(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening lexicon file: %w", err)
	}
	defer f.Close()

	entries := make(map[string]Entry)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("parsing lexicon entry: %w", err)
		}
		entries[e.Term] = e
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading lexicon file: %w", err)
	}
	return &Lexicon{entries: entries}, nil
}

// Lookup returns a term's lexicon entry and whether it exists. A missing
// term means the term never appears in the corpus.
func (l *Lexicon) Lookup(term string) (Entry, bool) {
	e, ok := l.entries[term]
	return e, ok
}

// Size returns the number of distinct terms in the lexicon.
func (l *Lexicon) Size() int {
	return len(l.entries)
}
