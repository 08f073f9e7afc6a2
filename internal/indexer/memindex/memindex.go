// Package memindex implements the per-worker, memory-budgeted in-memory
// posting accumulator (spec.md §4.1). Each worker owns exactly one Index;
// there is no cross-worker sharing, and the owning worker flushes it
// synchronously on its own goroutine. The mutex makes concurrent reads such
// as MemoryEstimate safe alongside that worker's writes.
package memindex

import (
	"sort"
	"sync"

	"github.com/marcazamora/corpusdex/internal/indexer/posting"
)

// PerEntryCostBytes is the fixed per-posting-entry memory cost used by
// MemoryEstimate. It is a platform calibration, not a semantic contract
// (spec.md §4.1, Design Notes §9): 112 bytes approximates a map-of-map
// entry (string header, slice header, int, and bucket overhead) on a
// 64-bit Go runtime. Unique-term overhead is ignored because unique terms
// are few relative to the postings themselves.
const PerEntryCostBytes = 112

// Index accumulates postings for the documents assigned to one worker
// while tracking an approximate memory footprint.
type Index struct {
	mu        sync.RWMutex
	terms     map[string]map[string]int // term -> docID -> tf
	entries   int64                     // total (term, docID) postings currently held
	costBytes int64                     // per-entry memory cost used by MemoryEstimate
}

// New creates an empty Index using the default PerEntryCostBytes.
func New() *Index {
	return NewWithCost(PerEntryCostBytes)
}

// NewWithCost creates an empty Index using costBytes as the per-entry
// memory estimate, overriding the spec's default calibration (config's
// perEntryCostBytes knob, per spec.md §4.1 Design Notes §9).
func NewWithCost(costBytes int64) *Index {
	if costBytes <= 0 {
		costBytes = PerEntryCostBytes
	}
	return &Index{
		terms:     make(map[string]map[string]int),
		costBytes: costBytes,
	}
}

// AddDocument scans terms once, aggregates per-term occurrence counts for
// docID, and appends one posting per distinct term to the index.
func (idx *Index) AddDocument(docID string, terms []string) {
	counts := make(map[string]int, len(terms))
	for _, t := range terms {
		counts[t]++
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for term, tf := range counts {
		docs, ok := idx.terms[term]
		if !ok {
			docs = make(map[string]int)
			idx.terms[term] = docs
		}
		if _, exists := docs[docID]; !exists {
			idx.entries++
		}
		docs[docID] += tf
	}
}

// MemoryEstimate approximates the structure's memory usage as
// entries * PerEntryCostBytes, per spec.md §4.1.
func (idx *Index) MemoryEstimate() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.entries * idx.costBytes
}

// ShouldFlush reports whether the memory estimate has reached 80% of the
// given per-worker budget.
func (idx *Index) ShouldFlush(budgetBytes int64) bool {
	return idx.MemoryEstimate() >= int64(0.8*float64(budgetBytes))
}

// MaxEntries returns floor(0.8 * budgetBytes / PerEntryCostBytes), the
// entry count at which a flush becomes due for the given budget.
func MaxEntries(budgetBytes int64) int64 {
	return int64(0.8 * float64(budgetBytes) / float64(PerEntryCostBytes))
}

// DrainSorted returns every (term, posting list) pair currently held, terms
// in ascending lexicographic order and each posting list in ascending
// doc-ID order, then empties the index.
func (idx *Index) DrainSorted() []posting.Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entries := make([]posting.Entry, 0, len(idx.terms))
	for term, docs := range idx.terms {
		postings := make(posting.List, 0, len(docs))
		for docID, tf := range docs {
			postings = append(postings, posting.Posting{DocID: docID, TF: tf})
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		entries = append(entries, posting.Entry{Term: term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})

	idx.terms = make(map[string]map[string]int)
	idx.entries = 0
	return entries
}

// IsEmpty reports whether the index currently holds no postings.
func (idx *Index) IsEmpty() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.entries == 0
}
