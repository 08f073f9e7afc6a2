// Package processor implements the query pipeline (spec.md §4.6): tokenize,
// look up terms in the lexicon, intersect posting lists conjunctively,
// score candidates, and return the top-k documents.
package processor

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/marcazamora/corpusdex/internal/indexer/posting"
	"github.com/marcazamora/corpusdex/internal/indexer/tokenizer"
	"github.com/marcazamora/corpusdex/internal/query/docindex"
	"github.com/marcazamora/corpusdex/internal/query/indexfile"
	"github.com/marcazamora/corpusdex/internal/query/lexicon"
	"github.com/marcazamora/corpusdex/internal/query/scorer"
	"github.com/marcazamora/corpusdex/pkg/tracing"
)

// ScoredDoc is one ranked result.
type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Result is the outcome of processing one query.
type Result struct {
	Query     string      `json:"query"`
	TotalHits int         `json:"total_hits"`
	Results   []ScoredDoc `json:"results"`
}

// Processor answers queries against a built index, per spec.md §4.6's
// initialization contract: lexicon and document index loaded eagerly, the
// final index file opened for random access. A Processor is safe for
// concurrent use by multiple goroutines processing different queries, since
// the lexicon, document index, and index file handle are all read-only
// after construction and the Scorer's IDF cache is itself thread-safe.
type Processor struct {
	lex      *lexicon.Lexicon
	docs     *docindex.DocIndex
	index    *indexfile.File
	scorer   *scorer.Scorer
}

// Open loads the lexicon and document index and opens the final index file
// for random access, wiring a Scorer for the requested ranker.
func Open(indexFilePath, lexiconPath, docIndexPath string, ranker scorer.Ranker) (*Processor, error) {
	lex, err := lexicon.Load(lexiconPath)
	if err != nil {
		return nil, fmt.Errorf("loading lexicon: %w", err)
	}
	docs, err := docindex.Load(docIndexPath)
	if err != nil {
		return nil, fmt.Errorf("loading document index: %w", err)
	}
	idx, err := indexfile.Open(indexFilePath)
	if err != nil {
		return nil, fmt.Errorf("opening final index: %w", err)
	}
	s, err := scorer.New(ranker, scorer.Corpus{
		TotalDocs:    int64(docs.NumDocuments()),
		AvgDocLength: docs.AvgTokens(),
	})
	if err != nil {
		return nil, err
	}
	return &Processor{lex: lex, docs: docs, index: idx, scorer: s}, nil
}

// Close releases the underlying index file handle.
func (p *Processor) Close() error {
	return p.index.Close()
}

// Query answers one query, returning at most limit results in descending
// score order, ties broken by ascending doc_id (spec.md §4.6 step 6).
func (p *Processor) Query(query string, limit int) (Result, error) {
	_, span := tracing.StartSpan(context.Background(), "processor.Query", query)
	defer span.Log()
	defer span.End()

	terms := uniqueTerms(tokenizer.Tokenize(query))
	span.SetAttr("terms", len(terms))
	result := Result{Query: query, Results: []ScoredDoc{}}
	if len(terms) == 0 {
		return result, nil
	}

	postingsByTerm := make(map[string]posting.List, len(terms))
	dfByTerm := make(map[string]int, len(terms))
	for _, term := range terms {
		entry, ok := p.lex.Lookup(term)
		if !ok {
			// Missing term under conjunctive semantics: empty candidate set.
			return result, nil
		}
		postings, err := p.index.ReadTerm(term, entry.Offset)
		if err != nil {
			return Result{}, fmt.Errorf("reading postings for term %q: %w", term, err)
		}
		postingsByTerm[term] = postings
		dfByTerm[term] = entry.DF
	}

	candidates := intersect(postingsByTerm)
	result.TotalHits = len(candidates)
	if len(candidates) == 0 {
		return result, nil
	}

	// Index each term's posting list by doc_id once, so every candidate's tf
	// for that term is a single map lookup.
	tfIndex := make(map[string]map[string]int, len(terms))
	for term, postings := range postingsByTerm {
		m := make(map[string]int, len(postings))
		for _, p := range postings {
			m[p.DocID] = p.TF
		}
		tfIndex[term] = m
	}

	h := &scoredDocHeap{}
	heap.Init(h)
	for docID := range candidates {
		docEntry, _ := p.docs.Lookup(docID)
		var score float64
		for _, term := range terms {
			tf := tfIndex[term][docID]
			score += p.scorer.Score(term, dfByTerm[term], tf, docEntry.Tokens)
		}
		heap.Push(h, ScoredDoc{DocID: docID, Score: score})
		if limit > 0 && h.Len() > limit {
			heap.Pop(h)
		}
	}

	ranked := make([]ScoredDoc, h.Len())
	for i := len(ranked) - 1; i >= 0; i-- {
		ranked[i] = heap.Pop(h).(ScoredDoc)
	}
	result.Results = ranked
	return result, nil
}

// uniqueTerms preserves first-occurrence order while dropping duplicates,
// since a repeated query term should not be looked up or scored twice.
func uniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// intersect computes the conjunctive candidate set across every query
// term's posting list, using the shortest list as the seed for efficiency
// (spec.md §4.6 step 4).
func intersect(postingsByTerm map[string]posting.List) map[string]struct{} {
	if len(postingsByTerm) == 0 {
		return map[string]struct{}{}
	}
	var shortestTerm string
	shortestLen := -1
	for term, postings := range postingsByTerm {
		if shortestLen == -1 || len(postings) < shortestLen {
			shortestLen = len(postings)
			shortestTerm = term
		}
	}
	candidates := make(map[string]struct{}, shortestLen)
	for _, p := range postingsByTerm[shortestTerm] {
		candidates[p.DocID] = struct{}{}
	}
	for term, postings := range postingsByTerm {
		if term == shortestTerm {
			continue
		}
		docSet := make(map[string]struct{}, len(postings))
		for _, p := range postings {
			docSet[p.DocID] = struct{}{}
		}
		for docID := range candidates {
			if _, ok := docSet[docID]; !ok {
				delete(candidates, docID)
			}
		}
	}
	return candidates
}

// scoredDocHeap is a min-heap on score (ties broken by descending doc_id,
// so popping the minimum first evicts the doc_id-tie loser), used to keep
// only the top-k results without sorting the full candidate set.
type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
