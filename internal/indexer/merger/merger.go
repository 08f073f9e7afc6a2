// Package merger implements the external k-way merge (spec.md §4.5) that
// combines every worker's partial-index files and document-index shards
// into the run's final outputs: the inverted index, the lexicon, the
// document index, and global stats.
package merger

import (
	"bufio"
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/marcazamora/corpusdex/internal/indexer/docshard"
	"github.com/marcazamora/corpusdex/internal/indexer/partial"
	"github.com/marcazamora/corpusdex/internal/indexer/posting"
	"github.com/marcazamora/corpusdex/pkg/tracing"
)

// LexiconEntry is one row of lexicon.jsonl.
type LexiconEntry struct {
	Term   string `json:"term"`
	DF     int    `json:"df"`
	CF     int    `json:"cf"`
	Offset int64  `json:"offset"`
}

// Stats is the content of stats.json.
type Stats struct {
	NumDocuments  int64   `json:"num_documents"`
	NumTokens     int64   `json:"num_tokens"`
	AvgDocLength  float64 `json:"avg_doc_length"`
}

// indexRecord is the JSON shape written to final_inverted_index.jsonl,
// matching spec.md §6's `{"term": T, "postings": [[doc, tf], ...]}`.
type indexRecord struct {
	Term     string      `json:"term"`
	Postings [][2]any    `json:"postings"`
}

// Merge combines partialFiles (from every worker, term-ascending within
// each file) and shardFiles (each worker's document-index shard) into
// outputs written under outDir: final_inverted_index.jsonl, lexicon.jsonl,
// document_index.jsonl, and stats.json. All four are written atomically via
// write-then-rename.
func Merge(outDir string, partialFiles, shardFiles []string) (Stats, error) {
	_, span := tracing.StartSpan(context.Background(), "merger.Merge", outDir)
	defer span.Log()
	defer span.End()
	span.SetAttr("partial_files", len(partialFiles))
	span.SetAttr("shard_files", len(shardFiles))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Stats{}, fmt.Errorf("creating output directory: %w", err)
	}

	numTokens, err := mergePostings(outDir, partialFiles)
	if err != nil {
		return Stats{}, err
	}

	numDocs, err := mergeDocumentIndex(outDir, shardFiles)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{NumDocuments: numDocs, NumTokens: numTokens}
	if numDocs > 0 {
		stats.AvgDocLength = float64(numTokens) / float64(numDocs)
	}
	if err := writeAtomicJSON(filepath.Join(outDir, "stats.json"), stats); err != nil {
		return Stats{}, fmt.Errorf("writing stats.json: %w", err)
	}
	return stats, nil
}

// cursorHeap orders open partial-file cursors by their current term, tying
// broken by cursor id for deterministic merge order (spec.md §4.5 step 1).
type cursorHeap struct {
	readers []*partial.Reader
	ids     []int
}

func (h *cursorHeap) Len() int { return len(h.ids) }

func (h *cursorHeap) Less(i, j int) bool {
	ei, _ := h.readers[h.ids[i]].Peek()
	ej, _ := h.readers[h.ids[j]].Peek()
	if ei.Term != ej.Term {
		return ei.Term < ej.Term
	}
	return h.ids[i] < h.ids[j]
}

func (h *cursorHeap) Swap(i, j int) { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }

func (h *cursorHeap) Push(x any) { h.ids = append(h.ids, x.(int)) }

func (h *cursorHeap) Pop() any {
	old := h.ids
	n := len(old)
	id := old[n-1]
	h.ids = old[:n-1]
	return id
}

// mergePostings performs the k-way merge of every partial file's postings
// into final_inverted_index.jsonl and lexicon.jsonl, returning the total
// token count (sum of all posting tf values, i.e. total corpus tokens
// contributing to some term).
func mergePostings(outDir string, partialFiles []string) (int64, error) {
	indexPath := filepath.Join(outDir, "final_inverted_index.jsonl")
	lexiconPath := filepath.Join(outDir, "lexicon.jsonl")
	indexTmp := indexPath + ".tmp"
	lexiconTmp := lexiconPath + ".tmp"

	indexFile, err := os.Create(indexTmp)
	if err != nil {
		return 0, fmt.Errorf("creating final index temp file: %w", err)
	}
	defer os.Remove(indexTmp)
	lexiconFile, err := os.Create(lexiconTmp)
	if err != nil {
		indexFile.Close()
		return 0, fmt.Errorf("creating lexicon temp file: %w", err)
	}
	defer os.Remove(lexiconTmp)

	indexWriter := bufio.NewWriter(indexFile)
	lexiconWriter := bufio.NewWriter(lexiconFile)
	lexiconEnc := json.NewEncoder(lexiconWriter)

	readers := make([]*partial.Reader, 0, len(partialFiles))
	for _, path := range partialFiles {
		r, err := partial.OpenReader(path)
		if err != nil {
			return 0, err
		}
		readers = append(readers, r)
	}
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	h := &cursorHeap{readers: readers}
	heap.Init(h)
	for i, r := range readers {
		if _, ok := r.Peek(); ok {
			heap.Push(h, i)
		}
		if err := r.Err(); err != nil {
			return 0, err
		}
	}

	var offset int64
	var numTokens int64

	for h.Len() > 0 {
		firstID := heap.Pop(h).(int)
		entry, _ := readers[firstID].Peek()
		term := entry.Term
		merged := append(posting.List{}, entry.Postings...)
		advanceCursor(readers[firstID], h, firstID)

		for h.Len() > 0 {
			nextID := h.ids[0]
			nextEntry, _ := readers[nextID].Peek()
			if nextEntry.Term != term {
				break
			}
			heap.Pop(h)
			merged = append(merged, nextEntry.Postings...)
			advanceCursor(readers[nextID], h, nextID)
		}

		merged = sumDuplicateDocIDs(merged)
		sort.Slice(merged, func(i, j int) bool { return merged[i].DocID < merged[j].DocID })

		rec := indexRecord{Term: term, Postings: make([][2]any, len(merged))}
		for i, p := range merged {
			rec.Postings[i] = [2]any{p.DocID, p.TF}
			numTokens += int64(p.TF)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("marshaling index record for term %q: %w", term, err)
		}
		if _, err := indexWriter.Write(data); err != nil {
			return 0, fmt.Errorf("writing index record: %w", err)
		}
		if err := indexWriter.WriteByte('\n'); err != nil {
			return 0, fmt.Errorf("writing newline: %w", err)
		}

		lexEntry := LexiconEntry{
			Term:   term,
			DF:     merged.DocFreq(),
			CF:     merged.CorpusFreq(),
			Offset: offset,
		}
		if err := lexiconEnc.Encode(lexEntry); err != nil {
			return 0, fmt.Errorf("writing lexicon entry for term %q: %w", term, err)
		}

		offset += int64(len(data)) + 1
	}
	for _, r := range readers {
		if err := r.Err(); err != nil {
			return 0, err
		}
	}

	if err := finalizeFile(indexFile, indexWriter, indexTmp, indexPath); err != nil {
		return 0, err
	}
	if err := finalizeFile(lexiconFile, lexiconWriter, lexiconTmp, lexiconPath); err != nil {
		return 0, err
	}
	return numTokens, nil
}

// advanceCursor moves a cursor to its next record and reinserts it into the
// heap if one is available.
func advanceCursor(r *partial.Reader, h *cursorHeap, id int) {
	r.Advance()
	if _, ok := r.Peek(); ok {
		heap.Push(h, id)
	}
}

// sumDuplicateDocIDs collapses postings that share a doc_id by summing their
// tf, defensively handling the case spec.md §9 calls out as impossible under
// disjoint doc_id partitioning but not structurally enforced.
func sumDuplicateDocIDs(list posting.List) posting.List {
	byDoc := make(map[string]int, len(list))
	order := make([]string, 0, len(list))
	for _, p := range list {
		if _, seen := byDoc[p.DocID]; !seen {
			order = append(order, p.DocID)
		}
		byDoc[p.DocID] += p.TF
	}
	if len(order) == len(list) {
		return list
	}
	out := make(posting.List, 0, len(order))
	for _, docID := range order {
		out = append(out, posting.Posting{DocID: docID, TF: byDoc[docID]})
	}
	return out
}

// mergeDocumentIndex concatenates every worker's document-index shard (no
// key conflicts, doc_id partitioning is disjoint by construction) and
// writes document_index.jsonl sorted by doc_id.
func mergeDocumentIndex(outDir string, shardFiles []string) (int64, error) {
	var all []docshard.Record
	for _, path := range shardFiles {
		records, err := docshard.ReadShard(path)
		if err != nil {
			return 0, err
		}
		all = append(all, records...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].DocID < all[j].DocID })

	docIndexPath := filepath.Join(outDir, "document_index.jsonl")
	tmpPath := docIndexPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating document index temp file: %w", err)
	}
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range all {
		row := struct {
			DocID  string `json:"doc_id"`
			Tokens int    `json:"tokens"`
			Chars  int    `json:"chars"`
		}{rec.DocID, rec.Tokens, rec.Chars}
		if err := enc.Encode(row); err != nil {
			return 0, fmt.Errorf("writing document index entry for %q: %w", rec.DocID, err)
		}
	}
	if err := finalizeFile(f, w, tmpPath, docIndexPath); err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

// finalizeFile flushes, syncs, closes, and atomically renames a temp file
// into place.
func finalizeFile(f *os.File, w *bufio.Writer, tmpPath, finalPath string) error {
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing %s: %w", finalPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", finalPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", finalPath, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming into %s: %w", finalPath, err)
	}
	return nil
}

// writeAtomicJSON marshals v as indented JSON and writes it atomically.
func writeAtomicJSON(path string, v any) error {
	tmpPath := path + ".tmp"
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling: %w", err)
	}
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
