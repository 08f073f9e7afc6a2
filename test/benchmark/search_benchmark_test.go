package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/marcazamora/corpusdex/internal/indexer/orchestrator"
	"github.com/marcazamora/corpusdex/internal/query/processor"
	"github.com/marcazamora/corpusdex/internal/query/scorer"
)

// corpusRecord mirrors the JSONL shape orchestrator.Run expects: one
// {"id": ..., "text": ...} object per line.
type corpusRecord struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// buildIndex writes numDocs synthetic documents to a corpus file, runs the
// indexing pipeline over it, and opens a Processor against the result.
func buildIndex(b *testing.B, numDocs int, ranker scorer.Ranker) *processor.Processor {
	b.Helper()
	terms := []string{"distributed", "search", "analytics", "platform", "indexing", "query", "engine", "ranking"}

	dir := b.TempDir()
	corpusPath := filepath.Join(dir, "corpus.jsonl")
	f, err := os.Create(corpusPath)
	if err != nil {
		b.Fatalf("creating corpus file: %v", err)
	}
	enc := json.NewEncoder(f)
	for i := 0; i < numDocs; i++ {
		text := fmt.Sprintf("this document covers %s %s %s in production systems",
			terms[i%len(terms)], terms[(i+2)%len(terms)], terms[(i+3)%len(terms)])
		if err := enc.Encode(corpusRecord{ID: fmt.Sprintf("doc-%d", i), Text: text}); err != nil {
			b.Fatalf("writing corpus record: %v", err)
		}
	}
	if err := f.Close(); err != nil {
		b.Fatalf("closing corpus file: %v", err)
	}

	indexDir := filepath.Join(dir, "index")
	if _, err := orchestrator.Run(context.Background(), orchestrator.Config{
		CorpusPath:       corpusPath,
		IndexDir:         indexDir,
		MemoryLimitBytes: 64 << 20,
		Workers:          4,
	}); err != nil {
		b.Fatalf("orchestrator.Run: %v", err)
	}

	proc, err := processor.Open(
		filepath.Join(indexDir, "final_inverted_index.jsonl"),
		filepath.Join(indexDir, "lexicon.jsonl"),
		filepath.Join(indexDir, "document_index.jsonl"),
		ranker,
	)
	if err != nil {
		b.Fatalf("processor.Open: %v", err)
	}
	b.Cleanup(func() { proc.Close() })
	return proc
}

// BenchmarkQueryBM25 measures end-to-end BM25 query latency across corpus
// sizes, covering tokenization, lexicon lookup, conjunctive intersection,
// and top-k scoring.
func BenchmarkQueryBM25(b *testing.B) {
	sizes := []int{100, 1000, 10000}
	for _, numDocs := range sizes {
		b.Run(fmt.Sprintf("docs_%d", numDocs), func(b *testing.B) {
			proc := buildIndex(b, numDocs, scorer.BM25)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				result, err := proc.Query("distributed search analytics", 10)
				if err != nil {
					b.Fatal(err)
				}
				_ = result
			}
		})
	}
}

// BenchmarkQueryTFIDF measures end-to-end TF-IDF query latency for
// comparison against BM25.
func BenchmarkQueryTFIDF(b *testing.B) {
	proc := buildIndex(b, 5000, scorer.TFIDF)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result, err := proc.Query("distributed search analytics", 10)
		if err != nil {
			b.Fatal(err)
		}
		_ = result
	}
}

// BenchmarkQueryMultiTerm measures how query latency scales with the number
// of conjunctive terms.
func BenchmarkQueryMultiTerm(b *testing.B) {
	proc := buildIndex(b, 5000, scorer.BM25)
	queries := []struct {
		name  string
		query string
	}{
		{"terms_1", "search"},
		{"terms_3", "search analytics platform"},
		{"terms_5", "search analytics platform indexing query"},
		{"terms_8", "distributed search analytics platform indexing query engine ranking"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				result, err := proc.Query(q.query, 10)
				if err != nil {
					b.Fatal(err)
				}
				_ = result
			}
		})
	}
}

// BenchmarkQueryParallel measures concurrent query throughput against a
// single resident Processor, mirroring -serve mode's usage pattern.
func BenchmarkQueryParallel(b *testing.B) {
	proc := buildIndex(b, 10000, scorer.BM25)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			result, err := proc.Query("distributed search analytics", 10)
			if err != nil {
				b.Fatal(err)
			}
			_ = result
		}
	})
}
