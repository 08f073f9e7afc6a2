// Package benchmark contains Go benchmarks for the indexing pipeline's
// hot paths: tokenization and the per-worker memory index.
package benchmark

import (
	"fmt"
	"testing"

	"github.com/marcazamora/corpusdex/internal/indexer/memindex"
	"github.com/marcazamora/corpusdex/internal/indexer/tokenizer"
)

// BenchmarkTokenizeSingleDoc measures per-document tokenization throughput.
func BenchmarkTokenizeSingleDoc(b *testing.B) {
	text := "this is a benchmark document with several terms for testing the indexing performance of our memory index"
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		terms := tokenizer.Tokenize(text)
		_ = terms
	}
}

// BenchmarkMemIndexAddDocument measures per-document insert throughput into
// the in-memory posting accumulator.
func BenchmarkMemIndexAddDocument(b *testing.B) {
	idx := memindex.New()
	terms := tokenizer.Tokenize("distributed search engine with distributed indexing and query processing")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		docID := fmt.Sprintf("doc-%d", i)
		idx.AddDocument(docID, terms)
	}
}

// BenchmarkMemIndexDrainSorted measures the cost of draining and sorting
// 10 000 documents' worth of postings.
func BenchmarkMemIndexDrainSorted(b *testing.B) {
	terms := tokenizer.Tokenize("distributed search engine with distributed indexing and query processing")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		idx := memindex.New()
		for d := 0; d < 10000; d++ {
			idx.AddDocument(fmt.Sprintf("doc-%d", d), terms)
		}
		b.StartTimer()
		entries := idx.DrainSorted()
		_ = entries
	}
}

// BenchmarkMemIndexMemoryEstimate measures the cost of reading the running
// memory estimate under concurrent access.
func BenchmarkMemIndexMemoryEstimate(b *testing.B) {
	idx := memindex.New()
	terms := tokenizer.Tokenize("distributed search engine with distributed indexing and query processing")
	for d := 0; d < 10000; d++ {
		idx.AddDocument(fmt.Sprintf("doc-%d", d), terms)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = idx.MemoryEstimate()
		}
	})
}
