package memindex

import "testing"

func TestAddDocumentAggregatesTermFrequency(t *testing.T) {
	idx := New()
	idx.AddDocument("d1", []string{"alpha", "beta", "alpha"})

	entries := idx.DrainSorted()
	if len(entries) != 2 {
		t.Fatalf("expected 2 terms, got %d", len(entries))
	}
	if entries[0].Term != "alpha" || entries[1].Term != "beta" {
		t.Fatalf("expected sorted terms [alpha beta], got [%s %s]", entries[0].Term, entries[1].Term)
	}
	if entries[0].Postings[0].TF != 2 {
		t.Fatalf("expected tf=2 for alpha, got %d", entries[0].Postings[0].TF)
	}
	if entries[1].Postings[0].TF != 1 {
		t.Fatalf("expected tf=1 for beta, got %d", entries[1].Postings[0].TF)
	}
}

func TestDrainSortedOrdersPostingsByDocID(t *testing.T) {
	idx := New()
	idx.AddDocument("d3", []string{"x"})
	idx.AddDocument("d1", []string{"x"})
	idx.AddDocument("d2", []string{"x"})

	entries := idx.DrainSorted()
	if len(entries) != 1 {
		t.Fatalf("expected 1 term, got %d", len(entries))
	}
	ids := []string{entries[0].Postings[0].DocID, entries[0].Postings[1].DocID, entries[0].Postings[2].DocID}
	want := []string{"d1", "d2", "d3"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected doc-id order %v, got %v", want, ids)
		}
	}
}

func TestDrainSortedEmptiesIndex(t *testing.T) {
	idx := New()
	idx.AddDocument("d1", []string{"a"})
	idx.DrainSorted()
	if !idx.IsEmpty() {
		t.Fatal("expected index to be empty after drain")
	}
	if len(idx.DrainSorted()) != 0 {
		t.Fatal("expected second drain to be empty")
	}
}

func TestShouldFlushAtEightyPercentBudget(t *testing.T) {
	budget := int64(1000)
	idx := New()
	// 8 entries * 112 bytes = 896, which is >= 0.8*1000 = 800.
	for i := 0; i < 7; i++ {
		idx.AddDocument(docID(i), []string{"term"})
	}
	if idx.ShouldFlush(budget) {
		t.Fatalf("did not expect flush at %d entries (%d bytes) for budget %d", 7, idx.MemoryEstimate(), budget)
	}
	idx.AddDocument(docID(7), []string{"term"})
	if !idx.ShouldFlush(budget) {
		t.Fatalf("expected flush at %d entries (%d bytes) for budget %d", 8, idx.MemoryEstimate(), budget)
	}
}

func TestMaxEntries(t *testing.T) {
	// 0.8 * 1000 / 112 = 7.14 -> 7
	if got := MaxEntries(1000); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func docID(i int) string {
	return string(rune('a' + i))
}
