package scorer

import "testing"

func TestNewRejectsUnknownRanker(t *testing.T) {
	if _, err := New("nonsense", Corpus{}); err == nil {
		t.Fatal("expected an error for an unknown ranker")
	}
}

func TestBM25ScoreIsPositiveForMatchingTerm(t *testing.T) {
	s, err := New(BM25, Corpus{TotalDocs: 100, AvgDocLength: 50})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	score := s.Score("alpha", 5, 3, 40)
	if score <= 0 {
		t.Fatalf("expected a positive BM25 score, got %f", score)
	}
}

func TestTFIDFScoreIsPositiveForMatchingTerm(t *testing.T) {
	s, err := New(TFIDF, Corpus{TotalDocs: 100, AvgDocLength: 50})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	score := s.Score("alpha", 5, 3, 40)
	if score <= 0 {
		t.Fatalf("expected a positive TF-IDF score, got %f", score)
	}
}

func TestIDFIsMemoizedPerTermAndRanker(t *testing.T) {
	s, err := New(BM25, Corpus{TotalDocs: 100, AvgDocLength: 50})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	first := s.IDF("alpha", 5)
	second := s.IDF("alpha", 999) // different df, cache should still return the memoized value
	if first != second {
		t.Fatalf("expected memoized IDF to ignore a later different df, got %f and %f", first, second)
	}
}

func TestRarerTermsScoreHigherThanCommonTerms(t *testing.T) {
	s, err := New(BM25, Corpus{TotalDocs: 1000, AvgDocLength: 100})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	rare := s.Score("rare", 2, 3, 100)
	common := s.Score("common", 500, 3, 100)
	if rare <= common {
		t.Fatalf("expected rare term to score higher than common term, got rare=%f common=%f", rare, common)
	}
}

func TestBM25PenalizesLongerDocuments(t *testing.T) {
	s, err := New(BM25, Corpus{TotalDocs: 1000, AvgDocLength: 100})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	short := s.Score("alpha", 50, 3, 50)
	long := s.Score("alpha", 50, 3, 500)
	if long >= short {
		t.Fatalf("expected a longer document to score lower for the same tf, got short=%f long=%f", short, long)
	}
}
