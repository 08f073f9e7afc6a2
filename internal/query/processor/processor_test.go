package processor

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/marcazamora/corpusdex/internal/query/scorer"
)

// buildFixture writes a tiny final index / lexicon / document index set,
// mirroring exactly what the merger produces, so the processor can be
// tested without running a full indexing pass.
func buildFixture(t *testing.T) (indexPath, lexiconPath, docIndexPath string) {
	t.Helper()
	dir := t.TempDir()

	indexLines := []string{
		`{"term":"alpha","postings":[["d1",2],["d2",1]]}`,
		`{"term":"beta","postings":[["d1",1],["d3",4]]}`,
	}
	offset := int64(0)
	lexEntries := make([]string, 0, len(indexLines))
	terms := []string{"alpha", "beta"}
	dfs := []int{2, 2}
	cfs := []int{3, 5}
	for i, line := range indexLines {
		lexEntries = append(lexEntries, jsonLexEntry(terms[i], dfs[i], cfs[i], offset))
		offset += int64(len(line)) + 1
	}

	indexPath = filepath.Join(dir, "final_inverted_index.jsonl")
	writeLines(t, indexPath, indexLines)

	lexiconPath = filepath.Join(dir, "lexicon.jsonl")
	writeLines(t, lexiconPath, lexEntries)

	docIndexPath = filepath.Join(dir, "document_index.jsonl")
	writeLines(t, docIndexPath, []string{
		`{"doc_id":"d1","tokens":5,"chars":30}`,
		`{"doc_id":"d2","tokens":3,"chars":15}`,
		`{"doc_id":"d3","tokens":8,"chars":40}`,
	})
	return indexPath, lexiconPath, docIndexPath
}

func jsonLexEntry(term string, df, cf int, offset int64) string {
	return fmt.Sprintf(`{"term":"%s","df":%d,"cf":%d,"offset":%d}`, term, df, cf, offset)
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
}

func TestQueryReturnsConjunctiveMatchForSingleTerm(t *testing.T) {
	indexPath, lexiconPath, docIndexPath := buildFixture(t)
	p, err := Open(indexPath, lexiconPath, docIndexPath, scorer.BM25)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer p.Close()

	result, err := p.Query("alpha", 10)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if result.TotalHits != 2 {
		t.Fatalf("expected 2 hits for alpha, got %d", result.TotalHits)
	}
}

func TestQueryConjunctionOfTwoTermsIntersects(t *testing.T) {
	indexPath, lexiconPath, docIndexPath := buildFixture(t)
	p, err := Open(indexPath, lexiconPath, docIndexPath, scorer.BM25)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer p.Close()

	result, err := p.Query("alpha beta", 10)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if result.TotalHits != 1 {
		t.Fatalf("expected 1 hit (only d1 has both terms), got %d", result.TotalHits)
	}
	if len(result.Results) != 1 || result.Results[0].DocID != "d1" {
		t.Fatalf("expected d1 as the only result, got %+v", result.Results)
	}
}

func TestQueryWithMissingTermReturnsZeroResults(t *testing.T) {
	indexPath, lexiconPath, docIndexPath := buildFixture(t)
	p, err := Open(indexPath, lexiconPath, docIndexPath, scorer.TFIDF)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer p.Close()

	result, err := p.Query("alpha nonexistentterm", 10)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if result.TotalHits != 0 || len(result.Results) != 0 {
		t.Fatalf("expected zero results for a missing term, got %+v", result)
	}
}

func TestQueryRespectsLimit(t *testing.T) {
	indexPath, lexiconPath, docIndexPath := buildFixture(t)
	p, err := Open(indexPath, lexiconPath, docIndexPath, scorer.BM25)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer p.Close()

	result, err := p.Query("alpha", 1)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(result.Results) != 1 {
		t.Fatalf("expected exactly 1 result under limit=1, got %d", len(result.Results))
	}
}

func TestQueryResultsDescendingByScore(t *testing.T) {
	indexPath, lexiconPath, docIndexPath := buildFixture(t)
	p, err := Open(indexPath, lexiconPath, docIndexPath, scorer.BM25)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer p.Close()

	result, err := p.Query("alpha", 10)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	for i := 1; i < len(result.Results); i++ {
		if result.Results[i-1].Score < result.Results[i].Score {
			t.Fatalf("expected descending score order, got %+v", result.Results)
		}
	}
}
