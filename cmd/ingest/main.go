// Command ingest stages one or more raw JSONL corpus sources into a single
// canonical corpus file for cmd/indexer to consume. It applies the same
// field-presence validation the indexer's document reader expects
// and drops duplicate documents by content hash, keeping the first
// occurrence across all input files in the order given.
//
// This is a pre-pass over a static corpus, run once before indexing; it
// never touches a live index and has no HTTP surface.
//
// Usage:
//
//	ingest --out corpus.jsonl raw1.jsonl raw2.jsonl ...
package main

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/marcazamora/corpusdex/internal/ingestion/validate"
	apperrors "github.com/marcazamora/corpusdex/pkg/errors"
	"github.com/marcazamora/corpusdex/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the canonical corpus file (required)")
	flag.StringVar(&outPath, "o", "", "shorthand for --out")
	flag.Parse()

	logger.Setup("info", "text")

	if outPath == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: ingest --out corpus.jsonl SOURCE.jsonl [SOURCE2.jsonl ...]")
		return apperrors.ExitConfigError
	}

	out, err := os.Create(outPath)
	if err != nil {
		wrapped := apperrors.New(apperrors.ErrIO, fmt.Sprintf("creating output file: %v", err))
		slog.Error("ingest failed", "error", wrapped)
		return apperrors.ExitCode(wrapped)
	}
	defer out.Close()

	enc := json.NewEncoder(out)
	seen := make(map[string]struct{})
	var kept, skippedMalformed, skippedDuplicate int

	for _, sourcePath := range flag.Args() {
		n, malformed, dup, err := ingestFile(sourcePath, enc, seen)
		if err != nil {
			wrapped := apperrors.New(apperrors.ErrIO, fmt.Sprintf("reading %s: %v", sourcePath, err))
			slog.Error("ingest failed", "error", wrapped)
			return apperrors.ExitCode(wrapped)
		}
		kept += n
		skippedMalformed += malformed
		skippedDuplicate += dup
		slog.Info("staged source", "path", sourcePath, "kept", n)
	}

	slog.Info("ingest complete",
		"out", outPath,
		"kept", kept,
		"skipped_malformed", skippedMalformed,
		"skipped_duplicate", skippedDuplicate,
	)
	return apperrors.ExitOK
}

// ingestFile reads one JSONL source, validating and deduplicating each
// record against seen (shared across all sources so a duplicate in a later
// file is dropped too), and appends surviving records to enc.
func ingestFile(path string, enc *json.Encoder, seen map[string]struct{}) (kept, malformed, duplicate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec validate.Record
		if jsonErr := json.Unmarshal(line, &rec); jsonErr != nil {
			malformed++
			continue
		}
		if verr := validate.Validate(rec); verr != nil {
			malformed++
			continue
		}
		hash := contentHash(rec.Text)
		if _, exists := seen[hash]; exists {
			duplicate++
			continue
		}
		seen[hash] = struct{}{}
		if encErr := enc.Encode(rec); encErr != nil {
			return kept, malformed, duplicate, encErr
		}
		kept++
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return kept, malformed, duplicate, scanErr
	}
	return kept, malformed, duplicate, nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
