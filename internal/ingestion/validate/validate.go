// Package validate provides field-presence validation for corpus records,
// generalized from the ingestion pipeline's request validator to the
// indexer's simpler (id, text) record shape.
package validate

import (
	"errors"
	"strings"
)

// ErrMalformedRecord marks a corpus record that failed validation. It is a
// counted, non-fatal condition: callers skip the record and increment a
// counter rather than aborting the run (spec.md §4.4).
var ErrMalformedRecord = errors.New("malformed corpus record")

// Record is the minimal shape a corpus line must decode into before
// validation.
type Record struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Validate reports ErrMalformedRecord if id or text is missing. Both fields
// are required and non-empty after trimming surrounding whitespace; there is
// no length ceiling here, unlike the ingestion HTTP validator, since corpus
// documents are not size-bounded by an API contract.
func Validate(rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return ErrMalformedRecord
	}
	if strings.TrimSpace(rec.Text) == "" {
		return ErrMalformedRecord
	}
	return nil
}
