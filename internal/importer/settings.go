// Package importer implements the directory import pipeline: row
// fingerprinting, the dedup/upsert engine and the parse/import stage
// handlers driven by the task queue.
package importer

import (
	"encoding/json"
	"fmt"
	"strings"

	"listimport/internal/mapping"
)

const (
	defaultBatchSize = 50
	maxBatchSize     = 1000
)

// Settings is the immutable option snapshot captured when a job is
// submitted. Every stage of that job reads the same snapshot.
type Settings struct {
	ListingType string                `json:"listing_type"`
	Category    string                `json:"category,omitempty"`
	AuthorID    string                `json:"author_id,omitempty"`
	BatchSize   int                   `json:"batch_size,omitempty"`
	Delimiter   string                `json:"delimiter,omitempty"`
	TestMode    bool                  `json:"test_mode,omitempty"`
	Mapping     mapping.ColumnMapping `json:"mapping"`
}

// FieldError names one offending settings field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError carries every offending field so the operator can fix
// the whole form in one pass.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "invalid import settings: " + strings.Join(parts, "; ")
}

var allowedDelimiters = map[string]struct{}{
	"": {}, ",": {}, ";": {}, "\t": {}, "|": {},
}

// Validate checks every precondition and reports all failures at once.
func (s Settings) Validate() error {
	var fields []FieldError
	if strings.TrimSpace(s.ListingType) == "" {
		fields = append(fields, FieldError{Field: "listing_type", Reason: "required"})
	}
	if len(s.Mapping) == 0 {
		fields = append(fields, FieldError{Field: "mapping", Reason: "at least one column mapping is required"})
	}
	if s.BatchSize < 0 || s.BatchSize > maxBatchSize {
		fields = append(fields, FieldError{Field: "batch_size", Reason: fmt.Sprintf("must be between 0 and %d (0 applies the default)", maxBatchSize)})
	}
	if _, ok := allowedDelimiters[s.Delimiter]; !ok {
		fields = append(fields, FieldError{Field: "delimiter", Reason: "must be one of , ; | or tab"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// batch returns the effective chunk size.
func (s Settings) batch() int {
	if s.BatchSize <= 0 {
		return defaultBatchSize
	}
	return s.BatchSize
}

// comma returns the CSV delimiter rune.
func (s Settings) comma() rune {
	if s.Delimiter == "" {
		return ','
	}
	return rune(s.Delimiter[0])
}

func decodeSettings(raw []byte) (Settings, error) {
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("decoding settings snapshot: %w", err)
	}
	return s, nil
}
