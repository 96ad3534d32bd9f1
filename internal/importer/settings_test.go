package importer

import (
	"errors"
	"testing"

	"listimport/internal/mapping"
)

func TestSettingsValidateReportsAllFields(t *testing.T) {
	err := Settings{Delimiter: "::"}.Validate()
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	got := make(map[string]bool, len(validation.Fields))
	for _, f := range validation.Fields {
		got[f.Field] = true
	}
	for _, field := range []string{"listing_type", "mapping", "delimiter"} {
		if !got[field] {
			t.Fatalf("expected %s flagged, got %+v", field, validation.Fields)
		}
	}
}

func TestSettingsValidateAccepts(t *testing.T) {
	s := Settings{
		ListingType: "restaurant",
		Delimiter:   ";",
		BatchSize:   100,
		Mapping:     mapping.ColumnMapping{{Column: "A", Field: "title"}},
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}
}

func TestSettingsBatchBounds(t *testing.T) {
	if got := (Settings{}).batch(); got != defaultBatchSize {
		t.Fatalf("expected default batch %d, got %d", defaultBatchSize, got)
	}
	if got := (Settings{BatchSize: 200}).batch(); got != 200 {
		t.Fatalf("expected explicit batch kept, got %d", got)
	}
	err := Settings{
		ListingType: "restaurant",
		BatchSize:   maxBatchSize + 1,
		Mapping:     mapping.ColumnMapping{{Column: "A", Field: "title"}},
	}.Validate()
	if err == nil {
		t.Fatalf("expected oversized batch rejected")
	}

	// Zero is valid and selects the default; negatives are not.
	valid := Settings{
		ListingType: "restaurant",
		Mapping:     mapping.ColumnMapping{{Column: "A", Field: "title"}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("zero batch size must pass validation: %v", err)
	}
	valid.BatchSize = -1
	if err := valid.Validate(); err == nil {
		t.Fatalf("expected negative batch size rejected")
	}
}

func TestSettingsComma(t *testing.T) {
	if got := (Settings{}).comma(); got != ',' {
		t.Fatalf("expected default comma, got %q", got)
	}
	if got := (Settings{Delimiter: "\t"}).comma(); got != '\t' {
		t.Fatalf("expected tab delimiter, got %q", got)
	}
}
