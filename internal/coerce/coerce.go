// Package coerce converts raw spreadsheet strings into typed values:
// dates, multi-value lists, taxonomy term sets and numeric coordinates.
// All functions are pure; callers decide what to do with failures.
package coerce

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CanonicalLayout is the normalized representation every parsed date is
// converted to before it reaches the record store.
const CanonicalLayout = "2006-01-02 15:04:05"

// FormatAuto marks a column whose format could not be detected. Values in
// such a column are passed through with a best-effort parse per value.
const FormatAuto = "auto"

type dateFormat struct {
	layout  string
	pattern *regexp.Regexp
}

// Candidate formats are tried in a fixed order: ISO first, then US, EU and
// dotted variants, each with and without a time suffix. Both zero-padded
// and unpadded layouts are listed so the round-trip check stays exact.
var dateFormats = []dateFormat{
	{"2006-01-02 15:04:05", regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{1,2}:\d{2}:\d{2}$`)},
	{"2006-01-02 15:04", regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{1,2}:\d{2}$`)},
	{"2006-01-02", regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)},
	{"01/02/2006 15:04:05", regexp.MustCompile(`^\d{2}/\d{2}/\d{4} \d{1,2}:\d{2}:\d{2}$`)},
	{"01/02/2006 15:04", regexp.MustCompile(`^\d{2}/\d{2}/\d{4} \d{1,2}:\d{2}$`)},
	{"01/02/2006", regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)},
	{"1/2/2006", regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)},
	{"02/01/2006", regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)},
	{"2/1/2006", regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)},
	{"02.01.2006 15:04:05", regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4} \d{1,2}:\d{2}:\d{2}$`)},
	{"02.01.2006", regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)},
	{"2.1.2006", regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4}$`)},
}

// Layouts accepted by the free-form fallback parser.
var freeformLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// DetectDateFormat inspects a sample of raw values and returns the layout
// shared by all of them. Every non-empty sample must both match the
// format's pattern and survive a parse/format round trip before the format
// is adopted for the column. When no candidate fits but the free-form
// parser understands the samples, FormatAuto is returned; FormatAuto is
// also the opaque-text fallback, so callers treat it as best effort.
func DetectDateFormat(samples []string) string {
	trimmed := make([]string, 0, len(samples))
	for _, s := range samples {
		if s = strings.TrimSpace(s); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) == 0 {
		return FormatAuto
	}
	for _, f := range dateFormats {
		ok := true
		for _, s := range trimmed {
			if !f.pattern.MatchString(s) || !roundTrips(s, f.layout) {
				ok = false
				break
			}
		}
		if ok {
			return f.layout
		}
	}
	return FormatAuto
}

func roundTrips(value, layout string) bool {
	t, err := time.ParseInLocation(layout, value, time.UTC)
	if err != nil {
		return false
	}
	return t.Format(layout) == value
}

// ConvertDate normalizes a raw value to CanonicalLayout in UTC. With
// layout FormatAuto each value gets a best-effort free-form parse; a value
// that resists parsing is returned unchanged with ok=false.
func ConvertDate(value, layout string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	if layout != FormatAuto {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC().Format(CanonicalLayout), true
		}
	}
	if t, ok := parseFreeform(value); ok {
		return t.UTC().Format(CanonicalLayout), true
	}
	return value, false
}

func parseFreeform(value string) (time.Time, bool) {
	for _, f := range dateFormats {
		if f.pattern.MatchString(value) {
			if t, err := time.ParseInLocation(f.layout, value, time.UTC); err == nil {
				return t, true
			}
		}
	}
	for _, layout := range freeformLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SplitMulti breaks an option-field value on commas and newlines, trimming
// whitespace and dropping empties. Order is preserved, duplicates removed.
func SplitMulti(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	return dedupe(fields)
}

// SplitTerms breaks a taxonomy cell on commas into a deduplicated, ordered
// set of term names.
func SplitTerms(value string) []string {
	return dedupe(strings.Split(value, ","))
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ParseCoordinate parses a latitude or longitude cell, tolerating
// surrounding whitespace and a comma decimal separator.
func ParseCoordinate(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if strings.Count(value, ",") == 1 && !strings.Contains(value, ".") {
		value = strings.Replace(value, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
