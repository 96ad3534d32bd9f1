// Package mapping translates source spreadsheet columns into typed listing
// attributes. Destination-field kinds are resolved once when a mapping is
// bound, not re-derived per value.
package mapping

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"listimport/internal/coerce"
	"listimport/internal/geo"
	"listimport/internal/listing"
)

var (
	// ErrNoTitle marks a row that produced no usable title. Counted as failed.
	ErrNoTitle = errors.New("row has no usable title")
	// ErrEmptyRow marks a row where no mapped column produced a value.
	// Counted as skipped, not failed.
	ErrEmptyRow = errors.New("row produced no mapped values")
)

// FieldKind classifies a destination field. The kind decides how a raw
// cell is coerced before assignment.
type FieldKind int

const (
	KindScalar FieldKind = iota
	KindTitle
	KindBody
	KindStatus
	KindDate
	KindTaxonomy
	KindOptionSingle
	KindOptionMulti
	KindLocation
	KindMedia
)

// ColumnRule maps one source column onto one destination field. Order in a
// ColumnMapping is the order cells are applied in.
type ColumnRule struct {
	Column string `json:"column"`
	Field  string `json:"field"`
}

// ColumnMapping is the ordered column->field mapping supplied by the
// operator. Empty or unmapped columns are simply absent.
type ColumnMapping []ColumnRule

// BoundColumn is a ColumnRule with its destination kind resolved.
type BoundColumn struct {
	Column   string
	Field    string
	Kind     FieldKind
	Taxonomy string // set for KindTaxonomy
	Part     string // set for KindLocation: street/city/region/country/postal/lat/lon
	Layout   string // set for KindDate, coerce.FormatAuto when undetected
}

var taxInputPattern = regexp.MustCompile(`^tax_input\[([^\]\s]+)\]$`)

var locationParts = map[string]string{
	"address":   "street",
	"street":    "street",
	"city":      "city",
	"region":    "region",
	"state":     "region",
	"country":   "country",
	"postal":    "postal",
	"zip":       "postal",
	"postcode":  "postal",
	"lat":       "lat",
	"latitude":  "lat",
	"lon":       "lon",
	"lng":       "lon",
	"longitude": "lon",
}

// Build resolves every rule's destination kind against the field registry.
// When two columns address the same destination the later rule wins; the
// destination is the resolved one, so "Title", "title" and "listing_title"
// all collapse onto the same slot. The samples callback supplies raw values
// for date-format detection and may be nil.
func Build(cm ColumnMapping, listingType string, reg listing.FieldRegistry, samples func(column string) []string) []BoundColumn {
	bound := make([]BoundColumn, 0, len(cm))
	byField := make(map[string]int, len(cm))
	for _, rule := range cm {
		if strings.TrimSpace(rule.Column) == "" || strings.TrimSpace(rule.Field) == "" {
			continue
		}
		bc := classify(rule, listingType, reg)
		if bc.Kind == KindDate {
			bc.Layout = coerce.FormatAuto
			if samples != nil {
				bc.Layout = coerce.DetectDateFormat(samples(rule.Column))
			}
		}
		key := dedupKey(bc)
		if prev, ok := byField[key]; ok {
			bound = append(bound[:prev], bound[prev+1:]...)
			for f, i := range byField {
				if i > prev {
					byField[f] = i - 1
				}
			}
		}
		byField[key] = len(bound)
		bound = append(bound, bc)
	}
	return bound
}

// dedupKey names the destination a bound column writes to. Synthetic fields
// share one slot per resolved destination regardless of the alias or casing
// the operator typed.
func dedupKey(bc BoundColumn) string {
	switch bc.Kind {
	case KindTitle:
		return "title"
	case KindBody:
		return "body"
	case KindStatus:
		return "status"
	case KindTaxonomy:
		return "tax:" + bc.Taxonomy
	case KindLocation:
		return "loc:" + bc.Part
	case KindDate:
		if isPublishDateField(bc.Field) {
			return "published_at"
		}
	}
	return "field:" + strings.ToLower(strings.TrimSpace(bc.Field))
}

// isPublishDateField reports whether a date field writes the record's
// publish timestamp rather than a custom field.
func isPublishDateField(field string) bool {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "date", "publish_date", "published_at":
		return true
	}
	return false
}

func classify(rule ColumnRule, listingType string, reg listing.FieldRegistry) BoundColumn {
	bc := BoundColumn{Column: rule.Column, Field: rule.Field}
	field := strings.ToLower(strings.TrimSpace(rule.Field))

	if m := taxInputPattern.FindStringSubmatch(field); m != nil {
		bc.Kind, bc.Taxonomy = KindTaxonomy, m[1]
		return bc
	}
	switch field {
	case "listing_tags", "post_tags":
		bc.Kind, bc.Taxonomy = KindTaxonomy, "listing_tag"
		return bc
	case "listing_category", "post_category":
		bc.Kind, bc.Taxonomy = KindTaxonomy, "listing_category"
		return bc
	case "title", "listing_title":
		bc.Kind = KindTitle
		return bc
	case "body", "description", "content":
		bc.Kind = KindBody
		return bc
	case "status":
		bc.Kind = KindStatus
		return bc
	case "date", "publish_date", "published_at":
		bc.Kind = KindDate
		return bc
	case "gallery", "images", "image":
		bc.Kind = KindMedia
		return bc
	}
	if part, ok := locationParts[field]; ok {
		bc.Kind, bc.Part = KindLocation, part
		return bc
	}
	if reg != nil {
		switch fieldType, _ := reg.FieldType(rule.Field, listingType); fieldType {
		case "date":
			bc.Kind = KindDate
			return bc
		case "select", "radio":
			bc.Kind = KindOptionSingle
			return bc
		case "checkbox", "multiselect":
			bc.Kind = KindOptionMulti
			return bc
		}
	}
	bc.Kind = KindScalar
	return bc
}

// Logger receives non-fatal narration during mapping: degraded lookups,
// skipped terms.
type Logger interface {
	Warnf(format string, args ...any)
}

// Geocoder is the reverse-geocode collaborator. Implementations enforce
// their own timeout and may return an empty address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon string) (geo.Address, error)
}

// Engine maps source rows to normalized listing records.
type Engine struct {
	Taxonomies      listing.TaxonomyStore
	Registry        listing.FieldRegistry
	Geocoder        Geocoder
	DefaultLocation listing.Location
}

// Result is a mapped row: the normalized record plus any gallery URLs the
// upsert engine should fetch.
type Result struct {
	Record    listing.Record
	MediaURLs []string
}

// MapRow applies a bound mapping to one source row. It returns ErrEmptyRow
// when nothing mapped (skip) and ErrNoTitle when the record lacks a title
// (fail). Collaborator hiccups degrade the affected sub-value and are
// narrated through log.
func (e *Engine) MapRow(ctx context.Context, row map[string]string, bound []BoundColumn, listingType string, testMode bool, log Logger) (*Result, error) {
	rec := listing.Record{
		ListingType: listingType,
		Fields:      make(map[string]string),
		Terms:       make(map[string][]listing.Term),
	}
	var (
		result   Result
		loc      listing.Location
		assigned bool
		taxOrder []string
		taxNames = make(map[string][]string)
	)

	for _, bc := range bound {
		value := strings.TrimSpace(row[bc.Column])
		if value == "" {
			continue
		}
		assigned = true
		switch bc.Kind {
		case KindTitle:
			rec.Title = value
		case KindBody:
			rec.Body = value
		case KindStatus:
			rec.Status = value
		case KindDate:
			converted, ok := coerce.ConvertDate(value, bc.Layout)
			if !ok && log != nil {
				log.Warnf("column %q: unparseable date %q kept as-is", bc.Column, value)
			}
			if isPublishDateField(bc.Field) {
				rec.PublishedAt = converted
			} else {
				rec.Fields[bc.Field] = converted
			}
		case KindTaxonomy:
			names := coerce.SplitTerms(value)
			if len(names) == 0 {
				continue
			}
			if _, ok := taxNames[bc.Taxonomy]; !ok {
				taxOrder = append(taxOrder, bc.Taxonomy)
			}
			taxNames[bc.Taxonomy] = append(taxNames[bc.Taxonomy], names...)
		case KindOptionSingle, KindOptionMulti:
			tokens := coerce.SplitMulti(value)
			if len(tokens) == 0 {
				continue
			}
			if e.Registry != nil && !testMode {
				e.Registry.RegisterOptions(bc.Field, listingType, tokens)
			}
			if bc.Kind == KindOptionSingle {
				rec.Fields[bc.Field] = tokens[0]
			} else {
				rec.Fields[bc.Field] = strings.Join(tokens, ",")
			}
		case KindLocation:
			setLocationPart(&loc, bc.Part, value)
		case KindMedia:
			result.MediaURLs = append(result.MediaURLs, coerce.SplitMulti(value)...)
		default:
			rec.Fields[bc.Field] = value
		}
	}

	if !assigned {
		return nil, ErrEmptyRow
	}
	if rec.Title == "" {
		return nil, ErrNoTitle
	}

	for _, taxonomy := range taxOrder {
		terms := e.resolveTerms(taxonomy, taxNames[taxonomy], testMode, log)
		if len(terms) > 0 {
			rec.Terms[taxonomy] = terms
		}
	}

	rec.Location = e.finishLocation(ctx, loc, log)
	result.Record = rec
	return &result, nil
}

func setLocationPart(loc *listing.Location, part, value string) {
	switch part {
	case "street":
		loc.Street = value
	case "city":
		loc.City = value
	case "region":
		loc.Region = value
	case "country":
		loc.Country = value
	case "postal":
		loc.Postal = value
	case "lat":
		loc.Latitude = value
	case "lon":
		loc.Longitude = value
	}
}

// finishLocation merges the row's location with the installation default
// and, when both coordinates are numeric, backfills the street address from
// the geocoder. Coordinates supplied by the source are never overwritten.
func (e *Engine) finishLocation(ctx context.Context, loc listing.Location, log Logger) listing.Location {
	merged := loc.Merge(e.DefaultLocation)
	if e.Geocoder == nil {
		return merged
	}
	_, latOK := coerce.ParseCoordinate(merged.Latitude)
	_, lonOK := coerce.ParseCoordinate(merged.Longitude)
	if !latOK || !lonOK {
		return merged
	}
	addr, err := e.Geocoder.ReverseGeocode(ctx, merged.Latitude, merged.Longitude)
	if err != nil {
		if log != nil {
			log.Warnf("reverse geocode failed, keeping raw coordinates: %v", err)
		}
		return merged
	}
	if addr.Empty() {
		return merged
	}
	if addr.Street != "" {
		merged.Street = addr.Street
	}
	if addr.City != "" {
		merged.City = addr.City
	}
	if addr.Region != "" {
		merged.Region = addr.Region
	}
	if addr.Country != "" {
		merged.Country = addr.Country
	}
	if addr.Postal != "" {
		merged.Postal = addr.Postal
	}
	return merged
}
