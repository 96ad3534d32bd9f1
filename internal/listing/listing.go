// Package listing defines the destination-side contracts the import core
// calls: the record store, the taxonomy/term store and the custom-field
// registry. The core never talks to a concrete backend directly.
package listing

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrListingNotFound is returned when a listing cannot be located by id.
	ErrListingNotFound = errors.New("listing not found")
	// ErrTaxonomyUnknown is returned when a term operation names a taxonomy
	// that is not registered.
	ErrTaxonomyUnknown = errors.New("taxonomy unknown")
)

// Record is a normalized listing ready for persistence. Fields holds the
// mapped custom attributes keyed by destination field.
type Record struct {
	ID          int64             `json:"id"`
	ListingType string            `json:"listing_type"`
	Fingerprint string            `json:"fingerprint"`
	Title       string            `json:"title"`
	Body        string            `json:"body,omitempty"`
	Status      string            `json:"status,omitempty"`
	PublishedAt string            `json:"published_at,omitempty"`
	AuthorID    string            `json:"author_id,omitempty"`
	Category    string            `json:"category,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	Location    Location          `json:"location,omitempty"`
	Terms       map[string][]Term `json:"terms,omitempty"`
	CreatedAt   time.Time         `json:"created_at,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at,omitempty"`
}

// Location carries address parts and raw coordinates. Coordinates stay
// strings so the values supplied by the source survive untouched.
type Location struct {
	Street    string `json:"street,omitempty"`
	City      string `json:"city,omitempty"`
	Region    string `json:"region,omitempty"`
	Country   string `json:"country,omitempty"`
	Postal    string `json:"postal,omitempty"`
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
}

// Merge fills empty parts of l from the fallback location. Coordinates and
// address parts already present always win.
func (l Location) Merge(fallback Location) Location {
	if l.Street == "" {
		l.Street = fallback.Street
	}
	if l.City == "" {
		l.City = fallback.City
	}
	if l.Region == "" {
		l.Region = fallback.Region
	}
	if l.Country == "" {
		l.Country = fallback.Country
	}
	if l.Postal == "" {
		l.Postal = fallback.Postal
	}
	if l.Latitude == "" {
		l.Latitude = fallback.Latitude
	}
	if l.Longitude == "" {
		l.Longitude = fallback.Longitude
	}
	return l
}

// Term is a resolved taxonomy term. Tag-like terms may carry only a name;
// the store creates them at upsert time.
type Term struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

// Attachment is a media file fetched by the media importer and attached to
// a listing slot.
type Attachment struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// RecordStore persists listings and maintains a per-importer fingerprint
// index used for dedup lookups.
type RecordStore interface {
	FindByFingerprint(ctx context.Context, fingerprint, listingType string) (int64, bool, error)
	Create(ctx context.Context, rec *Record) (int64, error)
	Update(ctx context.Context, id int64, rec *Record) error
	ClearMedia(ctx context.Context, id int64, slot string) error
	AttachMedia(ctx context.Context, id int64, slot string, att Attachment) error
}

// TaxonomyStore resolves and creates taxonomy terms.
type TaxonomyStore interface {
	TaxonomyExists(name string) bool
	TermID(name, taxonomy string) (int64, bool)
	CreateTerm(name, taxonomy string) (int64, error)
}

// FieldRegistry reports destination field types and accepts newly seen
// option values for enumerated fields.
type FieldRegistry interface {
	FieldType(field, listingType string) (string, bool)
	RegisterOptions(field, listingType string, options []string)
}
