package listing

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Directory is the in-memory reference implementation of RecordStore,
// TaxonomyStore and FieldRegistry. It backs tests and installations that
// run without Postgres.
type Directory struct {
	mu sync.RWMutex

	records    map[int64]*Record
	byPrint    map[string]int64 // fingerprint+listingType -> record id
	media      map[int64]map[string][]Attachment
	nextID     int64
	nextTermID int64

	taxonomies map[string]map[string]int64 // taxonomy -> term name -> id
	fieldTypes map[string]string           // listingType/field -> type
	options    map[string][]string         // listingType/field -> allowed options
}

// NewDirectory builds an empty directory with the default taxonomies
// registered.
func NewDirectory() *Directory {
	d := &Directory{
		records:    make(map[int64]*Record),
		byPrint:    make(map[string]int64),
		media:      make(map[int64]map[string][]Attachment),
		nextID:     1,
		nextTermID: 1,
		taxonomies: make(map[string]map[string]int64),
		fieldTypes: make(map[string]string),
		options:    make(map[string][]string),
	}
	d.RegisterTaxonomy("listing_category")
	d.RegisterTaxonomy("listing_tag")
	return d
}

// RegisterTaxonomy makes a taxonomy known to the store.
func (d *Directory) RegisterTaxonomy(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.taxonomies[name]; !ok {
		d.taxonomies[name] = make(map[string]int64)
	}
}

// RegisterFieldType declares the type of a destination field, mirroring
// what a form-builder backend would report.
func (d *Directory) RegisterFieldType(field, listingType, fieldType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fieldTypes[listingType+"/"+field] = fieldType
}

func printKey(fingerprint, listingType string) string {
	return listingType + "\x00" + fingerprint
}

func (d *Directory) FindByFingerprint(_ context.Context, fingerprint, listingType string) (int64, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byPrint[printKey(fingerprint, listingType)]
	return id, ok, nil
}

func (d *Directory) Create(_ context.Context, rec *Record) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *rec
	clone.ID = d.nextID
	d.nextID++
	now := time.Now().UTC()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	d.materializeTerms(&clone)
	d.records[clone.ID] = &clone
	d.byPrint[printKey(clone.Fingerprint, clone.ListingType)] = clone.ID
	return clone.ID, nil
}

func (d *Directory) Update(_ context.Context, id int64, rec *Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	existing, ok := d.records[id]
	if !ok {
		return ErrListingNotFound
	}
	clone := *rec
	clone.ID = id
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now().UTC()
	d.materializeTerms(&clone)
	d.records[id] = &clone
	d.byPrint[printKey(clone.Fingerprint, clone.ListingType)] = id
	return nil
}

// materializeTerms creates tag-like terms that arrived as bare names.
// Caller must hold the write lock.
func (d *Directory) materializeTerms(rec *Record) {
	for taxonomy, terms := range rec.Terms {
		names, ok := d.taxonomies[taxonomy]
		if !ok {
			continue
		}
		for i, term := range terms {
			if term.ID != 0 {
				continue
			}
			id, exists := names[term.Name]
			if !exists {
				id = d.nextTermID
				d.nextTermID++
				names[term.Name] = id
			}
			rec.Terms[taxonomy][i].ID = id
		}
	}
}

// Get returns a copy of a stored listing.
func (d *Directory) Get(id int64) (Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Len reports the number of stored listings.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

func (d *Directory) ClearMedia(_ context.Context, id int64, slot string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slots, ok := d.media[id]; ok {
		delete(slots, slot)
	}
	return nil
}

func (d *Directory) AttachMedia(_ context.Context, id int64, slot string, att Attachment) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.records[id]; !ok {
		return ErrListingNotFound
	}
	if d.media[id] == nil {
		d.media[id] = make(map[string][]Attachment)
	}
	d.media[id][slot] = append(d.media[id][slot], att)
	return nil
}

// Media returns the attachments currently bound to a listing slot.
func (d *Directory) Media(id int64, slot string) []Attachment {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Attachment(nil), d.media[id][slot]...)
}

func (d *Directory) TaxonomyExists(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.taxonomies[name]
	return ok
}

func (d *Directory) TermID(name, taxonomy string) (int64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	terms, ok := d.taxonomies[taxonomy]
	if !ok {
		return 0, false
	}
	id, ok := terms[name]
	return id, ok
}

func (d *Directory) CreateTerm(name, taxonomy string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	terms, ok := d.taxonomies[taxonomy]
	if !ok {
		return 0, fmt.Errorf("create term %q: %w", name, ErrTaxonomyUnknown)
	}
	if id, ok := terms[name]; ok {
		return id, nil
	}
	id := d.nextTermID
	d.nextTermID++
	terms[name] = id
	return id, nil
}

func (d *Directory) FieldType(field, listingType string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.fieldTypes[listingType+"/"+field]
	return t, ok
}

func (d *Directory) RegisterOptions(field, listingType string, options []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := listingType + "/" + field
	known := make(map[string]struct{}, len(d.options[key]))
	for _, opt := range d.options[key] {
		known[opt] = struct{}{}
	}
	for _, opt := range options {
		if _, ok := known[opt]; !ok {
			d.options[key] = append(d.options[key], opt)
			known[opt] = struct{}{}
		}
	}
}

// Options returns the allowed-option set registered for a field.
func (d *Directory) Options(field, listingType string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.options[listingType+"/"+field]...)
}
