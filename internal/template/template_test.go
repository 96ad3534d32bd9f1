package template

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"listimport/internal/mapping"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "templates.db"))
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sq, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("preparing sqlite store: %v", err)
	}
	return map[string]Store{"memory": NewMemoryStore(), "sqlite": sq}
}

func TestTemplateRoundTrip(t *testing.T) {
	cm := mapping.ColumnMapping{
		{Column: "name", Field: "title"},
		{Column: "tags", Field: "listing_tags"},
	}
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			saved, err := store.Save("Restaurant Export", cm)
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if saved.ID == "" || saved.Name != "Restaurant Export" {
				t.Fatalf("unexpected template %+v", saved)
			}

			loaded, err := store.Load(saved.ID)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(loaded.Mapping) != 2 || loaded.Mapping[0] != cm[0] || loaded.Mapping[1] != cm[1] {
				t.Fatalf("mapping did not survive the round trip: %+v", loaded.Mapping)
			}

			if err := store.Delete(saved.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := store.Load(saved.ID); !errors.Is(err, ErrTemplateNotFound) {
				t.Fatalf("expected ErrTemplateNotFound after delete, got %v", err)
			}
		})
	}
}

func TestTemplateDeleteUnknown(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Delete("missing-1"); !errors.Is(err, ErrTemplateNotFound) {
				t.Fatalf("expected ErrTemplateNotFound, got %v", err)
			}
		})
	}
}

func TestTemplateSaveRequiresName(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Save("  ", nil); err == nil {
				t.Fatalf("expected blank name rejected")
			}
		})
	}
}

func TestTemplateListOrder(t *testing.T) {
	store := NewMemoryStore()
	for _, name := range []string{"First", "Second", "Third"} {
		if _, err := store.Save(name, nil); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}
	templates, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(templates) != 3 || templates[0].Name != "First" || templates[2].Name != "Third" {
		t.Fatalf("expected insertion order, got %+v", templates)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Restaurant Export": "restaurant-export",
		"  Csv #2 (EU)  ":   "csv-2-eu",
		"!!!":               "template",
	}
	for input, want := range cases {
		if got := slugify(input); got != want {
			t.Fatalf("slugify(%q): expected %q, got %q", input, want, got)
		}
	}
}
