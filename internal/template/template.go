// Package template persists named column-mapping presets. Templates belong
// to the installation, not to any single import run.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"listimport/internal/mapping"
)

// ErrTemplateNotFound is returned when no template exists under an id.
var ErrTemplateNotFound = errors.New("mapping template not found")

// Template is a reusable column->field mapping preset.
type Template struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Mapping   mapping.ColumnMapping `json:"mapping"`
	CreatedAt time.Time             `json:"created_at"`
}

// Store is the template CRUD contract.
type Store interface {
	Save(name string, cm mapping.ColumnMapping) (Template, error)
	Load(id string) (Template, error)
	Delete(id string) error
	List() ([]Template, error)
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// slugify derives the id stem from a template name. The creation timestamp
// is appended to keep ids collision-free across same-named templates.
func slugify(name string) string {
	slug := strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = "template"
	}
	return slug
}

// MemoryStore keeps templates in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]Template
	order     []string
	clock     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{templates: make(map[string]Template), clock: time.Now}
}

func (s *MemoryStore) Save(name string, cm mapping.ColumnMapping) (Template, error) {
	if strings.TrimSpace(name) == "" {
		return Template{}, fmt.Errorf("template name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock().UTC()
	tpl := Template{
		ID:        fmt.Sprintf("%s-%d", slugify(name), now.UnixNano()),
		Name:      name,
		Mapping:   append(mapping.ColumnMapping(nil), cm...),
		CreatedAt: now,
	}
	s.templates[tpl.ID] = tpl
	s.order = append(s.order, tpl.ID)
	return tpl, nil
}

func (s *MemoryStore) Load(id string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[id]
	if !ok {
		return Template{}, ErrTemplateNotFound
	}
	return tpl, nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return ErrTemplateNotFound
	}
	delete(s.templates, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) List() ([]Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Template, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.templates[id])
	}
	return out, nil
}
