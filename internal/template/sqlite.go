package template

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"listimport/internal/mapping"
)

// SQLiteStore persists templates next to the queue state so presets survive
// restarts.
type SQLiteStore struct {
	db    *sqlx.DB
	clock func() time.Time
}

// NewSQLiteStore prepares the templates table on an already open state
// database.
func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS mapping_templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		mapping TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("creating mapping_templates table: %w", err)
	}
	return &SQLiteStore{db: db, clock: time.Now}, nil
}

func (s *SQLiteStore) Save(name string, cm mapping.ColumnMapping) (Template, error) {
	if strings.TrimSpace(name) == "" {
		return Template{}, fmt.Errorf("template name is required")
	}
	raw, err := json.Marshal(cm)
	if err != nil {
		return Template{}, err
	}
	now := s.clock().UTC()
	tpl := Template{
		ID:        fmt.Sprintf("%s-%d", slugify(name), now.UnixNano()),
		Name:      name,
		Mapping:   cm,
		CreatedAt: now,
	}
	_, err = s.db.Exec(`
		INSERT INTO mapping_templates (id, name, mapping, created_at) VALUES (?, ?, ?, ?)
	`, tpl.ID, tpl.Name, string(raw), tpl.CreatedAt)
	if err != nil {
		return Template{}, err
	}
	return tpl, nil
}

func (s *SQLiteStore) Load(id string) (Template, error) {
	var row struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		Mapping   string    `db:"mapping"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := s.db.Get(&row, "SELECT id, name, mapping, created_at FROM mapping_templates WHERE id=?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, ErrTemplateNotFound
	}
	if err != nil {
		return Template{}, err
	}
	tpl := Template{ID: row.ID, Name: row.Name, CreatedAt: row.CreatedAt}
	if err := json.Unmarshal([]byte(row.Mapping), &tpl.Mapping); err != nil {
		return Template{}, err
	}
	return tpl, nil
}

func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM mapping_templates WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (s *SQLiteStore) List() ([]Template, error) {
	rows, err := s.db.Queryx("SELECT id, name, mapping, created_at FROM mapping_templates ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var row struct {
			ID        string    `db:"id"`
			Name      string    `db:"name"`
			Mapping   string    `db:"mapping"`
			CreatedAt time.Time `db:"created_at"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		tpl := Template{ID: row.ID, Name: row.Name, CreatedAt: row.CreatedAt}
		if err := json.Unmarshal([]byte(row.Mapping), &tpl.Mapping); err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}
