package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLite persists queue state in a local SQLite database so an import can
// resume across process restarts. Update runs inside an immediate
// transaction, which gives the atomic read-modify-write the queue relies on.
type SQLite struct {
	db *sqlx.DB
}

// OpenSQLite opens (or creates) the state database at path and prepares
// the schema. WAL mode keeps status polling cheap while a tick writes.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS job_state (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating job_state table: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so sibling stores (templates) can share
// the same database file.
func (s *SQLite) DB() *sqlx.DB {
	return s.db
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, "SELECT value FROM job_state WHERE key=?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value
	`, key, value)
	return err
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM job_state WHERE key=?", key)
	return err
}

func (s *SQLite) Update(ctx context.Context, key string, fn UpdateFunc) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var old []byte
	ok := true
	err = tx.GetContext(ctx, &old, "SELECT value FROM job_state WHERE key=?", key)
	if errors.Is(err, sql.ErrNoRows) {
		ok = false
	} else if err != nil {
		return err
	}

	next, err := fn(old, ok)
	if err != nil {
		return err
	}
	if next == nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM job_state WHERE key=?", key); err != nil {
			return err
		}
	} else if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value
	`, key, next); err != nil {
		return err
	}
	return tx.Commit()
}
