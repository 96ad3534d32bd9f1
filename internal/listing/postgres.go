package listing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PostgresStore persists listings in Postgres. The fingerprint index lives
// in a unique constraint on (listing_type, fingerprint).
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

// EnsureSchema creates the listings tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS listings (
			id BIGSERIAL PRIMARY KEY,
			listing_type TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			published_at TEXT NOT NULL DEFAULT '',
			author_id TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			fields JSONB NOT NULL DEFAULT '{}',
			location JSONB NOT NULL DEFAULT '{}',
			terms JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (listing_type, fingerprint)
		)`,
		`CREATE TABLE IF NOT EXISTS listing_media (
			id TEXT PRIMARY KEY,
			listing_id BIGINT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
			slot TEXT NOT NULL,
			url TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, fingerprint, listingType string) (int64, bool, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT id FROM listings WHERE listing_type=$1 AND fingerprint=$2
	`, listingType, fingerprint).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *PostgresStore) Create(ctx context.Context, rec *Record) (int64, error) {
	fields, location, terms, err := encodeBlobs(rec)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	var id int64
	err = s.DB.QueryRowContext(ctx, `
		INSERT INTO listings (listing_type, fingerprint, title, body, status, published_at,
			author_id, category, fields, location, terms, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		RETURNING id
	`, rec.ListingType, rec.Fingerprint, rec.Title, rec.Body, rec.Status, rec.PublishedAt,
		rec.AuthorID, rec.Category, fields, location, terms, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, rec *Record) error {
	fields, location, terms, err := encodeBlobs(rec)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE listings SET title=$1, body=$2, status=$3, published_at=$4, author_id=$5,
			category=$6, fields=$7, location=$8, terms=$9, updated_at=$10
		WHERE id=$11
	`, rec.Title, rec.Body, rec.Status, rec.PublishedAt, rec.AuthorID,
		rec.Category, fields, location, terms, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (s *PostgresStore) ClearMedia(ctx context.Context, id int64, slot string) error {
	_, err := s.DB.ExecContext(ctx, `
		DELETE FROM listing_media WHERE listing_id=$1 AND slot=$2
	`, id, slot)
	return err
}

func (s *PostgresStore) AttachMedia(ctx context.Context, id int64, slot string, att Attachment) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO listing_media (id, listing_id, slot, url) VALUES ($1,$2,$3,$4)
	`, att.ID, id, slot, att.URL)
	return err
}

func encodeBlobs(rec *Record) (fields, location, terms []byte, err error) {
	if rec.Fields == nil {
		rec.Fields = map[string]string{}
	}
	if rec.Terms == nil {
		rec.Terms = map[string][]Term{}
	}
	if fields, err = json.Marshal(rec.Fields); err != nil {
		return nil, nil, nil, err
	}
	if location, err = json.Marshal(rec.Location); err != nil {
		return nil, nil, nil, err
	}
	if terms, err = json.Marshal(rec.Terms); err != nil {
		return nil, nil, nil, err
	}
	return fields, location, terms, nil
}
