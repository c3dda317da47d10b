// Package sqldriver implements storage.Driver on top of database/sql. The
// sqlite and postgres packages supply the connection and the dialect.
package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chunkstream/pkg/storage"
	"github.com/papercomputeco/chunkstream/pkg/transcript"
)

// Dialect holds what differs between SQL backends.
type Dialect struct {
	// Name is used in error messages.
	Name string

	// Placeholder returns the bind parameter for the n-th argument, 1-based.
	Placeholder func(n int) string
}

// Driver stores transcripts in a single table. The columns used for lookups
// and ordering are stored alongside the JSON encoded transcript.
type Driver struct {
	DB      *sql.DB
	dialect Dialect
}

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id          TEXT PRIMARY KEY,
	started_at  BIGINT NOT NULL,
	model       TEXT NOT NULL,
	streaming   BOOLEAN NOT NULL,
	failed      BOOLEAN NOT NULL,
	data        TEXT NOT NULL
)`

const index = `CREATE INDEX IF NOT EXISTS transcripts_started_at ON transcripts (started_at)`

// New creates the schema if needed and returns a Driver using db.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Driver, error) {
	for _, stmt := range []string{schema, index} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", d.Name, err)
		}
	}

	return &Driver{DB: db, dialect: d}, nil
}

// Put stores a transcript, replacing any previous record with the same ID.
func (s *Driver) Put(ctx context.Context, t *transcript.Transcript) error {
	if t == nil {
		return errors.New("cannot store nil transcript")
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode transcript %s: %w", t.ID, err)
	}

	p := s.dialect.Placeholder
	query := fmt.Sprintf(`INSERT INTO transcripts (id, started_at, model, streaming, failed, data)
VALUES (%s, %s, %s, %s, %s, %s)
ON CONFLICT (id) DO UPDATE SET
	started_at = excluded.started_at,
	model = excluded.model,
	streaming = excluded.streaming,
	failed = excluded.failed,
	data = excluded.data`,
		p(1), p(2), p(3), p(4), p(5), p(6))

	_, err = s.DB.ExecContext(ctx, query,
		t.ID.String(),
		t.StartedAt.UnixNano(),
		t.Model,
		t.Streaming,
		t.Failed(),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to store transcript %s: %w", t.ID, err)
	}
	return nil
}

// Get retrieves a transcript by its ID.
func (s *Driver) Get(ctx context.Context, id uuid.UUID) (*transcript.Transcript, error) {
	query := "SELECT data FROM transcripts WHERE id = " + s.dialect.Placeholder(1)

	var data string
	err := s.DB.QueryRowContext(ctx, query, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript %s: %w", id, err)
	}

	return decode(data)
}

// List returns up to limit transcripts, most recently started first.
func (s *Driver) List(ctx context.Context, limit int) ([]*transcript.Transcript, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	query := "SELECT data FROM transcripts ORDER BY started_at DESC LIMIT " + s.dialect.Placeholder(1)
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	var out []*transcript.Transcript
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		t, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteBefore removes transcripts started before cutoff and returns how
// many were removed.
func (s *Driver) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		"DELETE FROM transcripts WHERE started_at < "+s.dialect.Placeholder(1),
		cutoff.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transcripts: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Driver) Close() error {
	return s.DB.Close()
}

func decode(data string) (*transcript.Transcript, error) {
	var t transcript.Transcript
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return &t, nil
}

var _ storage.Driver = (*Driver)(nil)
