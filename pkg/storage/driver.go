// Package storage persists transcripts.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chunkstream/pkg/transcript"
)

// DefaultListLimit is the number of transcripts List returns for a
// non-positive limit.
const DefaultListLimit = 50

// Driver defines the interface for persisting and retrieving transcripts in
// a storage backend.
type Driver interface {
	// Put stores a transcript. Storing a transcript with an existing ID
	// replaces the previous record.
	Put(ctx context.Context, t *transcript.Transcript) error

	// Get retrieves a transcript by its ID.
	Get(ctx context.Context, id uuid.UUID) (*transcript.Transcript, error)

	// List returns up to limit transcripts, most recently started first.
	List(ctx context.Context, limit int) ([]*transcript.Transcript, error)

	// DeleteBefore removes transcripts started before cutoff and returns how
	// many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close closes the store and releases any resources.
	Close() error
}
