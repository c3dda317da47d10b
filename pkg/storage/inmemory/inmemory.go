// Package inmemory provides a storage driver that keeps transcripts in a map.
package inmemory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chunkstream/pkg/storage"
	"github.com/papercomputeco/chunkstream/pkg/transcript"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of transcripts
	mu sync.RWMutex

	transcripts map[uuid.UUID]*transcript.Transcript
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		transcripts: make(map[uuid.UUID]*transcript.Transcript),
	}
}

// Put stores a copy of the transcript.
func (s *Driver) Put(_ context.Context, t *transcript.Transcript) error {
	if t == nil {
		return errors.New("cannot store nil transcript")
	}

	cp := *t
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[t.ID] = &cp
	return nil
}

// Get retrieves a transcript by its ID.
func (s *Driver) Get(_ context.Context, id uuid.UUID) (*transcript.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transcripts[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id.String()}
	}

	cp := *t
	return &cp, nil
}

// List returns up to limit transcripts, most recently started first.
func (s *Driver) List(_ context.Context, limit int) ([]*transcript.Transcript, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	s.mu.RLock()
	out := make([]*transcript.Transcript, 0, len(s.transcripts))
	for _, t := range s.transcripts {
		cp := *t
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *transcript.Transcript) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteBefore removes transcripts started before cutoff.
func (s *Driver) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.transcripts {
		if t.StartedAt.Before(cutoff) {
			delete(s.transcripts, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory driver.
func (s *Driver) Close() error {
	return nil
}

var _ storage.Driver = (*Driver)(nil)
