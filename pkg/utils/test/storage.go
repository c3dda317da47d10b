package testutils

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

// ErrMock is returned by mocks configured to fail.
var ErrMock = errors.New("mock failure")

// MockDriver is a storage driver that records calls and can be told to fail.
type MockDriver struct {
	mu sync.Mutex

	// Stored accumulates every transcript passed to Put.
	Stored []*transcript.Transcript

	// FailPut causes Put to return ErrMock.
	FailPut bool
}

// NewMockDriver creates a new mock storage driver.
func NewMockDriver() *MockDriver {
	return &MockDriver{}
}

func (m *MockDriver) Put(_ context.Context, t *transcript.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPut {
		return ErrMock
	}
	m.Stored = append(m.Stored, t)
	return nil
}

func (m *MockDriver) Get(_ context.Context, id uuid.UUID) (*transcript.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Stored {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, storage.NotFoundError{ID: id.String()}
}

func (m *MockDriver) List(_ context.Context, limit int) ([]*transcript.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*transcript.Transcript(nil), m.Stored...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockDriver) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.Stored)
	m.Stored = slices.DeleteFunc(m.Stored, func(t *transcript.Transcript) bool {
		return t.StartedAt.Before(cutoff)
	})
	return int64(before - len(m.Stored)), nil
}

func (m *MockDriver) Close() error {
	return nil
}

// Transcripts returns a snapshot of the stored transcripts.
func (m *MockDriver) Transcripts() []*transcript.Transcript {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*transcript.Transcript(nil), m.Stored...)
}

var _ storage.Driver = (*MockDriver)(nil)
