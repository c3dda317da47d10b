package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chunkstream/pkg/transcript"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeStreamCompleted is emitted after an exchange finished and its
	// transcript was persisted.
	EventTypeStreamCompleted = "chunkstream.stream.completed"

	// EventTypeStreamFailed is emitted after an exchange ended with an error.
	EventTypeStreamFailed = "chunkstream.stream.failed"
)

// StreamEvent is a transport-neutral event payload for a recorded exchange.
type StreamEvent struct {
	SchemaVersion int                    `json:"schema_version"`
	EventType     string                 `json:"event_type"`
	EventID       string                 `json:"event_id"`
	EmittedAt     time.Time              `json:"emitted_at"`
	Source        EventSource            `json:"source"`
	Transcript    *transcript.Transcript `json:"transcript"`
}

// EventSource identifies where the exchange was observed.
type EventSource struct {
	// Component is "proxy" or "client".
	Component string `json:"component"`
	Upstream  string `json:"upstream,omitempty"`
}

// NewStreamEvent builds the event for t. The event type follows the outcome
// recorded in the transcript.
func NewStreamEvent(src EventSource, t *transcript.Transcript) *StreamEvent {
	eventType := EventTypeStreamCompleted
	if t != nil && t.Failed() {
		eventType = EventTypeStreamFailed
	}

	return &StreamEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        src,
		Transcript:    t,
	}
}

// Key returns the partitioning key of the event: the transcript ID.
func (e *StreamEvent) Key() string {
	if e.Transcript == nil {
		return e.EventID
	}
	return e.Transcript.ID.String()
}
