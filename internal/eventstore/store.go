// Package eventstore implements the resumable event log every agent run
// appends to: a per-stream, strictly-increasing sequence of AgentEvents
// that a disconnected client can replay from its last-seen id.
package eventstore

import (
	"context"

	"github.com/agentforge/agentcore/pkg/models"
)

// Store is the persistence contract for resumable event streams. Ids are
// strictly increasing within a single stream only; there is no ordering
// guarantee or relationship between ids across different streams.
type Store interface {
	// Append records one event under streamID and returns its id, which is
	// guaranteed greater than every id previously appended to that stream.
	Append(ctx context.Context, streamID string, event models.AgentEvent) (int64, error)

	// Read returns every event appended to streamID with id > afterID, in
	// id order. afterID=0 reads the whole stream. An unknown streamID
	// returns an empty slice, not an error.
	Read(ctx context.Context, streamID string, afterID int64) ([]models.StoredEvent, error)

	// Status reports a stream's lifecycle state. An unknown streamID
	// reports StreamAbsent.
	Status(ctx context.Context, streamID string) (models.StreamStatus, error)

	// MarkCompleted transitions streamID to StreamCompleted. A reader that
	// observes StreamCompleted is guaranteed to see every event appended
	// before the mark on a subsequent Read — no append after MarkCompleted
	// may silently appear as if it preceded it.
	MarkCompleted(ctx context.Context, streamID string) error

	// MarkFailed transitions streamID to StreamFailed.
	MarkFailed(ctx context.Context, streamID string) error
}
