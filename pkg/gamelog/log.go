package gamelog

import (
	"context"

	"github.com/google/uuid"
)

// Log is the append-only, per-session ordered event record. Implementations
// assign each appended event a strictly increasing sequence number and a
// server timestamp, and deliver events to subscribers in batches that never
// reorder or drop entries.
type Log interface {
	// Append writes an event to the session's log and returns it with
	// Seq and Time filled in.
	Append(ctx context.Context, sessionID uuid.UUID, ev Event) (Event, error)

	// Subscribe returns an ordered stream of event batches starting after
	// fromSeq. The backlog is delivered first, followed by one synthetic
	// Sync marker stamped with server time, then live events as they are
	// appended. The channel closes when ctx is done. The stream never
	// completes on its own; re-subscribing from the last-seen sequence
	// resumes it.
	Subscribe(ctx context.Context, sessionID uuid.UUID, fromSeq int64) (<-chan Batch, error)
}
