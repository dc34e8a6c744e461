package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/tracks/pkg/events"
)

// DefaultChunkSize is the page size used by StreamEvents.
const DefaultChunkSize = 1000

// StreamEvents pages ascending through the events in [from, to) and calls fn
// once per chunk. It stops at the first error from the source or fn.
func StreamEvents(ctx context.Context, src EventSource, from, to time.Time, chunkSize int, fn func([]*events.Event) error) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	q := EventQuery{From: from, To: to, Limit: chunkSize}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := src.ListEvents(ctx, q)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		if len(chunk) < chunkSize {
			return nil
		}

		last := chunk[len(chunk)-1]
		q.After = &Cursor{Timestamp: last.Timestamp, ID: last.ID}
	}
}
