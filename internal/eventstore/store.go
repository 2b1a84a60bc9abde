package eventstore

import (
	"context"
	"time"
)

// Store persists and retrieves build events.
type Store interface {
	// Append persists an event and returns its sequence number.
	Append(ctx context.Context, event Event) (int64, error)

	// GetByBuildID retrieves all events of one build in append order.
	GetByBuildID(ctx context.Context, buildID string) ([]Event, error)

	// GetRange retrieves events with start <= timestamp <= end in append order.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Close releases the underlying database.
	Close() error
}
