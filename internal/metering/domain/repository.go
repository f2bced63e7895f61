package metering

import (
	"context"
	"time"
)

// Repository persists meters and readings. Exchange runs every step of a
// meter replacement inside a single transaction.
type Repository interface {
	// GetByID loads a meter scoped to an owner; nil when absent.
	GetByID(ctx context.Context, meterID, ownerID string) (*Meter, error)
	// ListActiveByProperty returns the active meters on a property.
	ListActiveByProperty(ctx context.Context, propertyID string) ([]Meter, error)
	// ListReadings returns readings for a meter taken at or before the
	// cutoff, newest first, capped at limit.
	ListReadings(ctx context.Context, meterID string, cutoff time.Time, limit int) ([]MeterReading, error)
	// ReadingHistory returns the full reading history for a meter chain,
	// walking ReplacedByID predecessors so an exchange does not break the
	// series, ordered oldest first.
	ReadingHistory(ctx context.Context, meterID string) ([]MeterReading, error)
	// Exchange atomically closes out the old meter, opens its successor and
	// links the two. All writes commit together or not at all.
	Exchange(ctx context.Context, cmd ExchangeCommand, now time.Time) (*Exchange, error)
}
