package settlement

import (
	"context"
	"time"
)

// Repository persists settlements and their ledger postings. Finalize and
// Void each run as a single transaction: the status guard, the ledger tail
// reads and every appended row commit together or not at all.
type Repository interface {
	// Create stores a settlement with its items and shares.
	Create(ctx context.Context, stl *Settlement) error
	// GetByID loads a settlement with children, scoped to an owner; nil
	// when absent or foreign.
	GetByID(ctx context.Context, id, ownerID string) (*Settlement, error)
	// ListByProperty lists settlements for a property, newest period first.
	ListByProperty(ctx context.Context, propertyID, ownerID string) ([]Settlement, error)
	// Finalize transitions draft/calculated to finalized and appends the
	// charge (and optional advance offset) rows per share. Returns
	// ErrSettlementNotFound for missing, foreign or wrong-status
	// settlements and ErrNoShares when there is nothing to post.
	Finalize(ctx context.Context, id, ownerID string, now time.Time) (*Settlement, error)
	// Void transitions finalized to voided and appends one compensating
	// adjustment per share against each tenant's then-current balance.
	Void(ctx context.Context, id, ownerID, reason string, now time.Time) (*Settlement, error)
}

// LedgerReader reads a tenant's running account for a property.
type LedgerReader interface {
	// ListEntries returns all rows oldest first.
	ListEntries(ctx context.Context, tenantID, propertyID string) ([]LedgerEntry, error)
}
