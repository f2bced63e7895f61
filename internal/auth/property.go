package auth

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrOwnerMismatch indicates the property belongs to a different owner.
	ErrOwnerMismatch = errors.New("owner mismatch")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("resource not found")
)

// PropertyOwnerChecker validates property ownership.
type PropertyOwnerChecker interface {
	EnsurePropertyOwner(ctx context.Context, ownerID, propertyID string) error
}

// PropertyChecker checks property ownership against the properties table.
type PropertyChecker struct {
	db *sql.DB
}

// NewPropertyChecker constructs a PropertyChecker.
func NewPropertyChecker(db *sql.DB) *PropertyChecker {
	if db == nil {
		return nil
	}
	return &PropertyChecker{db: db}
}

// EnsurePropertyOwner verifies the property belongs to the owner.
func (c *PropertyChecker) EnsurePropertyOwner(ctx context.Context, ownerID, propertyID string) error {
	if c == nil || c.db == nil {
		return nil
	}
	if ownerID == "" || propertyID == "" {
		return nil
	}
	var storedOwner string
	err := c.db.QueryRowContext(ctx, `SELECT owner_id FROM properties WHERE id = $1`, propertyID).Scan(&storedOwner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if storedOwner != ownerID {
		return ErrOwnerMismatch
	}
	return nil
}
