// Package pricing resolves the utility rate effective at a given date.
package pricing

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RateProvider resolves versioned rate snapshots from Postgres, so
// historical settlements stay reproducible after a price change.
type RateProvider struct {
	db *sql.DB
}

// NewRateProvider constructs a provider.
func NewRateProvider(db *sql.DB) *RateProvider {
	return &RateProvider{db: db}
}

// RateAt returns the price per unit effective for a property and meter type
// at the given date. ok is false when no snapshot covers the date.
func (p *RateProvider) RateAt(ctx context.Context, propertyID, meterType string, at time.Time) (decimal.Decimal, bool, error) {
	if p == nil || p.db == nil {
		return decimal.Zero, false, errors.New("rate provider: nil db")
	}
	if propertyID == "" {
		return decimal.Zero, false, errors.New("rate provider: empty property id")
	}
	if at.IsZero() {
		return decimal.Zero, false, errors.New("rate provider: invalid timestamp")
	}

	var price decimal.Decimal
	err := p.db.QueryRowContext(ctx, `
SELECT price_per_unit
FROM rate_snapshots
WHERE property_id = $1 AND meter_type = $2 AND effective_from <= $3
ORDER BY effective_from DESC
LIMIT 1`, propertyID, meterType, at).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return price, true, nil
}
