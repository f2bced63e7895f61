package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// FixedRateProvider returns one configured rate for every lookup. Useful
// for tests and single-tariff deployments.
type FixedRateProvider struct {
	rate decimal.Decimal
}

// NewFixedRateProvider constructs the provider.
func NewFixedRateProvider(rate decimal.Decimal) (*FixedRateProvider, error) {
	if rate.IsNegative() {
		return nil, errors.New("rate provider: negative rate")
	}
	return &FixedRateProvider{rate: rate}, nil
}

// RateAt returns the configured rate.
func (p *FixedRateProvider) RateAt(ctx context.Context, propertyID, meterType string, at time.Time) (decimal.Decimal, bool, error) {
	_ = ctx
	_ = propertyID
	_ = meterType
	_ = at
	return p.rate, true, nil
}
