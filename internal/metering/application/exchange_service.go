// Package application holds the meter exchange use case.
package application

import (
	"context"
	"errors"
	"time"

	metering "rentledger/internal/metering/domain"
	"rentledger/internal/observability/metrics"

	"github.com/shopspring/decimal"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ExchangeInput describes a requested meter replacement.
type ExchangeInput struct {
	OldMeterID        string
	FinalReading      decimal.Decimal
	NewNumber         string
	NewSerialNumber   string
	NewInitialReading decimal.Decimal
	Notes             string
}

// ExchangeService replaces a physical meter while preserving consumption
// history continuity.
type ExchangeService struct {
	meters metering.Repository
	clock  Clock
}

// NewExchangeService constructs the service.
func NewExchangeService(meters metering.Repository, clock Clock) (*ExchangeService, error) {
	if meters == nil {
		return nil, errors.New("exchange service: nil meter repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &ExchangeService{meters: meters, clock: clock}, nil
}

// Exchange closes out the old meter with a final reading, opens a successor
// with an initial reading and links the two, all in one transaction.
func (s *ExchangeService) Exchange(ctx context.Context, input ExchangeInput, ownerID string) (*metering.Exchange, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveMeterExchange(result, time.Since(start))
	}()

	if input.OldMeterID == "" {
		result = metrics.ResultError
		return nil, metering.ErrMeterNotFound
	}
	if ownerID == "" {
		result = metrics.ResultError
		return nil, metering.ErrMeterNotFound
	}

	exchange, err := s.meters.Exchange(ctx, metering.ExchangeCommand{
		OldMeterID:        input.OldMeterID,
		OwnerID:           ownerID,
		FinalReading:      input.FinalReading,
		NewNumber:         input.NewNumber,
		NewSerialNumber:   input.NewSerialNumber,
		NewInitialReading: input.NewInitialReading,
		Notes:             input.Notes,
	}, s.clock.Now())
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return exchange, nil
}

// ReadingHistory returns the continuous reading history for a meter chain,
// oldest first, crossing exchange boundaries via the replacement links.
func (s *ExchangeService) ReadingHistory(ctx context.Context, meterID, ownerID string) ([]metering.MeterReading, error) {
	meter, err := s.meters.GetByID(ctx, meterID, ownerID)
	if err != nil {
		return nil, err
	}
	if meter == nil {
		return nil, metering.ErrMeterNotFound
	}
	return s.meters.ReadingHistory(ctx, meter.ID)
}
