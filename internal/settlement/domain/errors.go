package settlement

import "errors"

var (
	// ErrSettlementNotFound covers a missing settlement, a settlement owned
	// by somebody else and a settlement in a status that forbids the
	// operation. Callers must not be able to tell these apart.
	ErrSettlementNotFound = errors.New("settlement: not found")
	// ErrNoShares is returned when finalizing a settlement with nothing to
	// post.
	ErrNoShares = errors.New("settlement: no tenant shares to post")
	// ErrNilSettlement is returned when persisting a nil settlement.
	ErrNilSettlement = errors.New("settlement: nil settlement")
	// ErrInvalidPeriod is returned when the billing period is empty or
	// inverted.
	ErrInvalidPeriod = errors.New("settlement: invalid period")
	// ErrEmptyPropertyID is returned when the property id is missing.
	ErrEmptyPropertyID = errors.New("settlement: empty property id")
	// ErrEmptyVoidReason is returned when voiding without a reason.
	ErrEmptyVoidReason = errors.New("settlement: empty void reason")
)
