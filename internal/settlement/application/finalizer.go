package application

import (
	"context"
	"errors"
	"time"

	"rentledger/internal/observability/metrics"
	settlement "rentledger/internal/settlement/domain"
)

// Finalizer commits calculated settlements to the tenant ledger and
// reverses finalized ones. It is the only component that mutates ledger
// state.
type Finalizer struct {
	repo  settlement.Repository
	clock Clock
}

// NewFinalizer constructs the service.
func NewFinalizer(repo settlement.Repository, clock Clock) (*Finalizer, error) {
	if repo == nil {
		return nil, errors.New("finalizer: nil repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Finalizer{repo: repo, clock: clock}, nil
}

// SaveDraft persists a calculated settlement so it can be finalized later.
func (f *Finalizer) SaveDraft(ctx context.Context, stl *settlement.Settlement) error {
	if stl == nil {
		return settlement.ErrNilSettlement
	}
	return f.repo.Create(ctx, stl)
}

// Finalize transitions a draft or calculated settlement to finalized and
// posts one charge (plus an advance offset when applicable) per share.
// Missing, foreign and wrong-status settlements all fail with the same
// not-found error.
func (f *Finalizer) Finalize(ctx context.Context, settlementID, ownerID string) (*settlement.Settlement, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSettlementFinalize(result, time.Since(start))
	}()

	if settlementID == "" || ownerID == "" {
		result = metrics.ResultError
		return nil, settlement.ErrSettlementNotFound
	}

	stl, err := f.repo.Finalize(ctx, settlementID, ownerID, f.clock.Now())
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	charges := len(stl.Shares)
	offsets := 0
	if stl.Approach == settlement.ApproachAdvancePayment {
		for _, share := range stl.Shares {
			if share.AdvancesPaid.IsPositive() {
				offsets++
			}
		}
	}
	metrics.AddLedgerEntries(string(settlement.EntryTypeCharge), charges)
	metrics.AddLedgerEntries(string(settlement.EntryTypeAdvancePayment), offsets)
	return stl, nil
}

// Void reverses a finalized settlement with compensating adjustments. The
// original rows stay in the ledger untouched.
func (f *Finalizer) Void(ctx context.Context, settlementID, ownerID, reason string) (*settlement.Settlement, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSettlementVoid(result, time.Since(start))
	}()

	if settlementID == "" || ownerID == "" {
		result = metrics.ResultError
		return nil, settlement.ErrSettlementNotFound
	}
	if reason == "" {
		result = metrics.ResultError
		return nil, settlement.ErrEmptyVoidReason
	}

	stl, err := f.repo.Void(ctx, settlementID, ownerID, reason, f.clock.Now())
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	metrics.AddLedgerEntries(string(settlement.EntryTypeAdjustment), len(stl.Shares))
	return stl, nil
}
