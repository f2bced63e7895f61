// Package memory provides an in-memory settlement store for tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	settlement "rentledger/internal/settlement/domain"

	"github.com/shopspring/decimal"
)

// SettlementRepository is an in-memory settlement and ledger store. It
// mirrors the transactional repository contract: a failed operation leaves
// no partial writes behind.
type SettlementRepository struct {
	mu          sync.RWMutex
	settlements map[string]*settlement.Settlement
	ledger      []settlement.LedgerEntry
}

// NewSettlementRepository constructs a repository.
func NewSettlementRepository() *SettlementRepository {
	return &SettlementRepository{settlements: make(map[string]*settlement.Settlement)}
}

// Create stores a settlement with its children.
func (r *SettlementRepository) Create(ctx context.Context, stl *settlement.Settlement) error {
	_ = ctx
	if stl == nil {
		return settlement.ErrNilSettlement
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := cloneSettlement(stl)
	r.settlements[stl.ID] = copy
	return nil
}

// GetByID loads a settlement scoped to an owner.
func (r *SettlementRepository) GetByID(ctx context.Context, id, ownerID string) (*settlement.Settlement, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	stl := r.settlements[id]
	if stl == nil || stl.OwnerID != ownerID {
		return nil, nil
	}
	return cloneSettlement(stl), nil
}

// ListByProperty lists settlements for a property, newest period first.
func (r *SettlementRepository) ListByProperty(ctx context.Context, propertyID, ownerID string) ([]settlement.Settlement, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []settlement.Settlement
	for _, stl := range r.settlements {
		if stl.PropertyID == propertyID && stl.OwnerID == ownerID {
			result = append(result, *cloneSettlement(stl))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodStart.After(result[j].PeriodStart)
	})
	return result, nil
}

// Finalize applies the status guard and posts ledger rows per share.
func (r *SettlementRepository) Finalize(ctx context.Context, id, ownerID string, now time.Time) (*settlement.Settlement, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	stl := r.settlements[id]
	if stl == nil || stl.OwnerID != ownerID || !stl.CanFinalize() {
		return nil, settlement.ErrSettlementNotFound
	}
	if len(stl.Shares) == 0 {
		return nil, settlement.ErrNoShares
	}

	now = now.UTC()
	for i := range stl.Shares {
		share := &stl.Shares[i]
		prev := r.lastBalanceLocked(share.TenantID, stl.PropertyID)
		r.ledger = append(r.ledger, settlement.BuildFinalizePostings(stl, *share, prev, now)...)
		if stl.Approach == settlement.ApproachAdvancePayment && share.AdvancesPaid.IsPositive() {
			share.BalanceDue = share.FinalAmount.Sub(share.AdvancesPaid).Round(2)
		}
	}

	stl.Status = settlement.StatusFinalized
	stl.FinalizedAt = now
	stl.UpdatedAt = now
	return cloneSettlement(stl), nil
}

// Void applies the status guard and posts one compensating adjustment per
// share against each tenant's current balance.
func (r *SettlementRepository) Void(ctx context.Context, id, ownerID, reason string, now time.Time) (*settlement.Settlement, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	stl := r.settlements[id]
	if stl == nil || stl.OwnerID != ownerID || !stl.CanVoid() {
		return nil, settlement.ErrSettlementNotFound
	}

	now = now.UTC()
	for _, share := range stl.Shares {
		prev := r.lastBalanceLocked(share.TenantID, stl.PropertyID)
		r.ledger = append(r.ledger, settlement.BuildVoidPosting(stl, share, prev, reason, now))
	}

	stl.Status = settlement.StatusVoided
	stl.VoidedAt = now
	stl.VoidReason = reason
	stl.UpdatedAt = now
	return cloneSettlement(stl), nil
}

// ListEntries returns a tenant's ledger rows oldest first.
func (r *SettlementRepository) ListEntries(ctx context.Context, tenantID, propertyID string) ([]settlement.LedgerEntry, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []settlement.LedgerEntry
	for _, entry := range r.ledger {
		if entry.TenantID == tenantID && entry.PropertyID == propertyID {
			result = append(result, entry)
		}
	}
	return result, nil
}

// SeedLedgerEntry appends an existing ledger row, for test setup.
func (r *SettlementRepository) SeedLedgerEntry(entry settlement.LedgerEntry) {
	r.mu.Lock()
	r.ledger = append(r.ledger, entry)
	r.mu.Unlock()
}

func (r *SettlementRepository) lastBalanceLocked(tenantID, propertyID string) decimal.Decimal {
	for i := len(r.ledger) - 1; i >= 0; i-- {
		entry := r.ledger[i]
		if entry.TenantID == tenantID && entry.PropertyID == propertyID {
			return entry.BalanceAfter
		}
	}
	return decimal.Zero
}

func cloneSettlement(stl *settlement.Settlement) *settlement.Settlement {
	copy := *stl
	copy.Items = append([]settlement.Item(nil), stl.Items...)
	copy.Shares = append([]settlement.Share(nil), stl.Shares...)
	return &copy
}
