package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies a tenant ledger row.
type EntryType string

const (
	EntryTypeCharge         EntryType = "charge"
	EntryTypeAdvancePayment EntryType = "advance_payment"
	EntryTypeAdjustment     EntryType = "adjustment"
)

// LedgerEntry is one row of a tenant's append-only running account for a
// property. Charges are positive, credits negative; BalanceAfter is the
// running total computed at write time from the immediately preceding row.
type LedgerEntry struct {
	ID           string
	TenantID     string
	PropertyID   string
	Type         EntryType
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	SettlementID string
	Description  string
	CreatedAt    time.Time
}

// BuildFinalizePostings returns the ledger rows finalization appends for one
// share, given the tenant's current running balance: a charge, then an
// advance payment offset when the settlement nets prepayments. The fixed
// charge-before-offset order keeps running balances reconstructible by
// replay.
func BuildFinalizePostings(stl *Settlement, share Share, prevBalance decimal.Decimal, now time.Time) []LedgerEntry {
	charge := LedgerEntry{
		ID:           NewLedgerEntryID(),
		TenantID:     share.TenantID,
		PropertyID:   stl.PropertyID,
		Type:         EntryTypeCharge,
		Amount:       share.FinalAmount.Round(2),
		SettlementID: stl.ID,
		Description:  "utility settlement " + stl.Title,
		CreatedAt:    now,
	}
	charge.BalanceAfter = prevBalance.Add(charge.Amount).Round(2)
	entries := []LedgerEntry{charge}

	if stl.Approach == ApproachAdvancePayment && share.AdvancesPaid.IsPositive() {
		offset := LedgerEntry{
			ID:           NewLedgerEntryID(),
			TenantID:     share.TenantID,
			PropertyID:   stl.PropertyID,
			Type:         EntryTypeAdvancePayment,
			Amount:       share.AdvancesPaid.Round(2).Neg(),
			SettlementID: stl.ID,
			Description:  "advance payments applied to " + stl.Title,
			CreatedAt:    now,
		}
		offset.BalanceAfter = charge.BalanceAfter.Add(offset.Amount).Round(2)
		entries = append(entries, offset)
	}
	return entries
}

// BuildVoidPosting returns the single compensating adjustment voiding
// appends for one share against the tenant's then-current balance. Prior
// rows are never rewritten.
func BuildVoidPosting(stl *Settlement, share Share, prevBalance decimal.Decimal, reason string, now time.Time) LedgerEntry {
	entry := LedgerEntry{
		ID:           NewLedgerEntryID(),
		TenantID:     share.TenantID,
		PropertyID:   stl.PropertyID,
		Type:         EntryTypeAdjustment,
		Amount:       share.FinalAmount.Round(2).Neg(),
		SettlementID: stl.ID,
		Description:  "void of " + stl.Title + ": " + reason,
		CreatedAt:    now,
	}
	entry.BalanceAfter = prevBalance.Add(entry.Amount).Round(2)
	return entry
}
