// Package settlement holds the utility cost settlement domain: one
// settlement run per property and period, its cost items and tenant shares,
// and the append-only tenant ledger it posts to.
package settlement

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Approach selects how a settlement treats advance payments.
type Approach string

const (
	// ApproachCostOnly bills the computed cost without netting prepayments.
	ApproachCostOnly Approach = "cost_only"
	// ApproachAdvancePayment nets advance payments collected in the period
	// against each tenant's final amount.
	ApproachAdvancePayment Approach = "advance_payment"
)

// Status is the settlement lifecycle state. Valid transitions are
// draft/calculated -> finalized -> voided; voided is terminal.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusCalculated Status = "calculated"
	StatusFinalized  Status = "finalized"
	StatusVoided     Status = "voided"
)

// ItemKind distinguishes metered from fixed cost lines.
type ItemKind string

const (
	ItemKindMeter ItemKind = "meter"
	ItemKindFixed ItemKind = "fixed"
)

// Item is one cost line inside a settlement: a metered utility with
// consumption and rate, or a fixed recurring cost.
type Item struct {
	ID             string
	SettlementID   string
	Kind           ItemKind
	MeterID        string
	FixedUtilityID string
	Name           string
	Unit           string
	Consumption    decimal.Decimal
	Rate           decimal.Decimal
	TotalCost      decimal.Decimal
}

// Share is one tenant's computed obligation within a settlement.
type Share struct {
	ID           string
	SettlementID string
	TenantID     string
	ActiveDays   int
	ShareRatio   decimal.Decimal
	FinalAmount  decimal.Decimal
	AdvancesPaid decimal.Decimal
	BalanceDue   decimal.Decimal
}

// Settlement is one settlement run for a property and billing period.
type Settlement struct {
	ID          string
	PropertyID  string
	OwnerID     string
	Title       string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Approach    Approach
	Status      Status
	TotalAmount decimal.Decimal
	Currency    string
	FinalizedAt time.Time
	VoidedAt    time.Time
	VoidReason  string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Items  []Item
	Shares []Share
}

// CanFinalize reports whether the settlement may transition to finalized.
func (s *Settlement) CanFinalize() bool {
	return s != nil && (s.Status == StatusDraft || s.Status == StatusCalculated)
}

// CanVoid reports whether the settlement may transition to voided.
func (s *Settlement) CanVoid() bool {
	return s != nil && s.Status == StatusFinalized
}

// FixedUtility is a non-metered recurring cost line on a property, consumed
// read-only by the calculator.
type FixedUtility struct {
	ID          string
	PropertyID  string
	Name        string
	PeriodCost  decimal.Decimal
	IsPerPerson bool
	SplitMethod string
	IsActive    bool
}

// RateSnapshot is a versioned price per unit, effective from a given date,
// so historical settlements stay reproducible after a price change.
type RateSnapshot struct {
	ID            string
	PropertyID    string
	MeterType     string
	PricePerUnit  decimal.Decimal
	EffectiveFrom time.Time
}

// NewSettlementID generates a random settlement id.
func NewSettlementID() string { return newID("stl-") }

// NewItemID generates a random item id.
func NewItemID() string { return newID("itm-") }

// NewShareID generates a random share id.
func NewShareID() string { return newID("shr-") }

var ledgerEntrySeq atomic.Uint64

// NewLedgerEntryID generates a ledger entry id. Ledger rows posted in one
// transaction share a created_at and are tie-broken by id, so ids must sort
// lexicographically in generation order: fixed-width nanosecond timestamp,
// then a process-local counter, then random bytes.
func NewLedgerEntryID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("led-%016x-%06x-%s",
		uint64(time.Now().UnixNano()),
		ledgerEntrySeq.Add(1)&0xffffff,
		hex.EncodeToString(buf))
}

func newID(prefix string) string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return prefix + hex.EncodeToString(buf)
}
