package application

import (
	"context"
	"errors"
	"testing"
	"time"

	settlement "rentledger/internal/settlement/domain"
	"rentledger/internal/settlement/infrastructure/memory"

	"github.com/shopspring/decimal"
)

func seedCalculatedSettlement(t *testing.T, repo *memory.SettlementRepository, approach settlement.Approach, amounts ...string) *settlement.Settlement {
	t.Helper()
	stl := &settlement.Settlement{
		ID:          settlement.NewSettlementID(),
		PropertyID:  "prop-1",
		OwnerID:     "owner-1",
		Title:       "2024-01",
		PeriodStart: date(2024, time.January, 1),
		PeriodEnd:   date(2024, time.January, 31),
		Approach:    approach,
		Status:      settlement.StatusCalculated,
		Currency:    "PLN",
	}
	total := decimal.Zero
	for i, amount := range amounts {
		final := decimal.RequireFromString(amount)
		total = total.Add(final)
		stl.Shares = append(stl.Shares, settlement.Share{
			ID:           settlement.NewShareID(),
			SettlementID: stl.ID,
			TenantID:     "tenant-" + string(rune('a'+i)),
			FinalAmount:  final,
		})
	}
	stl.TotalAmount = total
	if err := repo.Create(context.Background(), stl); err != nil {
		t.Fatalf("create settlement: %v", err)
	}
	return stl
}

func TestFinalizePostsChargesAndFreezes(t *testing.T) {
	repo := memory.NewSettlementRepository()
	stl := seedCalculatedSettlement(t, repo, settlement.ApproachCostOnly, "150.00", "160.00")

	fin, err := NewFinalizer(repo, fixedClock{now: date(2024, time.February, 1)})
	if err != nil {
		t.Fatalf("new finalizer: %v", err)
	}
	finalized, err := fin.Finalize(context.Background(), stl.ID, "owner-1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalized.Status != settlement.StatusFinalized {
		t.Fatalf("status: got %s, want finalized", finalized.Status)
	}
	if finalized.FinalizedAt.IsZero() {
		t.Fatal("finalized timestamp not set")
	}

	entries, err := repo.ListEntries(context.Background(), "tenant-a", "prop-1")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one charge for tenant-a, got %d entries", len(entries))
	}
	if entries[0].Type != settlement.EntryTypeCharge {
		t.Fatalf("entry type: got %s, want charge", entries[0].Type)
	}
	if want := decimal.RequireFromString("150.00"); !entries[0].Amount.Equal(want) {
		t.Fatalf("charge amount: got %s, want %s", entries[0].Amount, want)
	}
	if !entries[0].BalanceAfter.Equal(entries[0].Amount) {
		t.Fatalf("balance after first charge: got %s, want %s", entries[0].BalanceAfter, entries[0].Amount)
	}
}

func TestFinalizeTwiceRejected(t *testing.T) {
	repo := memory.NewSettlementRepository()
	stl := seedCalculatedSettlement(t, repo, settlement.ApproachCostOnly, "100.00")

	fin, _ := NewFinalizer(repo, fixedClock{now: date(2024, time.February, 1)})
	if _, err := fin.Finalize(context.Background(), stl.ID, "owner-1"); err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	if _, err := fin.Finalize(context.Background(), stl.ID, "owner-1"); !errors.Is(err, settlement.ErrSettlementNotFound) {
		t.Fatalf("second finalize: got %v, want ErrSettlementNotFound", err)
	}

	entries, _ := repo.ListEntries(context.Background(), "tenant-a", "prop-1")
	if len(entries) != 1 {
		t.Fatalf("repeat finalize must not post again, got %d entries", len(entries))
	}
}

func TestFinalizeWrongOwnerLooksLikeMissing(t *testing.T) {
	repo := memory.NewSettlementRepository()
	stl := seedCalculatedSettlement(t, repo, settlement.ApproachCostOnly, "100.00")

	fin, _ := NewFinalizer(repo, fixedClock{now: date(2024, time.February, 1)})
	if _, err := fin.Finalize(context.Background(), stl.ID, "owner-2"); !errors.Is(err, settlement.ErrSettlementNotFound) {
		t.Fatalf("got %v, want ErrSettlementNotFound", err)
	}
}

func TestFinalizeWithoutSharesRejected(t *testing.T) {
	repo := memory.NewSettlementRepository()
	stl := seedCalculatedSettlement(t, repo, settlement.ApproachCostOnly)

	fin, _ := NewFinalizer(repo, fixedClock{now: date(2024, time.February, 1)})
	if _, err := fin.Finalize(context.Background(), stl.ID, "owner-1"); !errors.Is(err, settlement.ErrNoShares) {
		t.Fatalf("got %v, want ErrNoShares", err)
	}
}

func TestFinalizeAdvanceApproachPostsOffsetAfterCharge(t *testing.T) {
	repo := memory.NewSettlementRepository()
	stl := seedCalculatedSettlement(t, repo, settlement.ApproachAdvancePayment, "250.00")
	stl.Shares[0].AdvancesPaid = decimal.RequireFromString("200.00")
	if err := repo.Create(context.Background(), stl); err != nil {
		t.Fatalf("update settlement: %v", err)
	}
	repo.SeedLedgerEntry(settlement.LedgerEntry{
		ID:           settlement.NewLedgerEntryID(),
		TenantID:     "tenant-a",
		PropertyID:   "prop-1",
		Type:         settlement.EntryTypeCharge,
		Amount:       decimal.RequireFromString("20.00"),
		BalanceAfter: decimal.RequireFromString("20.00"),
		CreatedAt:    date(2023, time.December, 1),
	})

	fin, _ := NewFinalizer(repo, fixedClock{now: date(2024, time.February, 1)})
	if _, err := fin.Finalize(context.Background(), stl.ID, "owner-1"); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	entries, _ := repo.ListEntries(context.Background(), "tenant-a", "prop-1")
	if len(entries) != 3 {
		t.Fatalf("expected seed + charge + offset, got %d entries", len(entries))
	}
	charge, offset := entries[1], entries[2]
	if charge.Type != settlement.EntryTypeCharge || offset.Type != settlement.EntryTypeAdvancePayment {
		t.Fatalf("posting order: got %s then %s", charge.Type, offset.Type)
	}
	if want := decimal.RequireFromString("270.00"); !charge.BalanceAfter.Equal(want) {
		t.Fatalf("balance after charge: got %s, want %s", charge.BalanceAfter, want)
	}
	if want := decimal.RequireFromString("-200.00"); !offset.Amount.Equal(want) {
		t.Fatalf("offset amount: got %s, want %s", offset.Amount, want)
	}
	if want := decimal.RequireFromString("70.00"); !offset.BalanceAfter.Equal(want) {
		t.Fatalf("balance after offset: got %s, want %s", offset.BalanceAfter, want)
	}

	// Running balance must be reconstructible by replay.
	running := decimal.Zero
	for _, entry := range entries {
		running = running.Add(entry.Amount)
		if !entry.BalanceAfter.Equal(running) {
			t.Fatalf("entry %s: balance after %s, replay says %s", entry.ID, entry.BalanceAfter, running)
		}
	}
}

func TestVoidCompensatesEveryShare(t *testing.T) {
	repo := memory.NewSettlementRepository()
	stl := seedCalculatedSettlement(t, repo, settlement.ApproachCostOnly, "100.00", "50.00")

	fin, _ := NewFinalizer(repo, fixedClock{now: date(2024, time.February, 1)})
	if _, err := fin.Finalize(context.Background(), stl.ID, "owner-1"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	voided, err := fin.Void(context.Background(), stl.ID, "owner-1", "wrong meter reading")
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.Status != settlement.StatusVoided {
		t.Fatalf("status: got %s, want voided", voided.Status)
	}
	if voided.VoidReason != "wrong meter reading" {
		t.Fatalf("void reason: got %q", voided.VoidReason)
	}

	for _, tenantID := range []string{"tenant-a", "tenant-b"} {
		entries, _ := repo.ListEntries(context.Background(), tenantID, "prop-1")
		if len(entries) != 2 {
			t.Fatalf("%s: expected charge + adjustment, got %d entries", tenantID, len(entries))
		}
		adjustment := entries[1]
		if adjustment.Type != settlement.EntryTypeAdjustment {
			t.Fatalf("%s: got %s, want adjustment", tenantID, adjustment.Type)
		}
		if !adjustment.Amount.Equal(entries[0].Amount.Neg()) {
			t.Fatalf("%s: adjustment %s does not compensate charge %s", tenantID, adjustment.Amount, entries[0].Amount)
		}
		if !adjustment.BalanceAfter.Equal(decimal.Zero) {
			t.Fatalf("%s: balance after void: got %s, want 0", tenantID, adjustment.BalanceAfter)
		}
	}
}

func TestVoidRequiresFinalizedStatus(t *testing.T) {
	repo := memory.NewSettlementRepository()
	stl := seedCalculatedSettlement(t, repo, settlement.ApproachCostOnly, "100.00")

	fin, _ := NewFinalizer(repo, fixedClock{now: date(2024, time.February, 1)})
	if _, err := fin.Void(context.Background(), stl.ID, "owner-1", "typo"); !errors.Is(err, settlement.ErrSettlementNotFound) {
		t.Fatalf("void of calculated settlement: got %v, want ErrSettlementNotFound", err)
	}
}

func TestVoidRequiresReason(t *testing.T) {
	repo := memory.NewSettlementRepository()
	stl := seedCalculatedSettlement(t, repo, settlement.ApproachCostOnly, "100.00")

	fin, _ := NewFinalizer(repo, fixedClock{now: date(2024, time.February, 1)})
	if _, err := fin.Finalize(context.Background(), stl.ID, "owner-1"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := fin.Void(context.Background(), stl.ID, "owner-1", ""); !errors.Is(err, settlement.ErrEmptyVoidReason) {
		t.Fatalf("got %v, want ErrEmptyVoidReason", err)
	}
}

func TestSaveDraftThenFinalize(t *testing.T) {
	repo := memory.NewSettlementRepository()
	fin, _ := NewFinalizer(repo, fixedClock{now: date(2024, time.February, 1)})

	stl := &settlement.Settlement{
		ID:          settlement.NewSettlementID(),
		PropertyID:  "prop-1",
		OwnerID:     "owner-1",
		Title:       "draft run",
		PeriodStart: date(2024, time.January, 1),
		PeriodEnd:   date(2024, time.January, 31),
		Approach:    settlement.ApproachCostOnly,
		Status:      settlement.StatusDraft,
		TotalAmount: decimal.RequireFromString("80.00"),
		Shares: []settlement.Share{
			{ID: settlement.NewShareID(), TenantID: "tenant-a", FinalAmount: decimal.RequireFromString("80.00")},
		},
	}
	if err := fin.SaveDraft(context.Background(), stl); err != nil {
		t.Fatalf("save draft: %v", err)
	}
	finalized, err := fin.Finalize(context.Background(), stl.ID, "owner-1")
	if err != nil {
		t.Fatalf("finalize draft: %v", err)
	}
	if finalized.Status != settlement.StatusFinalized {
		t.Fatalf("status: got %s, want finalized", finalized.Status)
	}
}
