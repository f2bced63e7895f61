package application

import (
	"context"
	"strings"
	"testing"
	"time"

	metering "rentledger/internal/metering/domain"
	meteringmemory "rentledger/internal/metering/infrastructure/memory"
	"rentledger/internal/proration"
	settlement "rentledger/internal/settlement/domain"

	"github.com/shopspring/decimal"
)

type stubTenantReader struct {
	tenants []Tenant
}

func (s stubTenantReader) ListActiveInPeriod(_ context.Context, _ string, _, _ time.Time) ([]Tenant, error) {
	return s.tenants, nil
}

type stubFixedReader struct {
	utilities []settlement.FixedUtility
}

func (s stubFixedReader) ListActive(_ context.Context, _ string) ([]settlement.FixedUtility, error) {
	return s.utilities, nil
}

type stubRateProvider struct {
	rate decimal.Decimal
	ok   bool
}

func (s stubRateProvider) RateAt(_ context.Context, _, _ string, _ time.Time) (decimal.Decimal, bool, error) {
	return s.rate, s.ok, nil
}

type stubAdvanceReader struct {
	byTenant map[string]decimal.Decimal
}

func (s stubAdvanceReader) SumAdvances(_ context.Context, tenantID, _ string, _, _ time.Time) (decimal.Decimal, error) {
	if amount, ok := s.byTenant[tenantID]; ok {
		return amount, nil
	}
	return decimal.Zero, nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func seedElectricityMeter(t *testing.T, repo *meteringmemory.MeterRepository, prev, curr string) metering.Meter {
	t.Helper()
	meter := metering.Meter{
		ID:         "mtr-1",
		PropertyID: "prop-1",
		OwnerID:    "owner-1",
		Type:       metering.MeterTypeElectricity,
		Unit:       "kWh",
		Status:     metering.MeterStatusActive,
	}
	repo.SeedMeter(meter)
	repo.SeedReading(metering.MeterReading{
		ID:          "rdg-prev",
		MeterID:     meter.ID,
		Value:       decimal.RequireFromString(prev),
		ReadingDate: date(2023, time.December, 31),
		Type:        metering.ReadingTypeRegular,
	})
	repo.SeedReading(metering.MeterReading{
		ID:          "rdg-curr",
		MeterID:     meter.ID,
		Value:       decimal.RequireFromString(curr),
		ReadingDate: date(2024, time.January, 31),
		Type:        metering.ReadingTypeRegular,
	})
	return meter
}

func newCalculator(t *testing.T, tenants TenantReader, meters MeterReader, fixed FixedUtilityReader, rates RateProvider, advances AdvanceReader) *Calculator {
	t.Helper()
	calc, err := NewCalculator(tenants, meters, fixed, rates, advances, DefaultPolicy(), fixedClock{now: date(2024, time.February, 1)})
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	return calc
}

func TestCalculateEndToEnd(t *testing.T) {
	// Property with one electricity meter (100 -> 350 at 1.00/unit) and a
	// flat 60.00 internet line over a 31-day January split between two
	// back-to-back tenants.
	meterRepo := meteringmemory.NewMeterRepository()
	seedElectricityMeter(t, meterRepo, "100", "350")

	tenants := stubTenantReader{tenants: []Tenant{
		{ID: "tenant-a", MoveInDate: date(2024, time.January, 1), MoveOutDate: datePtr(2024, time.January, 15)},
		{ID: "tenant-b", MoveInDate: date(2024, time.January, 16), MoveOutDate: datePtr(2024, time.January, 31)},
	}}
	fixed := stubFixedReader{utilities: []settlement.FixedUtility{
		{ID: "fix-1", PropertyID: "prop-1", Name: "internet", PeriodCost: decimal.RequireFromString("60.00"), IsActive: true},
	}}
	rates := stubRateProvider{rate: decimal.RequireFromString("1.00"), ok: true}

	calc := newCalculator(t, tenants, meterRepo, fixed, rates, stubAdvanceReader{})
	result, err := calc.Calculate(context.Background(), CalculateInput{
		PropertyID:  "prop-1",
		OwnerID:     "owner-1",
		PeriodStart: date(2024, time.January, 1),
		PeriodEnd:   date(2024, time.January, 31),
		Approach:    settlement.ApproachCostOnly,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}

	stl := result.Settlement
	if want := decimal.RequireFromString("310.00"); !stl.TotalAmount.Equal(want) {
		t.Fatalf("total amount: got %s, want %s", stl.TotalAmount, want)
	}
	if len(stl.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(stl.Items))
	}
	if want := decimal.RequireFromString("250.00"); !stl.Items[0].TotalCost.Equal(want) {
		t.Fatalf("meter item cost: got %s, want %s", stl.Items[0].TotalCost, want)
	}
	if want := decimal.RequireFromString("250.00"); !stl.Items[0].Consumption.Equal(want) {
		t.Fatalf("consumption: got %s, want %s", stl.Items[0].Consumption, want)
	}

	if len(stl.Shares) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(stl.Shares))
	}
	shareA, shareB := stl.Shares[0], stl.Shares[1]
	if shareA.TenantID != "tenant-a" || shareB.TenantID != "tenant-b" {
		t.Fatalf("share order: %s, %s", shareA.TenantID, shareB.TenantID)
	}
	if shareA.ActiveDays != 15 || shareB.ActiveDays != 16 {
		t.Fatalf("active days: got %d/%d, want 15/16", shareA.ActiveDays, shareB.ActiveDays)
	}
	if want := decimal.RequireFromString("150.00"); !shareA.FinalAmount.Equal(want) {
		t.Fatalf("share A: got %s, want %s", shareA.FinalAmount, want)
	}
	if want := decimal.RequireFromString("160.00"); !shareB.FinalAmount.Equal(want) {
		t.Fatalf("share B: got %s, want %s", shareB.FinalAmount, want)
	}
	if !shareA.FinalAmount.Add(shareB.FinalAmount).Equal(stl.TotalAmount) {
		t.Fatal("shares do not sum to total")
	}
	if stl.Status != settlement.StatusCalculated {
		t.Fatalf("status: got %s, want calculated", stl.Status)
	}
}

func TestCalculateMeterWithOneReadingSkipped(t *testing.T) {
	meterRepo := meteringmemory.NewMeterRepository()
	meterRepo.SeedMeter(metering.Meter{
		ID: "mtr-lonely", PropertyID: "prop-1", OwnerID: "owner-1",
		Type: metering.MeterTypeWater, Unit: "m3", Status: metering.MeterStatusActive,
	})
	meterRepo.SeedReading(metering.MeterReading{
		ID: "rdg-only", MeterID: "mtr-lonely",
		Value:       decimal.RequireFromString("10"),
		ReadingDate: date(2024, time.January, 5),
		Type:        metering.ReadingTypeInitial,
	})

	calc := newCalculator(t,
		stubTenantReader{tenants: []Tenant{{ID: "t1", MoveInDate: date(2023, time.June, 1)}}},
		meterRepo,
		stubFixedReader{},
		stubRateProvider{rate: decimal.RequireFromString("2.00"), ok: true},
		stubAdvanceReader{},
	)
	result, err := calc.Calculate(context.Background(), CalculateInput{
		PropertyID:  "prop-1",
		OwnerID:     "owner-1",
		PeriodStart: date(2024, time.January, 1),
		PeriodEnd:   date(2024, time.January, 31),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(result.Settlement.Items) != 0 {
		t.Fatalf("meter without two readings must be skipped, got %d items", len(result.Settlement.Items))
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "mtr-lonely") {
		t.Fatalf("expected a warning naming the meter, got %v", result.Warnings)
	}
}

func TestCalculateNegativeConsumptionClamped(t *testing.T) {
	meterRepo := meteringmemory.NewMeterRepository()
	seedElectricityMeter(t, meterRepo, "500", "350")

	calc := newCalculator(t,
		stubTenantReader{tenants: []Tenant{{ID: "t1", MoveInDate: date(2023, time.June, 1)}}},
		meterRepo,
		stubFixedReader{},
		stubRateProvider{rate: decimal.RequireFromString("1.00"), ok: true},
		stubAdvanceReader{},
	)
	result, err := calc.Calculate(context.Background(), CalculateInput{
		PropertyID:  "prop-1",
		OwnerID:     "owner-1",
		PeriodStart: date(2024, time.January, 1),
		PeriodEnd:   date(2024, time.January, 31),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(result.Settlement.Items) != 1 {
		t.Fatalf("expected the meter item to survive, got %d items", len(result.Settlement.Items))
	}
	if !result.Settlement.Items[0].TotalCost.Equal(decimal.Zero) {
		t.Fatalf("negative consumption must cost zero, got %s", result.Settlement.Items[0].TotalCost)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "negative consumption") {
		t.Fatalf("expected negative consumption warning, got %v", result.Warnings)
	}
}

func TestCalculateRateFallsBackToMeterPrice(t *testing.T) {
	meterRepo := meteringmemory.NewMeterRepository()
	meter := seedElectricityMeter(t, meterRepo, "100", "200")
	meter.PricePerUnit = decimal.NullDecimal{Decimal: decimal.RequireFromString("0.50"), Valid: true}
	meterRepo.SeedMeter(meter)

	calc := newCalculator(t,
		stubTenantReader{tenants: []Tenant{{ID: "t1", MoveInDate: date(2023, time.June, 1)}}},
		meterRepo,
		stubFixedReader{},
		stubRateProvider{ok: false},
		stubAdvanceReader{},
	)
	result, err := calc.Calculate(context.Background(), CalculateInput{
		PropertyID:  "prop-1",
		OwnerID:     "owner-1",
		PeriodStart: date(2024, time.January, 1),
		PeriodEnd:   date(2024, time.January, 31),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if want := decimal.RequireFromString("50.00"); !result.Settlement.TotalAmount.Equal(want) {
		t.Fatalf("total with fallback rate: got %s, want %s", result.Settlement.TotalAmount, want)
	}
}

func TestCalculateNoRateNoFallbackSkips(t *testing.T) {
	meterRepo := meteringmemory.NewMeterRepository()
	seedElectricityMeter(t, meterRepo, "100", "200")

	calc := newCalculator(t,
		stubTenantReader{tenants: []Tenant{{ID: "t1", MoveInDate: date(2023, time.June, 1)}}},
		meterRepo,
		stubFixedReader{},
		stubRateProvider{ok: false},
		stubAdvanceReader{},
	)
	result, err := calc.Calculate(context.Background(), CalculateInput{
		PropertyID:  "prop-1",
		OwnerID:     "owner-1",
		PeriodStart: date(2024, time.January, 1),
		PeriodEnd:   date(2024, time.January, 31),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(result.Settlement.Items) != 0 {
		t.Fatalf("meter without any rate must be skipped, got %d items", len(result.Settlement.Items))
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "no rate") {
		t.Fatalf("expected missing rate warning, got %v", result.Warnings)
	}
}

func TestCalculatePerPersonFixedUtility(t *testing.T) {
	fixed := stubFixedReader{utilities: []settlement.FixedUtility{
		{ID: "fix-waste", Name: "waste collection", PeriodCost: decimal.RequireFromString("25.00"), IsPerPerson: true, IsActive: true},
	}}
	tenants := stubTenantReader{tenants: []Tenant{
		{ID: "t1", MoveInDate: date(2023, time.June, 1)},
		{ID: "t2", MoveInDate: date(2023, time.June, 1)},
		{ID: "t3", MoveInDate: date(2023, time.June, 1)},
	}}

	calc := newCalculator(t, tenants, meteringmemory.NewMeterRepository(), fixed,
		stubRateProvider{ok: true}, stubAdvanceReader{})
	result, err := calc.Calculate(context.Background(), CalculateInput{
		PropertyID:  "prop-1",
		OwnerID:     "owner-1",
		PeriodStart: date(2024, time.January, 1),
		PeriodEnd:   date(2024, time.January, 31),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if want := decimal.RequireFromString("75.00"); !result.Settlement.TotalAmount.Equal(want) {
		t.Fatalf("per-person cost: got %s, want %s", result.Settlement.TotalAmount, want)
	}
}

func TestCalculatePerPersonMinimumMultiplier(t *testing.T) {
	fixed := stubFixedReader{utilities: []settlement.FixedUtility{
		{ID: "fix-waste", Name: "waste collection", PeriodCost: decimal.RequireFromString("25.00"), IsPerPerson: true, IsActive: true},
	}}

	calc := newCalculator(t, stubTenantReader{}, meteringmemory.NewMeterRepository(), fixed,
		stubRateProvider{ok: true}, stubAdvanceReader{})
	result, err := calc.Calculate(context.Background(), CalculateInput{
		PropertyID:  "prop-1",
		OwnerID:     "owner-1",
		PeriodStart: date(2024, time.January, 1),
		PeriodEnd:   date(2024, time.January, 31),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if want := decimal.RequireFromString("25.00"); !result.Settlement.TotalAmount.Equal(want) {
		t.Fatalf("per-person with no tenants keeps a multiplier of 1: got %s, want %s", result.Settlement.TotalAmount, want)
	}
	found := false
	for _, warning := range result.Warnings {
		if strings.Contains(warning, "no active tenants") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected no-active-tenants warning, got %v", result.Warnings)
	}
	if len(result.Settlement.Shares) != 0 {
		t.Fatalf("no tenants must yield no shares, got %d", len(result.Settlement.Shares))
	}
}

func TestCalculateAdvancePaymentNetting(t *testing.T) {
	meterRepo := meteringmemory.NewMeterRepository()
	seedElectricityMeter(t, meterRepo, "100", "350")

	tenants := stubTenantReader{tenants: []Tenant{
		{ID: "tenant-a", MoveInDate: date(2023, time.June, 1)},
	}}
	advances := stubAdvanceReader{byTenant: map[string]decimal.Decimal{
		"tenant-a": decimal.RequireFromString("200.00"),
	}}

	calc := newCalculator(t, tenants, meterRepo, stubFixedReader{},
		stubRateProvider{rate: decimal.RequireFromString("1.00"), ok: true}, advances)
	result, err := calc.Calculate(context.Background(), CalculateInput{
		PropertyID:  "prop-1",
		OwnerID:     "owner-1",
		PeriodStart: date(2024, time.January, 1),
		PeriodEnd:   date(2024, time.January, 31),
		Approach:    settlement.ApproachAdvancePayment,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	share := result.Settlement.Shares[0]
	if want := decimal.RequireFromString("200.00"); !share.AdvancesPaid.Equal(want) {
		t.Fatalf("advances paid: got %s, want %s", share.AdvancesPaid, want)
	}
	if want := decimal.RequireFromString("50.00"); !share.BalanceDue.Equal(want) {
		t.Fatalf("balance due: got %s, want %s", share.BalanceDue, want)
	}
}

func TestCalculateSplitMethodOverride(t *testing.T) {
	tenants := stubTenantReader{tenants: []Tenant{
		{ID: "t1", MoveInDate: date(2024, time.January, 1), MoveOutDate: datePtr(2024, time.January, 10)},
		{ID: "t2", MoveInDate: date(2024, time.January, 1)},
	}}
	fixed := stubFixedReader{utilities: []settlement.FixedUtility{
		{ID: "fix-1", Name: "internet", PeriodCost: decimal.RequireFromString("100.00"), IsActive: true},
	}}

	calc := newCalculator(t, tenants, meteringmemory.NewMeterRepository(), fixed,
		stubRateProvider{ok: true}, stubAdvanceReader{})
	result, err := calc.Calculate(context.Background(), CalculateInput{
		PropertyID:  "prop-1",
		OwnerID:     "owner-1",
		PeriodStart: date(2024, time.January, 1),
		PeriodEnd:   date(2024, time.January, 31),
		SplitMethod: proration.SplitEqual,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if want := decimal.RequireFromString("50.00"); !result.Settlement.Shares[0].FinalAmount.Equal(want) {
		t.Fatalf("equal split override: got %s, want %s", result.Settlement.Shares[0].FinalAmount, want)
	}
}
