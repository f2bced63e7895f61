// Package application orchestrates settlement calculation, finalization and
// voiding on top of the settlement domain.
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	metering "rentledger/internal/metering/domain"
	"rentledger/internal/observability/metrics"
	"rentledger/internal/proration"
	settlement "rentledger/internal/settlement/domain"

	"github.com/shopspring/decimal"
)

// Tenant is the occupancy read model the calculator consumes. A nil
// MoveOutDate means the tenant is still occupying.
type Tenant struct {
	ID          string
	Name        string
	MoveInDate  time.Time
	MoveOutDate *time.Time
}

// TenantReader lists tenants whose occupancy overlaps a period.
type TenantReader interface {
	ListActiveInPeriod(ctx context.Context, propertyID string, periodStart, periodEnd time.Time) ([]Tenant, error)
}

// MeterReader provides active meters and their reading history. Satisfied by
// the metering repository.
type MeterReader interface {
	ListActiveByProperty(ctx context.Context, propertyID string) ([]metering.Meter, error)
	ListReadings(ctx context.Context, meterID string, cutoff time.Time, limit int) ([]metering.MeterReading, error)
}

// FixedUtilityReader lists active non-metered cost lines on a property.
type FixedUtilityReader interface {
	ListActive(ctx context.Context, propertyID string) ([]settlement.FixedUtility, error)
}

// RateProvider resolves the price per unit effective at a date; ok is false
// when no snapshot covers the date.
type RateProvider interface {
	RateAt(ctx context.Context, propertyID, meterType string, at time.Time) (decimal.Decimal, bool, error)
}

// AdvanceReader sums a tenant's utility advance payments within a period.
type AdvanceReader interface {
	SumAdvances(ctx context.Context, tenantID, propertyID string, from, to time.Time) (decimal.Decimal, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// CalculateInput describes one settlement run request.
type CalculateInput struct {
	PropertyID  string
	OwnerID     string
	Title       string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Approach    settlement.Approach
	// SplitMethod and AbsorbGapDays override the policy defaults when set.
	SplitMethod   proration.SplitMethod
	AbsorbGapDays *bool
}

// Result is a calculated settlement plus advisory warnings. Nothing is
// persisted; warnings do not block finalization.
type Result struct {
	Settlement *settlement.Settlement
	Warnings   []string
}

// Calculator computes a full period settlement. It reads current state but
// writes nothing, so it is safe to run concurrently with unrelated writes.
type Calculator struct {
	tenants  TenantReader
	meters   MeterReader
	fixed    FixedUtilityReader
	rates    RateProvider
	advances AdvanceReader
	policy   Policy
	clock    Clock
}

// NewCalculator constructs the calculator.
func NewCalculator(
	tenants TenantReader,
	meters MeterReader,
	fixed FixedUtilityReader,
	rates RateProvider,
	advances AdvanceReader,
	policy Policy,
	clock Clock,
) (*Calculator, error) {
	if tenants == nil {
		return nil, errors.New("calculator: nil tenant reader")
	}
	if meters == nil {
		return nil, errors.New("calculator: nil meter reader")
	}
	if fixed == nil {
		return nil, errors.New("calculator: nil fixed utility reader")
	}
	if rates == nil {
		return nil, errors.New("calculator: nil rate provider")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Calculator{
		tenants:  tenants,
		meters:   meters,
		fixed:    fixed,
		rates:    rates,
		advances: advances,
		policy:   policy,
		clock:    clock,
	}, nil
}

// Calculate runs a full period settlement: metered consumption priced at the
// rate effective at period end, fixed utility costs, and a prorated split of
// the combined total. Anomalies become warnings, not failures.
func (c *Calculator) Calculate(ctx context.Context, input CalculateInput) (*Result, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSettlementCalculate(result, time.Since(start))
	}()

	if input.PropertyID == "" {
		result = metrics.ResultError
		return nil, settlement.ErrEmptyPropertyID
	}
	if input.PeriodStart.IsZero() || input.PeriodEnd.IsZero() || input.PeriodEnd.Before(input.PeriodStart) {
		result = metrics.ResultError
		return nil, settlement.ErrInvalidPeriod
	}
	if input.Approach == "" {
		input.Approach = settlement.ApproachCostOnly
	}

	var warnings []string

	tenants, err := c.tenants.ListActiveInPeriod(ctx, input.PropertyID, input.PeriodStart, input.PeriodEnd)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if len(tenants) == 0 {
		warnings = append(warnings, "no active tenants in period")
	}

	periods := make([]proration.TenantPeriod, 0, len(tenants))
	for _, tenant := range tenants {
		periods = append(periods, proration.TenantPeriod{
			TenantID:   tenant.ID,
			LeaseStart: tenant.MoveInDate,
			LeaseEnd:   tenant.MoveOutDate,
		})
	}
	occupantCount := 0
	for _, p := range periods {
		if proration.ActiveDays(input.PeriodStart, input.PeriodEnd, p) > 0 {
			occupantCount++
		}
	}

	items, meterWarnings, err := c.meterItems(ctx, input)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	warnings = append(warnings, meterWarnings...)

	fixedItems, err := c.fixedItems(ctx, input.PropertyID, occupantCount)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	items = append(items, fixedItems...)

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalCost)
	}
	total = total.Round(2)

	opts := proration.Options{Method: c.policy.SplitMethod, AbsorbGapDays: c.policy.AbsorbGapDays}
	if input.SplitMethod != "" {
		opts.Method = input.SplitMethod
	}
	if input.AbsorbGapDays != nil {
		opts.AbsorbGapDays = *input.AbsorbGapDays
	}
	split := proration.Split(input.PeriodStart, input.PeriodEnd, total, periods, opts)

	now := c.clock.Now()
	stl := &settlement.Settlement{
		ID:          settlement.NewSettlementID(),
		PropertyID:  input.PropertyID,
		OwnerID:     input.OwnerID,
		Title:       input.Title,
		PeriodStart: input.PeriodStart,
		PeriodEnd:   input.PeriodEnd,
		Approach:    input.Approach,
		Status:      settlement.StatusCalculated,
		TotalAmount: total,
		Currency:    c.policy.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
		Items:       items,
	}
	if stl.Title == "" {
		stl.Title = input.PeriodStart.Format("2006-01-02") + ".." + input.PeriodEnd.Format("2006-01-02")
	}
	for i := range stl.Items {
		stl.Items[i].SettlementID = stl.ID
	}

	for _, share := range split {
		s := settlement.Share{
			ID:           settlement.NewShareID(),
			SettlementID: stl.ID,
			TenantID:     share.TenantID,
			ActiveDays:   share.ActiveDays,
			ShareRatio:   share.ShareRatio,
			FinalAmount:  share.Amount,
		}
		if input.Approach == settlement.ApproachAdvancePayment && c.advances != nil {
			paid, err := c.advances.SumAdvances(ctx, share.TenantID, input.PropertyID, input.PeriodStart, input.PeriodEnd)
			if err != nil {
				result = metrics.ResultError
				return nil, err
			}
			s.AdvancesPaid = paid.Round(2)
			s.BalanceDue = s.FinalAmount.Sub(s.AdvancesPaid).Round(2)
		}
		stl.Shares = append(stl.Shares, s)
	}

	metrics.AddSettlementWarnings(len(warnings))
	return &Result{Settlement: stl, Warnings: warnings}, nil
}

func (c *Calculator) meterItems(ctx context.Context, input CalculateInput) ([]settlement.Item, []string, error) {
	meters, err := c.meters.ListActiveByProperty(ctx, input.PropertyID)
	if err != nil {
		return nil, nil, err
	}

	var items []settlement.Item
	var warnings []string
	for _, meter := range meters {
		lookback := c.policy.ReadingLookback
		if lookback < 2 {
			lookback = 2
		}
		readings, err := c.meters.ListReadings(ctx, meter.ID, endOfDay(input.PeriodEnd), lookback)
		if err != nil {
			return nil, nil, err
		}
		if len(readings) < 2 {
			warnings = append(warnings, fmt.Sprintf("meter %s: fewer than two readings before period end, skipped", meter.ID))
			continue
		}
		curr, prev := readings[0], readings[1]
		consumption := curr.Value.Sub(prev.Value).Round(2)
		if consumption.IsNegative() {
			warnings = append(warnings, fmt.Sprintf("meter %s: negative consumption %s, clamped to zero", meter.ID, consumption))
			consumption = decimal.Zero
		}

		rate, ok, err := c.rates.RateAt(ctx, input.PropertyID, string(meter.Type), endOfDay(input.PeriodEnd))
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			if !meter.PricePerUnit.Valid {
				warnings = append(warnings, fmt.Sprintf("meter %s: no rate effective at period end and no fallback price, skipped", meter.ID))
				continue
			}
			rate = meter.PricePerUnit.Decimal
		}

		items = append(items, settlement.Item{
			ID:          settlement.NewItemID(),
			Kind:        settlement.ItemKindMeter,
			MeterID:     meter.ID,
			Name:        string(meter.Type),
			Unit:        meter.Unit,
			Consumption: consumption,
			Rate:        rate,
			TotalCost:   consumption.Mul(rate).Round(2),
		})
	}
	return items, warnings, nil
}

func (c *Calculator) fixedItems(ctx context.Context, propertyID string, occupantCount int) ([]settlement.Item, error) {
	utilities, err := c.fixed.ListActive(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	var items []settlement.Item
	for _, utility := range utilities {
		cost := utility.PeriodCost.Round(2)
		if utility.IsPerPerson {
			multiplier := occupantCount
			if multiplier < 1 {
				multiplier = 1
			}
			cost = cost.Mul(decimal.NewFromInt(int64(multiplier))).Round(2)
		}
		items = append(items, settlement.Item{
			ID:             settlement.NewItemID(),
			Kind:           settlement.ItemKindFixed,
			FixedUtilityID: utility.ID,
			Name:           utility.Name,
			Consumption:    decimal.Zero,
			Rate:           decimal.Zero,
			TotalCost:      cost,
		})
	}
	return items, nil
}

func endOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}
