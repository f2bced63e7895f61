// Package proration distributes a shared period cost across tenant
// occupancy intervals ("smart split").
package proration

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SplitMethod selects how a period cost is distributed.
type SplitMethod string

const (
	// SplitByDays weights each tenant by occupied days within the period.
	SplitByDays SplitMethod = "BY_DAYS"
	// SplitEqual divides the cost evenly per lease.
	SplitEqual SplitMethod = "EQUAL"
	// SplitByPersons divides the cost evenly per occupant. Arithmetic matches
	// SplitEqual under current business rules; the two remain separate
	// billing policies and must not be merged.
	SplitByPersons SplitMethod = "BY_PERSONS"
)

const (
	moneyPlaces = 2
	ratioPlaces = 4
)

// TenantPeriod is a tenant occupancy interval. Both bounds are inclusive
// dates; a nil LeaseEnd means the tenant is still occupying.
type TenantPeriod struct {
	TenantID   string
	LeaseStart time.Time
	LeaseEnd   *time.Time
}

// Options configures a split.
type Options struct {
	Method SplitMethod
	// AbsorbGapDays makes the owner absorb days with no tenant. When false,
	// tenants collectively absorb vacancy gaps via a totalDays denominator.
	AbsorbGapDays bool
}

// DefaultOptions returns day-weighted splitting with owner-absorbed gaps.
func DefaultOptions() Options {
	return Options{Method: SplitByDays, AbsorbGapDays: true}
}

// Share is one tenant's computed portion of the period cost.
type Share struct {
	TenantID   string
	ActiveDays int
	ShareRatio decimal.Decimal
	Amount     decimal.Decimal
}

// ActiveDays returns the inclusive day overlap between the billing period
// and a tenant occupancy interval, zero when they do not overlap.
func ActiveDays(periodStart, periodEnd time.Time, period TenantPeriod) int {
	start := dateOnly(periodStart)
	end := dateOnly(periodEnd)

	effectiveStart := dateOnly(period.LeaseStart)
	if effectiveStart.Before(start) {
		effectiveStart = start
	}
	effectiveEnd := end
	if period.LeaseEnd != nil && dateOnly(*period.LeaseEnd).Before(end) {
		effectiveEnd = dateOnly(*period.LeaseEnd)
	}
	if effectiveStart.After(effectiveEnd) {
		return 0
	}
	return inclusiveDays(effectiveStart, effectiveEnd)
}

// Split computes each tenant's share of totalCost for the inclusive period.
// Tenants without overlap are excluded. A non-positive cost or period yields
// an empty result. Shares are ordered by ascending tenant id; the last tenant
// receives the remainder after rounding so the shares always sum to
// totalCost exactly.
func Split(periodStart, periodEnd time.Time, totalCost decimal.Decimal, periods []TenantPeriod, opts Options) []Share {
	totalDays := inclusiveDays(dateOnly(periodStart), dateOnly(periodEnd))
	if totalDays <= 0 || !totalCost.IsPositive() {
		return nil
	}
	if opts.Method == "" {
		opts.Method = SplitByDays
	}

	type active struct {
		period TenantPeriod
		days   int
	}
	var actives []active
	for _, p := range periods {
		days := ActiveDays(periodStart, periodEnd, p)
		if days > 0 {
			actives = append(actives, active{period: p, days: days})
		}
	}
	if len(actives) == 0 {
		return nil
	}
	sort.Slice(actives, func(i, j int) bool {
		return actives[i].period.TenantID < actives[j].period.TenantID
	})

	total := totalCost.Round(moneyPlaces)
	shares := make([]Share, 0, len(actives))
	allocated := decimal.Zero

	switch opts.Method {
	case SplitEqual, SplitByPersons:
		count := decimal.NewFromInt(int64(len(actives)))
		ratio := decimal.New(1, 0).Div(count).Round(ratioPlaces)
		for i, a := range actives {
			amount := total.Div(count).Round(moneyPlaces)
			if i == len(actives)-1 {
				amount = total.Sub(allocated)
			}
			allocated = allocated.Add(amount)
			shares = append(shares, Share{
				TenantID:   a.period.TenantID,
				ActiveDays: a.days,
				ShareRatio: ratio,
				Amount:     amount,
			})
		}
	default:
		denominator := totalDays
		if opts.AbsorbGapDays {
			denominator = 0
			for _, a := range actives {
				denominator += a.days
			}
		}
		if denominator <= 0 {
			return nil
		}
		denom := decimal.NewFromInt(int64(denominator))
		for i, a := range actives {
			days := decimal.NewFromInt(int64(a.days))
			amount := total.Mul(days).Div(denom).Round(moneyPlaces)
			if i == len(actives)-1 {
				amount = total.Sub(allocated)
			}
			allocated = allocated.Add(amount)
			shares = append(shares, Share{
				TenantID:   a.period.TenantID,
				ActiveDays: a.days,
				ShareRatio: days.Div(denom).Round(ratioPlaces),
				Amount:     amount,
			})
		}
	}
	return shares
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func inclusiveDays(start, end time.Time) int {
	if start.After(end) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}
