package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rentledger/internal/settlement/application"
	settlement "rentledger/internal/settlement/domain"

	"github.com/shopspring/decimal"
)

// ReadModel answers the calculator's occupancy, fixed utility and advance
// payment queries straight off the tables; there is no write path here.
type ReadModel struct {
	db *sql.DB
}

func NewReadModel(db *sql.DB) *ReadModel {
	return &ReadModel{db: db}
}

// ListActiveInPeriod returns tenants whose occupancy overlaps the period. An
// open-ended tenancy (NULL move_out_date) overlaps every later period.
func (r *ReadModel) ListActiveInPeriod(ctx context.Context, propertyID string, periodStart, periodEnd time.Time) ([]application.Tenant, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement readmodel: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, move_in_date, move_out_date
FROM tenants
WHERE property_id = $1
  AND move_in_date <= $3
  AND (move_out_date IS NULL OR move_out_date >= $2)
ORDER BY id`, propertyID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []application.Tenant
	for rows.Next() {
		var t application.Tenant
		var name sql.NullString
		var moveOut sql.NullTime
		if err := rows.Scan(&t.ID, &name, &t.MoveInDate, &moveOut); err != nil {
			return nil, err
		}
		t.Name = name.String
		t.MoveInDate = t.MoveInDate.UTC()
		if moveOut.Valid {
			out := moveOut.Time.UTC()
			t.MoveOutDate = &out
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// ListActive returns the property's active fixed utility lines.
func (r *ReadModel) ListActive(ctx context.Context, propertyID string) ([]settlement.FixedUtility, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement readmodel: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, property_id, name, period_cost, is_per_person, split_method, is_active
FROM fixed_utilities
WHERE property_id = $1 AND is_active
ORDER BY id`, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var utilities []settlement.FixedUtility
	for rows.Next() {
		var u settlement.FixedUtility
		var cost string
		var method sql.NullString
		if err := rows.Scan(&u.ID, &u.PropertyID, &u.Name, &cost, &u.IsPerPerson, &method, &u.IsActive); err != nil {
			return nil, err
		}
		u.PeriodCost, err = decimal.NewFromString(cost)
		if err != nil {
			return nil, err
		}
		u.SplitMethod = method.String
		utilities = append(utilities, u)
	}
	return utilities, rows.Err()
}

// SumAdvances totals a tenant's utility advance payments dated inside the
// period. Missing rows sum to zero, not an error.
func (r *ReadModel) SumAdvances(ctx context.Context, tenantID, propertyID string, from, to time.Time) (decimal.Decimal, error) {
	if r == nil || r.db == nil {
		return decimal.Zero, errors.New("settlement readmodel: nil db")
	}
	var total sql.NullString
	err := r.db.QueryRowContext(ctx, `
SELECT SUM(amount)
FROM advance_payments
WHERE tenant_id = $1 AND property_id = $2
  AND paid_at >= $3 AND paid_at <= $4`, tenantID, propertyID, from, to).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(total.String)
}
