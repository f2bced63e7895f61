// Package postgres persists settlements and the tenant ledger.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	settlement "rentledger/internal/settlement/domain"

	"github.com/shopspring/decimal"
)

const settlementColumns = `
id, property_id, owner_id, title, period_start, period_end, approach, status,
total_amount, currency, finalized_at, voided_at, void_reason, created_at, updated_at`

// SettlementRepository persists settlements and their ledger postings.
// Finalize and Void run as single transactions with a row lock on the
// settlement so racing attempts serialize on the status guard.
type SettlementRepository struct {
	db *sql.DB
}

// NewSettlementRepository constructs a repository.
func NewSettlementRepository(db *sql.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// Create inserts a settlement with its items and shares.
func (r *SettlementRepository) Create(ctx context.Context, stl *settlement.Settlement) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	if stl == nil {
		return settlement.ErrNilSettlement
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO utility_settlements (
	id, property_id, owner_id, title, period_start, period_end, approach, status,
	total_amount, currency, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		stl.ID, stl.PropertyID, stl.OwnerID, stl.Title, stl.PeriodStart, stl.PeriodEnd,
		stl.Approach, stl.Status, stl.TotalAmount, stl.Currency, stl.CreatedAt, stl.UpdatedAt)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, item := range stl.Items {
		_, err := tx.ExecContext(ctx, `
INSERT INTO settlement_items (
	id, settlement_id, kind, meter_id, fixed_utility_id, name, unit, consumption, rate, total_cost
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			item.ID, stl.ID, item.Kind, nullString(item.MeterID), nullString(item.FixedUtilityID),
			item.Name, item.Unit, item.Consumption, item.Rate, item.TotalCost)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	for _, share := range stl.Shares {
		_, err := tx.ExecContext(ctx, `
INSERT INTO settlement_shares (
	id, settlement_id, tenant_id, active_days, share_ratio, final_amount, advances_paid, balance_due
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			share.ID, stl.ID, share.TenantID, share.ActiveDays, share.ShareRatio,
			share.FinalAmount, share.AdvancesPaid, share.BalanceDue)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetByID loads a settlement with children, scoped to an owner.
func (r *SettlementRepository) GetByID(ctx context.Context, id, ownerID string) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+settlementColumns+`
FROM utility_settlements
WHERE id = $1 AND owner_id = $2
LIMIT 1`, id, ownerID)
	stl, err := scanSettlement(row)
	if err != nil || stl == nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, r.db, stl); err != nil {
		return nil, err
	}
	return stl, nil
}

// ListByProperty lists settlements for a property, newest period first.
func (r *SettlementRepository) ListByProperty(ctx context.Context, propertyID, ownerID string) ([]settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+settlementColumns+`
FROM utility_settlements
WHERE property_id = $1 AND owner_id = $2
ORDER BY period_start DESC`, propertyID, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []settlement.Settlement
	for rows.Next() {
		stl, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		if stl != nil {
			result = append(result, *stl)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Finalize transitions draft/calculated to finalized and appends the charge
// and optional advance offset rows per share, all in one transaction.
func (r *SettlementRepository) Finalize(ctx context.Context, id, ownerID string, now time.Time) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	now = now.UTC()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	stl, err := r.lockSettlement(ctx, tx, id, ownerID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if !stl.CanFinalize() {
		_ = tx.Rollback()
		return nil, settlement.ErrSettlementNotFound
	}
	if err := r.loadChildren(ctx, tx, stl); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if len(stl.Shares) == 0 {
		_ = tx.Rollback()
		return nil, settlement.ErrNoShares
	}

	for i := range stl.Shares {
		share := &stl.Shares[i]
		prev, err := lastBalance(ctx, tx, share.TenantID, stl.PropertyID)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		for _, entry := range settlement.BuildFinalizePostings(stl, *share, prev, now) {
			if err := insertLedgerEntry(ctx, tx, entry); err != nil {
				_ = tx.Rollback()
				return nil, err
			}
		}
		if stl.Approach == settlement.ApproachAdvancePayment && share.AdvancesPaid.IsPositive() {
			share.BalanceDue = share.FinalAmount.Sub(share.AdvancesPaid).Round(2)
			_, err := tx.ExecContext(ctx, `
UPDATE settlement_shares SET balance_due = $1 WHERE id = $2`, share.BalanceDue, share.ID)
			if err != nil {
				_ = tx.Rollback()
				return nil, err
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
UPDATE utility_settlements
SET status = $1, finalized_at = $2, updated_at = $2
WHERE id = $3`, settlement.StatusFinalized, now, stl.ID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	stl.Status = settlement.StatusFinalized
	stl.FinalizedAt = now
	stl.UpdatedAt = now
	return stl, nil
}

// Void transitions finalized to voided and appends one compensating
// adjustment per share against each tenant's then-current balance.
func (r *SettlementRepository) Void(ctx context.Context, id, ownerID, reason string, now time.Time) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	now = now.UTC()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	stl, err := r.lockSettlement(ctx, tx, id, ownerID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if !stl.CanVoid() {
		_ = tx.Rollback()
		return nil, settlement.ErrSettlementNotFound
	}
	if err := r.loadChildren(ctx, tx, stl); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	for _, share := range stl.Shares {
		prev, err := lastBalance(ctx, tx, share.TenantID, stl.PropertyID)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		entry := settlement.BuildVoidPosting(stl, share, prev, reason, now)
		if err := insertLedgerEntry(ctx, tx, entry); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
UPDATE utility_settlements
SET status = $1, voided_at = $2, void_reason = $3, updated_at = $2
WHERE id = $4`, settlement.StatusVoided, now, reason, stl.ID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	stl.Status = settlement.StatusVoided
	stl.VoidedAt = now
	stl.VoidReason = reason
	stl.UpdatedAt = now
	return stl, nil
}

// ListEntries returns a tenant's ledger rows oldest first.
func (r *SettlementRepository) ListEntries(ctx context.Context, tenantID, propertyID string) ([]settlement.LedgerEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, property_id, settlement_id, entry_type, amount, balance_after, description, created_at
FROM tenant_ledger
WHERE tenant_id = $1 AND property_id = $2
ORDER BY created_at ASC, id ASC`, tenantID, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []settlement.LedgerEntry
	for rows.Next() {
		var entry settlement.LedgerEntry
		var settlementID sql.NullString
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.PropertyID, &settlementID,
			&entry.Type, &entry.Amount, &entry.BalanceAfter, &entry.Description, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.SettlementID = settlementID.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// lockSettlement loads the settlement row under FOR UPDATE. Absence and
// foreign ownership both surface as ErrSettlementNotFound.
func (r *SettlementRepository) lockSettlement(ctx context.Context, tx querier, id, ownerID string) (*settlement.Settlement, error) {
	row := tx.QueryRowContext(ctx, `
SELECT `+settlementColumns+`
FROM utility_settlements
WHERE id = $1 AND owner_id = $2
FOR UPDATE`, id, ownerID)
	stl, err := scanSettlement(row)
	if err != nil {
		return nil, err
	}
	if stl == nil {
		return nil, settlement.ErrSettlementNotFound
	}
	return stl, nil
}

func (r *SettlementRepository) loadChildren(ctx context.Context, q querier, stl *settlement.Settlement) error {
	itemRows, err := q.QueryContext(ctx, `
SELECT id, settlement_id, kind, meter_id, fixed_utility_id, name, unit, consumption, rate, total_cost
FROM settlement_items
WHERE settlement_id = $1
ORDER BY id ASC`, stl.ID)
	if err != nil {
		return err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item settlement.Item
		var meterID sql.NullString
		var fixedID sql.NullString
		if err := itemRows.Scan(&item.ID, &item.SettlementID, &item.Kind, &meterID, &fixedID,
			&item.Name, &item.Unit, &item.Consumption, &item.Rate, &item.TotalCost); err != nil {
			return err
		}
		item.MeterID = meterID.String
		item.FixedUtilityID = fixedID.String
		stl.Items = append(stl.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return err
	}

	shareRows, err := q.QueryContext(ctx, `
SELECT id, settlement_id, tenant_id, active_days, share_ratio, final_amount, advances_paid, balance_due
FROM settlement_shares
WHERE settlement_id = $1
ORDER BY tenant_id ASC`, stl.ID)
	if err != nil {
		return err
	}
	defer shareRows.Close()
	for shareRows.Next() {
		var share settlement.Share
		if err := shareRows.Scan(&share.ID, &share.SettlementID, &share.TenantID, &share.ActiveDays,
			&share.ShareRatio, &share.FinalAmount, &share.AdvancesPaid, &share.BalanceDue); err != nil {
			return err
		}
		stl.Shares = append(stl.Shares, share)
	}
	return shareRows.Err()
}

func lastBalance(ctx context.Context, tx querier, tenantID, propertyID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx, `
SELECT balance_after
FROM tenant_ledger
WHERE tenant_id = $1 AND property_id = $2
ORDER BY created_at DESC, id DESC
LIMIT 1`, tenantID, propertyID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func insertLedgerEntry(ctx context.Context, tx querier, entry settlement.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO tenant_ledger (
	id, tenant_id, property_id, settlement_id, entry_type, amount, balance_after, description, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.ID, entry.TenantID, entry.PropertyID, nullString(entry.SettlementID),
		entry.Type, entry.Amount, entry.BalanceAfter, entry.Description, entry.CreatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row rowScanner) (*settlement.Settlement, error) {
	var stl settlement.Settlement
	var finalizedAt sql.NullTime
	var voidedAt sql.NullTime
	var voidReason sql.NullString
	err := row.Scan(
		&stl.ID,
		&stl.PropertyID,
		&stl.OwnerID,
		&stl.Title,
		&stl.PeriodStart,
		&stl.PeriodEnd,
		&stl.Approach,
		&stl.Status,
		&stl.TotalAmount,
		&stl.Currency,
		&finalizedAt,
		&voidedAt,
		&voidReason,
		&stl.CreatedAt,
		&stl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if finalizedAt.Valid {
		stl.FinalizedAt = finalizedAt.Time.UTC()
	}
	if voidedAt.Valid {
		stl.VoidedAt = voidedAt.Time.UTC()
	}
	stl.VoidReason = voidReason.String
	stl.PeriodStart = stl.PeriodStart.UTC()
	stl.PeriodEnd = stl.PeriodEnd.UTC()
	stl.CreatedAt = stl.CreatedAt.UTC()
	stl.UpdatedAt = stl.UpdatedAt.UTC()
	return &stl, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
