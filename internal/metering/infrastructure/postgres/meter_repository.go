package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	metering "rentledger/internal/metering/domain"
)

const meterColumns = `
id, property_id, owner_id, type, number, serial_number, unit, price_per_unit,
status, installed_at, replaced_by_id, archive_date, archive_note, created_at, updated_at`

// MeterRepository persists meters and readings in Postgres.
type MeterRepository struct {
	db *sql.DB
}

// NewMeterRepository constructs a repository.
func NewMeterRepository(db *sql.DB) *MeterRepository {
	return &MeterRepository{db: db}
}

// GetByID loads a meter scoped to an owner.
func (r *MeterRepository) GetByID(ctx context.Context, meterID, ownerID string) (*metering.Meter, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("meter repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+meterColumns+`
FROM meters
WHERE id = $1 AND owner_id = $2
LIMIT 1`, meterID, ownerID)
	return scanMeter(row)
}

// ListActiveByProperty returns the active meters on a property.
func (r *MeterRepository) ListActiveByProperty(ctx context.Context, propertyID string) ([]metering.Meter, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("meter repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+meterColumns+`
FROM meters
WHERE property_id = $1 AND status = $2
ORDER BY id ASC`, propertyID, metering.MeterStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []metering.Meter
	for rows.Next() {
		meter, err := scanMeter(rows)
		if err != nil {
			return nil, err
		}
		if meter != nil {
			result = append(result, *meter)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListReadings returns readings at or before the cutoff, newest first.
func (r *MeterRepository) ListReadings(ctx context.Context, meterID string, cutoff time.Time, limit int) ([]metering.MeterReading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("meter repo: nil db")
	}
	if limit <= 0 {
		limit = 2
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, meter_id, value, reading_date, type, notes, created_at
FROM meter_readings
WHERE meter_id = $1 AND reading_date <= $2
ORDER BY reading_date DESC, created_at DESC
LIMIT $3`, meterID, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReadings(rows)
}

// ReadingHistory walks the replacement chain backwards from the given meter
// and returns all readings oldest first. Chain traversal is bounded by chain
// length; each exchange points forward in time so no cycle can form.
func (r *MeterRepository) ReadingHistory(ctx context.Context, meterID string) ([]metering.MeterReading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("meter repo: nil db")
	}
	chain := []string{meterID}
	current := meterID
	for {
		var predecessor string
		err := r.db.QueryRowContext(ctx, `
SELECT id FROM meters WHERE replaced_by_id = $1 LIMIT 1`, current).Scan(&predecessor)
		if errors.Is(err, sql.ErrNoRows) {
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append([]string{predecessor}, chain...)
		current = predecessor
	}

	var history []metering.MeterReading
	for _, id := range chain {
		rows, err := r.db.QueryContext(ctx, `
SELECT id, meter_id, value, reading_date, type, notes, created_at
FROM meter_readings
WHERE meter_id = $1
ORDER BY reading_date ASC, created_at ASC`, id)
		if err != nil {
			return nil, err
		}
		readings, err := collectReadings(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		history = append(history, readings...)
	}
	return history, nil
}

// Exchange runs the full meter replacement in one transaction: lock and
// validate the old meter, close it out, create the successor, link the two.
func (r *MeterRepository) Exchange(ctx context.Context, cmd metering.ExchangeCommand, now time.Time) (*metering.Exchange, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("meter repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx, `
SELECT `+meterColumns+`
FROM meters
WHERE id = $1
FOR UPDATE`, cmd.OldMeterID)
	old, err := scanMeter(row)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	var last *metering.MeterReading
	if old != nil {
		lastRow := tx.QueryRowContext(ctx, `
SELECT id, meter_id, value, reading_date, type, notes, created_at
FROM meter_readings
WHERE meter_id = $1
ORDER BY reading_date DESC, created_at DESC
LIMIT 1`, old.ID)
		last, err = scanReading(lastRow)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
	}

	exchange, err := metering.PrepareExchange(old, last, cmd, now)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := insertReading(ctx, tx, exchange.FinalReading); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := insertMeter(ctx, tx, exchange.NewMeter); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := insertReading(ctx, tx, exchange.InitialReading); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
UPDATE meters
SET status = $1, archive_date = $2, archive_note = $3, replaced_by_id = $4, updated_at = $2
WHERE id = $5`,
		metering.MeterStatusArchived, exchange.OldMeter.ArchiveDate,
		exchange.OldMeter.ArchiveNote, exchange.NewMeter.ID, exchange.OldMeter.ID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return exchange, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMeter(ctx context.Context, tx execer, m metering.Meter) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO meters (
	id, property_id, owner_id, type, number, serial_number, unit, price_per_unit,
	status, installed_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		m.ID, m.PropertyID, m.OwnerID, m.Type, m.Number, m.SerialNumber, m.Unit, m.PricePerUnit,
		m.Status, m.InstalledAt, m.CreatedAt, m.UpdatedAt)
	return err
}

func insertReading(ctx context.Context, tx execer, reading metering.MeterReading) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO meter_readings (id, meter_id, value, reading_date, type, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		reading.ID, reading.MeterID, reading.Value, reading.ReadingDate, reading.Type, reading.Notes, reading.CreatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeter(row rowScanner) (*metering.Meter, error) {
	var m metering.Meter
	var number sql.NullString
	var serial sql.NullString
	var replacedBy sql.NullString
	var archiveDate sql.NullTime
	var archiveNote sql.NullString
	err := row.Scan(
		&m.ID,
		&m.PropertyID,
		&m.OwnerID,
		&m.Type,
		&number,
		&serial,
		&m.Unit,
		&m.PricePerUnit,
		&m.Status,
		&m.InstalledAt,
		&replacedBy,
		&archiveDate,
		&archiveNote,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.Number = number.String
	m.SerialNumber = serial.String
	m.ReplacedByID = replacedBy.String
	m.ArchiveNote = archiveNote.String
	if archiveDate.Valid {
		m.ArchiveDate = archiveDate.Time.UTC()
	}
	m.InstalledAt = m.InstalledAt.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

func scanReading(row rowScanner) (*metering.MeterReading, error) {
	var reading metering.MeterReading
	var notes sql.NullString
	err := row.Scan(
		&reading.ID,
		&reading.MeterID,
		&reading.Value,
		&reading.ReadingDate,
		&reading.Type,
		&notes,
		&reading.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	reading.Notes = notes.String
	reading.ReadingDate = reading.ReadingDate.UTC()
	reading.CreatedAt = reading.CreatedAt.UTC()
	return &reading, nil
}

func collectReadings(rows *sql.Rows) ([]metering.MeterReading, error) {
	var result []metering.MeterReading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		if reading != nil {
			result = append(result, *reading)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
