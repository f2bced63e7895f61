// Package metering holds the meter and reading domain for a property,
// including physical meter replacement continuity.
package metering

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MeterStatus is the lifecycle state of a physical meter.
type MeterStatus string

const (
	MeterStatusActive   MeterStatus = "active"
	MeterStatusArchived MeterStatus = "archived"
)

// MeterType identifies the metered utility.
type MeterType string

const (
	MeterTypeElectricity MeterType = "electricity"
	MeterTypeWater       MeterType = "water"
	MeterTypeGas         MeterType = "gas"
	MeterTypeHeating     MeterType = "heating"
)

// ReadingType classifies a meter reading observation.
type ReadingType string

const (
	ReadingTypeRegular       ReadingType = "regular"
	ReadingTypeInitial       ReadingType = "initial"
	ReadingTypeMeterExchange ReadingType = "meter_exchange"
)

// Meter is a physical metering device for one utility type on one property.
// Archived meters keep a ReplacedByID link to their successor so consumption
// history stays continuous across a replacement.
type Meter struct {
	ID           string
	PropertyID   string
	OwnerID      string
	Type         MeterType
	Number       string
	SerialNumber string
	Unit         string
	PricePerUnit decimal.NullDecimal
	Status       MeterStatus
	InstalledAt  time.Time
	ReplacedByID string
	ArchiveDate  time.Time
	ArchiveNote  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MeterReading is an immutable observation of a meter display value.
type MeterReading struct {
	ID          string
	MeterID     string
	Value       decimal.Decimal
	ReadingDate time.Time
	Type        ReadingType
	Notes       string
	CreatedAt   time.Time
}

// ExchangeCommand describes a physical meter replacement request.
type ExchangeCommand struct {
	OldMeterID        string
	OwnerID           string
	FinalReading      decimal.Decimal
	NewNumber         string
	NewSerialNumber   string
	NewInitialReading decimal.Decimal
	Notes             string
}

// Exchange is the full outcome of a meter replacement: the archived old
// meter, its close-out reading, the successor meter and its opening reading.
type Exchange struct {
	OldMeter       Meter
	NewMeter       Meter
	FinalReading   MeterReading
	InitialReading MeterReading
}

// PrepareExchange validates a replacement against the old meter's current
// state and builds every row the exchange transaction must persist.
// lastReading may be nil when the old meter has no readings yet.
func PrepareExchange(old *Meter, lastReading *MeterReading, cmd ExchangeCommand, now time.Time) (*Exchange, error) {
	if old == nil {
		return nil, ErrMeterNotFound
	}
	if cmd.OwnerID == "" || old.OwnerID != cmd.OwnerID {
		// Ownership mismatch is indistinguishable from absence on purpose.
		return nil, ErrMeterNotFound
	}
	if old.Status != MeterStatusActive {
		return nil, ErrMeterNotActive
	}
	if cmd.FinalReading.IsNegative() || cmd.NewInitialReading.IsNegative() {
		return nil, fmt.Errorf("%w: readings must be non-negative", ErrInvalidReading)
	}
	if lastReading != nil && cmd.FinalReading.LessThan(lastReading.Value) {
		return nil, fmt.Errorf("%w: final reading %s below last known reading %s",
			ErrInvalidReading, cmd.FinalReading, lastReading.Value)
	}

	now = now.UTC()
	newMeter := Meter{
		ID:           NewMeterID(),
		PropertyID:   old.PropertyID,
		OwnerID:      old.OwnerID,
		Type:         old.Type,
		Number:       cmd.NewNumber,
		SerialNumber: cmd.NewSerialNumber,
		Unit:         old.Unit,
		PricePerUnit: old.PricePerUnit,
		Status:       MeterStatusActive,
		InstalledAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	archived := *old
	archived.Status = MeterStatusArchived
	archived.ArchiveDate = now
	archived.ArchiveNote = "replaced by meter " + newMeter.ID
	archived.ReplacedByID = newMeter.ID
	archived.UpdatedAt = now

	finalReading := MeterReading{
		ID:          NewReadingID(),
		MeterID:     old.ID,
		Value:       cmd.FinalReading,
		ReadingDate: now,
		Type:        ReadingTypeMeterExchange,
		Notes:       cmd.Notes,
		CreatedAt:   now,
	}
	initialReading := MeterReading{
		ID:          NewReadingID(),
		MeterID:     newMeter.ID,
		Value:       cmd.NewInitialReading,
		ReadingDate: now,
		Type:        ReadingTypeInitial,
		Notes:       cmd.Notes,
		CreatedAt:   now,
	}

	return &Exchange{
		OldMeter:       archived,
		NewMeter:       newMeter,
		FinalReading:   finalReading,
		InitialReading: initialReading,
	}, nil
}

// NewMeterID generates a random meter id.
func NewMeterID() string { return newID("mtr-") }

// NewReadingID generates a random reading id.
func NewReadingID() string { return newID("rdg-") }

func newID(prefix string) string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return prefix + hex.EncodeToString(buf)
}
