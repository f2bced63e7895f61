package application

import (
	"context"
	"errors"
	"testing"
	"time"

	metering "rentledger/internal/metering/domain"
	"rentledger/internal/metering/infrastructure/memory"

	"github.com/shopspring/decimal"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func seedActiveMeter(repo *memory.MeterRepository) metering.Meter {
	meter := metering.Meter{
		ID:         "mtr-old",
		PropertyID: "prop-1",
		OwnerID:    "owner-1",
		Type:       metering.MeterTypeElectricity,
		Unit:       "kWh",
		PricePerUnit: decimal.NullDecimal{
			Decimal: decimal.RequireFromString("0.85"),
			Valid:   true,
		},
		Status:      metering.MeterStatusActive,
		InstalledAt: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	repo.SeedMeter(meter)
	repo.SeedReading(metering.MeterReading{
		ID:          "rdg-1",
		MeterID:     meter.ID,
		Value:       decimal.RequireFromString("1200"),
		ReadingDate: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Type:        metering.ReadingTypeRegular,
	})
	return meter
}

func TestExchangePreservesContinuity(t *testing.T) {
	repo := memory.NewMeterRepository()
	seedActiveMeter(repo)
	clock := fixedClock{now: time.Date(2024, time.February, 1, 10, 0, 0, 0, time.UTC)}
	svc, err := NewExchangeService(repo, clock)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	exchange, err := svc.Exchange(context.Background(), ExchangeInput{
		OldMeterID:        "mtr-old",
		FinalReading:      decimal.RequireFromString("1350"),
		NewNumber:         "E-0042",
		NewInitialReading: decimal.Zero,
		Notes:             "annual replacement",
	}, "owner-1")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	if exchange.OldMeter.Status != metering.MeterStatusArchived {
		t.Fatalf("old meter status: got %s, want archived", exchange.OldMeter.Status)
	}
	if exchange.OldMeter.ReplacedByID != exchange.NewMeter.ID {
		t.Fatalf("old meter should link to successor %s, got %s", exchange.NewMeter.ID, exchange.OldMeter.ReplacedByID)
	}
	if exchange.OldMeter.ArchiveDate.IsZero() {
		t.Fatal("archive date not set")
	}
	if exchange.NewMeter.Status != metering.MeterStatusActive {
		t.Fatalf("new meter status: got %s, want active", exchange.NewMeter.Status)
	}
	if exchange.NewMeter.Type != metering.MeterTypeElectricity || exchange.NewMeter.Unit != "kWh" {
		t.Fatalf("successor must copy type and unit, got %s/%s", exchange.NewMeter.Type, exchange.NewMeter.Unit)
	}
	if !exchange.NewMeter.PricePerUnit.Valid || !exchange.NewMeter.PricePerUnit.Decimal.Equal(decimal.RequireFromString("0.85")) {
		t.Fatalf("successor must copy price per unit, got %+v", exchange.NewMeter.PricePerUnit)
	}
	if exchange.FinalReading.Type != metering.ReadingTypeMeterExchange {
		t.Fatalf("final reading type: got %s", exchange.FinalReading.Type)
	}
	if exchange.InitialReading.Type != metering.ReadingTypeInitial {
		t.Fatalf("initial reading type: got %s", exchange.InitialReading.Type)
	}
	if exchange.InitialReading.ReadingDate.Before(exchange.OldMeter.ArchiveDate) {
		t.Fatalf("initial reading %s predates archive date %s",
			exchange.InitialReading.ReadingDate, exchange.OldMeter.ArchiveDate)
	}

	history, err := svc.ReadingHistory(context.Background(), exchange.NewMeter.ID, "owner-1")
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 readings across the chain, got %d", len(history))
	}
	if history[0].MeterID != "mtr-old" || history[len(history)-1].MeterID != exchange.NewMeter.ID {
		t.Fatalf("history must span predecessor to successor, got %s..%s",
			history[0].MeterID, history[len(history)-1].MeterID)
	}
}

func TestExchangeArchivedMeterRejected(t *testing.T) {
	repo := memory.NewMeterRepository()
	seedActiveMeter(repo)
	svc, _ := NewExchangeService(repo, fixedClock{now: time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)})

	input := ExchangeInput{
		OldMeterID:        "mtr-old",
		FinalReading:      decimal.RequireFromString("1400"),
		NewInitialReading: decimal.Zero,
	}
	if _, err := svc.Exchange(context.Background(), input, "owner-1"); err != nil {
		t.Fatalf("first exchange: %v", err)
	}
	_, err := svc.Exchange(context.Background(), input, "owner-1")
	if !errors.Is(err, metering.ErrMeterNotActive) {
		t.Fatalf("second exchange on archived meter: got %v, want ErrMeterNotActive", err)
	}
}

func TestExchangeDecreasingReadingRejectedWithoutWrites(t *testing.T) {
	repo := memory.NewMeterRepository()
	seedActiveMeter(repo)
	svc, _ := NewExchangeService(repo, fixedClock{now: time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)})

	_, err := svc.Exchange(context.Background(), ExchangeInput{
		OldMeterID:        "mtr-old",
		FinalReading:      decimal.RequireFromString("1100"),
		NewInitialReading: decimal.Zero,
	}, "owner-1")
	if !errors.Is(err, metering.ErrInvalidReading) {
		t.Fatalf("got %v, want ErrInvalidReading", err)
	}

	meter, err := repo.GetByID(context.Background(), "mtr-old", "owner-1")
	if err != nil {
		t.Fatalf("get meter: %v", err)
	}
	if meter.Status != metering.MeterStatusActive || meter.ReplacedByID != "" {
		t.Fatalf("failed exchange must not mutate the meter: %+v", meter)
	}
	history, err := repo.ReadingHistory(context.Background(), "mtr-old")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("failed exchange must not write readings, got %d rows", len(history))
	}
}

func TestExchangeWrongOwnerLooksLikeMissing(t *testing.T) {
	repo := memory.NewMeterRepository()
	seedActiveMeter(repo)
	svc, _ := NewExchangeService(repo, fixedClock{now: time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)})

	_, err := svc.Exchange(context.Background(), ExchangeInput{
		OldMeterID:        "mtr-old",
		FinalReading:      decimal.RequireFromString("1400"),
		NewInitialReading: decimal.Zero,
	}, "owner-2")
	if !errors.Is(err, metering.ErrMeterNotFound) {
		t.Fatalf("foreign owner: got %v, want ErrMeterNotFound", err)
	}
}
