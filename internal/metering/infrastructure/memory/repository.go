package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	metering "rentledger/internal/metering/domain"
)

// MeterRepository is an in-memory meter store for tests.
type MeterRepository struct {
	mu       sync.RWMutex
	meters   map[string]*metering.Meter
	readings map[string][]metering.MeterReading
}

// NewMeterRepository constructs a repository.
func NewMeterRepository() *MeterRepository {
	return &MeterRepository{
		meters:   make(map[string]*metering.Meter),
		readings: make(map[string][]metering.MeterReading),
	}
}

// SeedMeter stores a meter.
func (r *MeterRepository) SeedMeter(meter metering.Meter) {
	r.mu.Lock()
	copy := meter
	r.meters[meter.ID] = &copy
	r.mu.Unlock()
}

// SeedReading appends a reading.
func (r *MeterRepository) SeedReading(reading metering.MeterReading) {
	r.mu.Lock()
	r.readings[reading.MeterID] = append(r.readings[reading.MeterID], reading)
	r.mu.Unlock()
}

// GetByID loads a meter scoped to an owner.
func (r *MeterRepository) GetByID(ctx context.Context, meterID, ownerID string) (*metering.Meter, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	meter := r.meters[meterID]
	if meter == nil || meter.OwnerID != ownerID {
		return nil, nil
	}
	copy := *meter
	return &copy, nil
}

// ListActiveByProperty returns active meters ordered by id.
func (r *MeterRepository) ListActiveByProperty(ctx context.Context, propertyID string) ([]metering.Meter, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []metering.Meter
	for _, meter := range r.meters {
		if meter.PropertyID == propertyID && meter.Status == metering.MeterStatusActive {
			result = append(result, *meter)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListReadings returns readings at or before the cutoff, newest first.
func (r *MeterRepository) ListReadings(ctx context.Context, meterID string, cutoff time.Time, limit int) ([]metering.MeterReading, error) {
	_ = ctx
	if limit <= 0 {
		limit = 2
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []metering.MeterReading
	for _, reading := range r.readings[meterID] {
		if !reading.ReadingDate.After(cutoff) {
			result = append(result, reading)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ReadingDate.After(result[j].ReadingDate)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ReadingHistory walks the replacement chain backwards, oldest first.
func (r *MeterRepository) ReadingHistory(ctx context.Context, meterID string) ([]metering.MeterReading, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := []string{meterID}
	current := meterID
	for {
		predecessor := ""
		for id, meter := range r.meters {
			if meter.ReplacedByID == current {
				predecessor = id
				break
			}
		}
		if predecessor == "" {
			break
		}
		chain = append([]string{predecessor}, chain...)
		current = predecessor
	}

	var history []metering.MeterReading
	for _, id := range chain {
		readings := append([]metering.MeterReading(nil), r.readings[id]...)
		sort.Slice(readings, func(i, j int) bool {
			return readings[i].ReadingDate.Before(readings[j].ReadingDate)
		})
		history = append(history, readings...)
	}
	return history, nil
}

// Exchange mirrors the transactional replacement: nothing is stored unless
// validation passes.
func (r *MeterRepository) Exchange(ctx context.Context, cmd metering.ExchangeCommand, now time.Time) (*metering.Exchange, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.meters[cmd.OldMeterID]
	var oldCopy *metering.Meter
	if old != nil {
		c := *old
		oldCopy = &c
	}
	var last *metering.MeterReading
	if old != nil {
		readings := append([]metering.MeterReading(nil), r.readings[old.ID]...)
		sort.Slice(readings, func(i, j int) bool {
			return readings[i].ReadingDate.After(readings[j].ReadingDate)
		})
		if len(readings) > 0 {
			last = &readings[0]
		}
	}

	exchange, err := metering.PrepareExchange(oldCopy, last, cmd, now)
	if err != nil {
		return nil, err
	}

	archived := exchange.OldMeter
	successor := exchange.NewMeter
	r.meters[archived.ID] = &archived
	r.meters[successor.ID] = &successor
	r.readings[archived.ID] = append(r.readings[archived.ID], exchange.FinalReading)
	r.readings[successor.ID] = append(r.readings[successor.ID], exchange.InitialReading)
	return exchange, nil
}
