package metering

import "errors"

var (
	// ErrMeterNotFound is returned when a meter is missing or not owned by
	// the caller.
	ErrMeterNotFound = errors.New("metering: meter not found")
	// ErrMeterNotActive is returned when exchanging a non-active meter.
	ErrMeterNotActive = errors.New("metering: meter not active")
	// ErrInvalidReading is returned when a supplied reading violates a
	// domain rule, such as a decreasing display value.
	ErrInvalidReading = errors.New("metering: invalid reading")
)
