package domain

import "errors"

var (
	// ErrInvalidConfiguration marks bad descriptor values or malformed configuration files.
	ErrInvalidConfiguration = errors.New("wattflow: invalid configuration")
	// ErrDeviceIO marks a failed sensor read.
	ErrDeviceIO = errors.New("wattflow: device i/o error")
	// ErrResourceExhausted is returned by Start when output buffers or sinks cannot be set up.
	ErrResourceExhausted = errors.New("wattflow: resource exhaustion")
	// ErrDisposed is returned by mutating operations on a moved-from collector.
	ErrDisposed = errors.New("wattflow: collector disposed")
	// ErrInvalidReading marks a reading with a NaN or infinite value.
	ErrInvalidReading = errors.New("wattflow: invalid reading")
	// ErrQueueFull indicates the output queue rejected a record.
	ErrQueueFull = errors.New("wattflow: output queue full")
	// ErrUnknownSensor is returned for handles that are not attached.
	ErrUnknownSensor = errors.New("wattflow: unknown sensor")
)
