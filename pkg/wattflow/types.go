// Package wattflow samples power sensors on individual deadlines and streams
// their readings to callbacks and an ordered output sink.
package wattflow

import (
	"time"

	"github.com/ghalamif/wattflow/internal/app/collector"
	"github.com/ghalamif/wattflow/internal/app/config"
	"github.com/ghalamif/wattflow/internal/app/instrument"
	"github.com/ghalamif/wattflow/internal/app/sampling"
	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

// Config re-exports the collector configuration file so downstream projects
// can construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls the output queue thresholds.
	Policy = ports.Policy
	// SensorSpec describes one sensor of a configuration file.
	SensorSpec = domain.SensorSpec
	// OutputConfig selects where output records go.
	OutputConfig = config.OutputConfig
	// TimescaleConfig configures the TimescaleDB output.
	TimescaleConfig = config.TimescaleConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// LogConfig configures the process logger.
	LogConfig = config.LogConfig
)

// Sensor is anything that can be sampled for power readings.
type Sensor = ports.Sensor

// Sink consumes ordered batches of output records.
type Sink = ports.Sink

// Observability emits logs and metrics about sampling and output.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// Descriptor describes how one sensor is sampled and where its readings go.
type Descriptor = sampling.Descriptor

type (
	DataCallback        = sampling.DataCallback
	MeasurementCallback = sampling.MeasurementCallback
	MeasurementData     = domain.MeasurementData
	Measurement         = domain.Measurement
	TimestampResolution = domain.TimestampResolution
	SourceMask          = domain.SourceMask
)

type (
	Handle       = collector.Handle
	SensorStatus = collector.SensorStatus
	State        = collector.State
	Phase        = collector.Phase
)

type (
	// Instrument is a sensor that accepts instrument configuration files.
	Instrument       = ports.Instrument
	InstrumentConfig = domain.InstrumentConfig
	InstrumentEntry  = instrument.Entry
)

const (
	Milliseconds = domain.Milliseconds
	Microseconds = domain.Microseconds
	Nanoseconds  = domain.Nanoseconds
	Seconds      = domain.Seconds

	SourcePower   = domain.SourcePower
	SourceVoltage = domain.SourceVoltage
	SourceCurrent = domain.SourceCurrent
	SourceAll     = domain.SourceAll

	StateEmpty      = collector.StateEmpty
	StateConfigured = collector.StateConfigured
	StateRunning    = collector.StateRunning
	StateStopped    = collector.StateStopped
)

var (
	ErrInvalidConfiguration = domain.ErrInvalidConfiguration
	ErrDeviceIO             = domain.ErrDeviceIO
	ErrResourceExhausted    = domain.ErrResourceExhausted
	ErrDisposed             = domain.ErrDisposed
	ErrQueueFull            = domain.ErrQueueFull
	ErrInvalidReading       = domain.ErrInvalidReading
	ErrUnknownSensor        = domain.ErrUnknownSensor
)

// NewDescriptor returns a descriptor with the default interval and no
// delivery target.
func NewDescriptor() *Descriptor { return sampling.New() }

// LoadConfig reads a YAML or JSON configuration file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config { return config.Default() }

// LoadInstruments reads an instrument configuration file.
func LoadInstruments(path string) ([]InstrumentEntry, error) {
	return instrument.Load(path)
}

// Record mirrors one entry of the output stream and is safe to retain.
type Record struct {
	Kind       string
	Sensor     string
	At         time.Time
	Timestamp  int64
	Resolution string
	Seq        uint64
	Voltage    float64
	Current    float64
	Power      float64
	Text       string
}

// RecordBatchSink is invoked with ordered batches drained from the output
// queue.
type RecordBatchSink func([]Record) error

func recordFromDomain(r *domain.Record) Record {
	return Record{
		Kind:       r.Kind.String(),
		Sensor:     r.Sensor,
		At:         r.At,
		Timestamp:  r.Timestamp,
		Resolution: r.Resolution.String(),
		Seq:        r.Seq,
		Voltage:    r.Voltage,
		Current:    r.Current,
		Power:      r.Power,
		Text:       r.Text,
	}
}

func convertDomainBatch(records []*domain.Record) []Record {
	if len(records) == 0 {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = recordFromDomain(r)
	}
	return out
}
