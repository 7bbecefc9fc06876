package wattflow

import (
	"context"
	"net/http"

	base "github.com/ghalamif/wattflow/pkg/wattflow"
)

// Re-exported errors for convenience.
var (
	ErrInvalidConfiguration = base.ErrInvalidConfiguration
	ErrDeviceIO             = base.ErrDeviceIO
	ErrResourceExhausted    = base.ErrResourceExhausted
	ErrDisposed             = base.ErrDisposed
	ErrQueueFull            = base.ErrQueueFull
	ErrInvalidReading       = base.ErrInvalidReading
	ErrUnknownSensor        = base.ErrUnknownSensor
	ErrChannelSinkClosed    = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/ghalamif/wattflow directly.
type (
	Config              = base.Config
	Policy              = base.Policy
	SensorSpec          = base.SensorSpec
	OutputConfig        = base.OutputConfig
	TimescaleConfig     = base.TimescaleConfig
	MetricsConfig       = base.MetricsConfig
	LogConfig           = base.LogConfig
	Collector           = base.Collector
	Option              = base.Option
	Flow                = base.Flow
	FlowOption          = base.FlowOption
	StreamInOption      = base.StreamInOption
	StreamOutOption     = base.StreamOutOption
	Sensor              = base.Sensor
	Sink                = base.Sink
	Observability       = base.Observability
	Field               = base.Field
	Descriptor          = base.Descriptor
	DataCallback        = base.DataCallback
	MeasurementCallback = base.MeasurementCallback
	MeasurementData     = base.MeasurementData
	Measurement         = base.Measurement
	TimestampResolution = base.TimestampResolution
	SourceMask          = base.SourceMask
	Handle              = base.Handle
	SensorStatus        = base.SensorStatus
	State               = base.State
	Phase               = base.Phase
	Record              = base.Record
	RecordBatchSink     = base.RecordBatchSink
	Instrument          = base.Instrument
	InstrumentConfig    = base.InstrumentConfig
	InstrumentEntry     = base.InstrumentEntry
)

const (
	Milliseconds = base.Milliseconds
	Microseconds = base.Microseconds
	Nanoseconds  = base.Nanoseconds
	Seconds      = base.Seconds

	SourcePower   = base.SourcePower
	SourceVoltage = base.SourceVoltage
	SourceCurrent = base.SourceCurrent
	SourceAll     = base.SourceAll
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

func LoadInstruments(path string) ([]InstrumentEntry, error) {
	return base.LoadInstruments(path)
}

// Collector constructors.
func New(cfg *Config, opts ...Option) (*Collector, error) {
	return base.New(cfg, opts...)
}

func ForAll(cfg *Config, opts ...Option) (*Collector, error) {
	return base.ForAll(cfg, opts...)
}

func FromJSON(path string, opts ...Option) (*Collector, error) {
	return base.FromJSON(path, opts...)
}

func FromSensors(cfg *Config, sensors []Sensor, opts ...Option) (*Collector, error) {
	return base.FromSensors(cfg, sensors, opts...)
}

func NewDescriptor() *Descriptor {
	return base.NewDescriptor()
}

func MakeConfigurationTemplate(path string, opts ...Option) error {
	return base.MakeConfigurationTemplate(path, opts...)
}

// Collector options.
func WithSink(s Sink) Option {
	return base.WithSink(s)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

func WithSensor(s Sensor, d *Descriptor) Option {
	return base.WithSensor(s, d)
}

func WithDiscovery() Option {
	return base.WithDiscovery()
}

func WithHostRoots(sysRoot, procRoot string) Option {
	return base.WithHostRoots(sysRoot, procRoot)
}

func WithInstruments(entries []InstrumentEntry) Option {
	return base.WithInstruments(entries)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...Option) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInSensor(s Sensor, d *Descriptor) StreamInOption {
	return base.StreamInSensor(s, d)
}

func StreamInDiscovered() StreamInOption {
	return base.StreamInDiscovered()
}

func StreamInInstruments(entries []InstrumentEntry) StreamInOption {
	return base.StreamInInstruments(entries)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutFile(path string) StreamOutOption {
	return base.StreamOutFile(path)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn RecordBatchSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Sink adapters.
func NewCallbackSink(name string, fn RecordBatchSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []Record, func()) {
	return base.NewChannelSink(name, buffer)
}

// Metrics endpoint.
func NewMetricsServer(addr string, metrics http.Handler) *http.Server {
	return base.NewMetricsServer(addr, metrics)
}

func ServeMetrics(ctx context.Context, srv *http.Server) error {
	return base.ServeMetrics(ctx, srv)
}
