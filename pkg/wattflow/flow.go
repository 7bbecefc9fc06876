package wattflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghalamif/wattflow/internal/app/config"
)

// Flow is a convenience builder that lets callers say Conf → StreamIN → StreamOUT
// without touching the underlying collector wiring.
type Flow struct {
	cfg  *Config
	opts []Option
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// StreamInOption configures the sensor side of the collector.
type StreamInOption func(*Flow)

// StreamOutOption configures the output side of the collector.
type StreamOutOption func(*Flow)

// Conf loads a configuration file, applies FlowOption values, and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfiguration)
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it before building a collector.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw Option values to the builder for advanced scenarios.
func (f *Flow) Options(opts ...Option) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

// StreamIN records sensor-side overrides.
func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT records output-side overrides and builds a Collector ready to start.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Collector, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: flow is nil", ErrInvalidConfiguration)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return New(f.cfg, f.opts...)
}

// Run is a shortcut for StreamOUT + Collector.Run.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	c, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// WithFlowOptions appends Option values during Conf.
func WithFlowOptions(opts ...Option) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

// StreamInSensor attaches a sensor that is not listed in the configuration.
func StreamInSensor(s Sensor, d *Descriptor) StreamInOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithSensor(s, d))
		}
	}
}

// StreamInDiscovered attaches every sensor found on this machine.
func StreamInDiscovered() StreamInOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithDiscovery())
		}
	}
}

// StreamInInstruments binds instrument configuration entries to the attached sensors.
func StreamInInstruments(entries []InstrumentEntry) StreamInOption {
	return func(f *Flow) {
		if f != nil && len(entries) > 0 {
			f.appendOptions(WithInstruments(entries))
		}
	}
}

// StreamInObservability overrides the default Prometheus-based observability stack.
func StreamInObservability(obs Observability) StreamInOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// StreamOutSink injects a custom Sink implementation.
func StreamOutSink(s Sink) StreamOutOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithSink(s))
		}
	}
}

// StreamOutFile writes the output stream to a framed file at path.
func StreamOutFile(path string) StreamOutOption {
	return func(f *Flow) {
		if f != nil && path != "" {
			f.cfg.Output = OutputConfig{Kind: config.OutputFile, Path: path}
		}
	}
}

// StreamOutObservability replaces the default observability backend.
func StreamOutObservability(obs Observability) StreamOutOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// StreamOutCallback installs a sink built from a simple callback function.
func StreamOutCallback(name string, fn RecordBatchSink) StreamOutOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithSink(NewCallbackSink(name, fn)))
		}
	}
}

func (f *Flow) appendOptions(opts ...Option) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
