// Package sampling holds the per-sensor sampling descriptor: interval,
// minimum sleep, delivery target and the context owned by that target.
package sampling

import (
	"fmt"
	"time"

	"github.com/ghalamif/wattflow/internal/domain"
)

const DefaultInterval = 5 * time.Millisecond

// DataCallback receives the whole batch returned by one Sample call.
type DataCallback func(sensor string, samples []domain.MeasurementData, ctx any)

// MeasurementCallback receives one measurement per sample. Kept for callers
// written against the older per-measurement delivery.
type MeasurementCallback func(m domain.Measurement, ctx any)

type deliveryKind uint8

const (
	deliverNone deliveryKind = iota
	deliverMeasurement
	deliverData
)

// Descriptor configures how one sensor is sampled and where its data goes.
// It is a fluent builder: setters return the receiver and record the first
// invalid value in Err. A Descriptor is not safe for concurrent use.
type Descriptor struct {
	interval     time.Duration
	minimumSleep time.Duration
	resolution   domain.TimestampResolution
	sources      domain.SourceMask

	kind      deliveryKind
	onData    DataCallback
	onMeasure MeasurementCallback
	ctx       any
	release   func(any)

	err error
}

// New returns a descriptor with the default interval and no delivery.
func New() *Descriptor {
	return &Descriptor{
		interval: DefaultInterval,
		sources:  domain.SourceAll,
	}
}

// Every sets the sampling interval.
func (d *Descriptor) Every(interval time.Duration) *Descriptor {
	if interval <= 0 {
		d.fail(fmt.Errorf("%w: interval must be positive, got %s", domain.ErrInvalidConfiguration, interval))
		return d
	}
	d.interval = interval
	return d
}

// MustSleepAtLeast bounds how long the sampler may block between checks for
// mutations or stop requests. Zero means the collector default.
func (d *Descriptor) MustSleepAtLeast(sleep time.Duration) *Descriptor {
	if sleep < 0 {
		d.fail(fmt.Errorf("%w: minimum sleep must not be negative, got %s", domain.ErrInvalidConfiguration, sleep))
		return d
	}
	d.minimumSleep = sleep
	return d
}

func (d *Descriptor) DeliverMeasurements(cb MeasurementCallback) *Descriptor {
	if cb == nil {
		return d.Disable()
	}
	d.kind = deliverMeasurement
	d.onMeasure = cb
	d.onData = nil
	return d
}

func (d *Descriptor) DeliverMeasurementData(cb DataCallback) *Descriptor {
	if cb == nil {
		return d.Disable()
	}
	d.kind = deliverData
	d.onData = cb
	d.onMeasure = nil
	return d
}

// Disable clears the delivery target and releases an owned context.
func (d *Descriptor) Disable() *Descriptor {
	d.kind = deliverNone
	d.onData = nil
	d.onMeasure = nil
	d.releaseContext()
	return d
}

// StoreContext hands ownership of v to the descriptor. release is invoked
// exactly once when the context is replaced, disabled or released.
func (d *Descriptor) StoreContext(v any, release func(any)) *Descriptor {
	d.releaseContext()
	d.ctx = v
	d.release = release
	return d
}

// PassContext stores a context the descriptor does not own.
func (d *Descriptor) PassContext(v any) *Descriptor {
	return d.StoreContext(v, nil)
}

func (d *Descriptor) UsingResolution(r domain.TimestampResolution) *Descriptor {
	d.resolution = r
	return d
}

func (d *Descriptor) FromSources(mask domain.SourceMask) *Descriptor {
	if mask == 0 {
		d.fail(fmt.Errorf("%w: empty source mask", domain.ErrInvalidConfiguration))
		return d
	}
	d.sources = mask
	return d
}

// Deliver dispatches one batch to the configured callback and reports
// whether a callback fired.
func (d *Descriptor) Deliver(sensor string, samples []domain.MeasurementData) bool {
	if len(samples) == 0 {
		return false
	}
	switch d.kind {
	case deliverData:
		d.onData(sensor, samples, d.ctx)
		return true
	case deliverMeasurement:
		for _, s := range samples {
			d.onMeasure(domain.Measurement{Sensor: sensor, MeasurementData: s}, d.ctx)
		}
		return true
	default:
		return false
	}
}

// Move transfers every setting, including context ownership, into a new
// descriptor and resets d to defaults.
func (d *Descriptor) Move() *Descriptor {
	moved := *d
	*d = *New()
	return &moved
}

// Clone copies a descriptor that does not own a context.
func (d *Descriptor) Clone() (*Descriptor, error) {
	if d.release != nil {
		return nil, fmt.Errorf("%w: cannot clone a descriptor owning its context", domain.ErrInvalidConfiguration)
	}
	c := *d
	return &c, nil
}

// Release frees the owned context, if any. Safe to call more than once.
func (d *Descriptor) Release() {
	d.releaseContext()
}

func (d *Descriptor) releaseContext() {
	if d.release != nil {
		fn := d.release
		d.release = nil
		fn(d.ctx)
	}
	d.ctx = nil
}

func (d *Descriptor) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Err returns the first invalid value passed to a setter.
func (d *Descriptor) Err() error { return d.err }

// Enabled reports whether a callback is configured.
func (d *Descriptor) Enabled() bool { return d.kind != deliverNone }

func (d *Descriptor) Interval() time.Duration                { return d.interval }
func (d *Descriptor) MinimumSleep() time.Duration            { return d.minimumSleep }
func (d *Descriptor) Resolution() domain.TimestampResolution { return d.resolution }
func (d *Descriptor) Sources() domain.SourceMask             { return d.sources }
func (d *Descriptor) Context() any                           { return d.ctx }
