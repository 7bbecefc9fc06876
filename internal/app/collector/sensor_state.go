package collector

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"k8s.io/utils/clock"

	"github.com/ghalamif/wattflow/internal/app/sampling"
	"github.com/ghalamif/wattflow/internal/ports"
)

// Degraded sensors back off from twice their nominal interval, doubling up
// to maxBackoffFactor times nominal.
const (
	initialBackoffFactor = 2
	maxBackoffFactor     = 8
)

type sensorState struct {
	handle Handle
	key    uint64
	sensor ports.Sensor
	name   string

	desc    *sampling.Descriptor
	pending *sampling.Descriptor

	backoff   *backoff.ExponentialBackOff
	clock     clock.PassiveClock
	effective time.Duration

	seq           uint64
	samples       uint64
	failures      int
	totalFailures uint64
	degraded      bool
	lastErr       error
	lastDone      time.Time

	// detaching is set once the sensor left the collector's sensor set.
	detaching bool
	// detached is closed once a deferred detach has released the sensor.
	detached chan struct{}
}

func newSensorState(h Handle, key uint64, sensor ports.Sensor, desc *sampling.Descriptor, clk clock.PassiveClock) *sensorState {
	st := &sensorState{
		handle: h,
		key:    key,
		sensor: sensor,
		name:   sensor.Name(),
		clock:  clk,
	}
	st.install(desc)
	return st
}

// install switches to desc and restarts at the nominal interval.
func (st *sensorState) install(desc *sampling.Descriptor) {
	st.desc = desc
	st.pending = nil
	st.backoff = newBackoff(desc.Interval(), st.clock)
	st.effective = desc.Interval()
	st.failures = 0
	st.degraded = false
}

func (st *sensorState) selectSources() {
	if sel, ok := st.sensor.(ports.SourceSelector); ok {
		sel.SelectSources(st.desc.Sources())
	}
}

func (st *sensorState) minimumSleep() time.Duration {
	ms := st.desc.MinimumSleep()
	if st.pending != nil && st.pending.MinimumSleep() > 0 && (ms == 0 || st.pending.MinimumSleep() < ms) {
		ms = st.pending.MinimumSleep()
	}
	return ms
}

// nextDue is the deadline after the last completed sample, or now when the
// sensor has not completed one yet.
func (st *sensorState) nextDue(now time.Time) time.Time {
	if st.lastDone.IsZero() {
		return now
	}
	return st.lastDone.Add(st.effective)
}

// fail records a sampling error and returns true if the sensor just
// became degraded.
func (st *sensorState) fail(err error) bool {
	st.failures++
	st.totalFailures++
	st.lastErr = err
	st.effective = st.backoff.NextBackOff()
	if st.degraded {
		return false
	}
	st.degraded = true
	return true
}

// succeed returns true if the sensor just recovered.
func (st *sensorState) succeed() bool {
	st.failures = 0
	if !st.degraded {
		return false
	}
	st.degraded = false
	st.backoff.Reset()
	st.effective = st.desc.Interval()
	return true
}

func newBackoff(nominal time.Duration, clk backoff.Clock) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     initialBackoffFactor * nominal,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxBackoffFactor * nominal,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               clk,
	}
	b.Reset()
	return b
}
