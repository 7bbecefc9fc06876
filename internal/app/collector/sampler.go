package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/ghalamif/wattflow/internal/app/sampling"
	"github.com/ghalamif/wattflow/internal/app/schedule"
	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

// Phase is the step the sampler goroutine is executing.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhaseSampling
	PhaseDelivering
	PhaseDraining
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseSampling:
		return "sampling"
	case PhaseDelivering:
		return "delivering"
	case PhaseDraining:
		return "draining"
	default:
		return "idle"
	}
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// run is the sampler loop. It owns every Sample call and every sink write.
func (c *Collector) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		c.setPhase(PhaseWaiting)
		if stopped(stop) {
			break
		}

		c.mu.Lock()
		now := c.clock.Now()
		due := c.sched.PopDue(now)
		wait := c.sched.NextWakeup(now)
		c.mu.Unlock()

		if len(due) == 0 {
			if err := c.flushOutput(); err != nil {
				c.keepFlushErr(err)
			}
			if !c.sleep(wait, stop) {
				break
			}
			continue
		}

		c.sampleBurst(due, stop)
	}

	err := c.drain()
	c.mu.Lock()
	c.drainErr = err
	c.mu.Unlock()
	c.setPhase(PhaseIdle)
}

// sampleBurst samples every popped entry in order. Entries not yet started
// when stop is requested go back to the schedule untouched.
func (c *Collector) sampleBurst(due []*schedule.Entry[*sensorState], stop <-chan struct{}) {
	for i, e := range due {
		if stopped(stop) {
			c.requeue(due[i:])
			return
		}
		c.sampleOne(e)
	}
}

// sleep blocks for at most d. It returns false when stop was requested.
func (c *Collector) sleep(d time.Duration, stop <-chan struct{}) bool {
	if d <= 0 {
		return !stopped(stop)
	}
	t := c.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-stop:
		return false
	case <-c.wake:
		return true
	case <-t.C():
		return true
	}
}

func (c *Collector) sampleOne(e *schedule.Entry[*sensorState]) {
	st := e.Value

	// A popped entry detached while an earlier one was sampling is dropped
	// here, never sampled.
	c.mu.Lock()
	if st.detaching {
		kept := c.sched.Reschedule(e, c.clock.Now(), st.effective)
		c.mu.Unlock()
		if !kept {
			c.release(st)
		}
		return
	}
	c.mu.Unlock()

	c.setPhase(PhaseSampling)
	start := c.clock.Now()
	data, err := st.sensor.Sample(context.Background())
	finished := c.clock.Now()
	c.obs.ObserveLatency(ports.MetricSampleDuration, finished.Sub(start).Seconds())

	c.setPhase(PhaseDelivering)
	c.mu.Lock()
	st.lastDone = finished
	if err != nil {
		c.failLocked(st, finished, err)
	} else {
		c.deliverLocked(st, data)
	}

	var replaced *sampling.Descriptor
	if st.pending != nil && !st.detaching {
		replaced = c.swapDescriptorLocked(st, st.pending)
		c.refreshFloorLocked()
	}
	kept := c.sched.Reschedule(e, finished, st.effective)
	c.mu.Unlock()

	if replaced != nil {
		replaced.Release()
	}
	if !kept {
		c.release(st)
	}
}

func (c *Collector) requeue(entries []*schedule.Entry[*sensorState]) {
	var gone []*sensorState
	c.mu.Lock()
	for _, e := range entries {
		if !c.sched.Requeue(e) {
			gone = append(gone, e.Value)
		}
	}
	c.mu.Unlock()
	for _, st := range gone {
		c.release(st)
	}
}

func (c *Collector) deliverLocked(st *sensorState, data []domain.MeasurementData) {
	if st.succeed() && !st.detaching {
		c.degraded--
		c.obs.SetGauge(ports.MetricSensorsDegraded, float64(c.degraded))
		c.obs.LogInfo("sensor_recovered", ports.Field{Key: "sensor", Value: st.name})
	}
	if len(data) == 0 {
		return
	}

	st.samples += uint64(len(data))
	st.desc.Deliver(st.name, data)
	c.obs.IncCounter(ports.MetricSamplesDelivered, float64(len(data)))

	if c.queue == nil {
		return
	}
	res := st.desc.Resolution()
	for _, d := range data {
		if !d.Finite() {
			err := fmt.Errorf("%w: %s: voltage=%v current=%v power=%v",
				domain.ErrInvalidReading, st.name, d.Voltage, d.Current, d.Power)
			c.obs.RecordSensorError(st.name, err)
			c.enqueueLocked(domain.NewErrorRecord(st.name, d.Timestamp, err, res))
			continue
		}
		st.seq++
		c.enqueueLocked(domain.NewSampleRecord(st.name, st.seq, d, res))
	}
}

func (c *Collector) failLocked(st *sensorState, at time.Time, err error) {
	err = fmt.Errorf("%w: %s: %v", domain.ErrDeviceIO, st.name, err)
	if st.fail(err) && !st.detaching {
		c.degraded++
		c.obs.SetGauge(ports.MetricSensorsDegraded, float64(c.degraded))
	}
	c.obs.RecordSensorError(st.name, err)

	if c.queue != nil {
		c.enqueueLocked(domain.NewErrorRecord(st.name, at, err, st.desc.Resolution()))
	}
}
