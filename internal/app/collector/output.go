package collector

import (
	"errors"
	"fmt"

	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

// enqueueLocked appends r to the output queue according to the queue-full
// policy. With "block" the caller writes a batch inline and retries while
// still holding mu.
func (c *Collector) enqueueLocked(r *domain.Record) {
	for {
		if c.queue.Enqueue(r) {
			c.obs.SetGauge(ports.MetricOutputQueueLen, float64(c.queue.Len()))
			return
		}

		switch c.settings.Policy.OnQueueFull {
		case PolicyBlock:
			if c.sink == nil {
				c.dropLocked(r, "no sink")
				return
			}
			batch := c.queue.DequeueBatch(c.settings.Policy.MaxBatchSize)
			if len(batch) == 0 {
				c.dropLocked(r, "queue empty but rejecting")
				return
			}
			if err := c.writeBatch(c.sink, batch); err != nil && c.flushErr == nil {
				c.flushErr = err
			}
		default:
			c.dropLocked(r, "queue full")
			return
		}
	}
}

func (c *Collector) dropLocked(r *domain.Record, reason string) {
	c.obs.IncCounter(ports.MetricOutputDropped, 1)
	c.obs.LogError("output_record_dropped",
		fmt.Errorf("%w: %s", domain.ErrQueueFull, reason),
		ports.Field{Key: "kind", Value: r.Kind.String()},
		ports.Field{Key: "sensor", Value: r.Sensor},
		ports.Field{Key: "capacity", Value: c.settings.Policy.MaxQueueLen})
}

// flushOutput moves queued records to the sink in FIFO batches. Only the
// sampler goroutine, or Close once the sampler has exited, calls it.
func (c *Collector) flushOutput() error {
	for {
		c.mu.Lock()
		if c.queue == nil || c.sink == nil {
			c.mu.Unlock()
			return nil
		}
		batch := c.queue.DequeueBatch(c.settings.Policy.MaxBatchSize)
		snk := c.sink
		c.obs.SetGauge(ports.MetricOutputQueueLen, float64(c.queue.Len()))
		c.mu.Unlock()

		if len(batch) == 0 {
			return nil
		}
		if err := c.writeBatch(snk, batch); err != nil {
			return err
		}
	}
}

func (c *Collector) writeBatch(snk ports.Sink, batch []*domain.Record) error {
	start := c.clock.Now()
	if err := snk.WriteBatch(batch); err != nil {
		c.obs.IncCounter(ports.MetricOutputDropped, float64(len(batch)))
		c.obs.LogError("sink_write_failed", err,
			ports.Field{Key: "sink", Value: snk.Name()},
			ports.Field{Key: "records", Value: len(batch)})
		return err
	}
	c.obs.ObserveLatency(ports.MetricSinkWrite, c.clock.Since(start).Seconds())
	c.obs.IncCounter(ports.MetricOutputRecords, float64(len(batch)))
	return nil
}

// drain flushes everything queued and then the sink itself.
func (c *Collector) drain() error {
	c.setPhase(PhaseDraining)
	defer c.setPhase(PhaseIdle)

	err := c.flushOutput()

	c.mu.Lock()
	snk := c.sink
	c.mu.Unlock()

	if f, ok := snk.(ports.Flusher); ok {
		if ferr := f.Flush(); ferr != nil {
			c.obs.LogError("sink_flush_failed", ferr, ports.Field{Key: "sink", Value: snk.Name()})
			err = errors.Join(err, ferr)
		}
	}
	return err
}

// keepFlushErr remembers the first sink failure of a run so Stop can
// report it.
func (c *Collector) keepFlushErr(err error) {
	c.mu.Lock()
	if c.flushErr == nil {
		c.flushErr = err
	}
	c.mu.Unlock()
}

func (c *Collector) lastDrainErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := errors.Join(c.flushErr, c.drainErr)
	c.flushErr, c.drainErr = nil, nil
	return err
}
