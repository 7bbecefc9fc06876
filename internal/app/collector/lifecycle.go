package collector

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/looplab/fsm"

	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

// State is the lifecycle state of a collector.
type State string

const (
	StateEmpty      State = "empty"
	StateConfigured State = "configured"
	StateRunning    State = "running"
	StateStopped    State = "stopped"
)

const (
	eventConfigure = "configure"
	eventClear     = "clear"
	eventStart     = "start"
	eventStop      = "stop"
)

func newLifecycle() *fsm.FSM {
	return fsm.NewFSM(
		string(StateEmpty),
		fsm.Events{
			{Name: eventConfigure, Src: []string{string(StateEmpty)}, Dst: string(StateConfigured)},
			{Name: eventClear, Src: []string{string(StateConfigured), string(StateStopped)}, Dst: string(StateEmpty)},
			{Name: eventStart, Src: []string{string(StateEmpty), string(StateConfigured), string(StateStopped)}, Dst: string(StateRunning)},
			{Name: eventStop, Src: []string{string(StateRunning)}, Dst: string(StateStopped)},
		},
		fsm.Callbacks{},
	)
}

// fireLocked applies a lifecycle event, ignoring events that do not apply
// to the current state.
func (c *Collector) fireLocked(event string) bool {
	if !c.lifecycle.Can(event) {
		return false
	}
	err := c.lifecycle.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		c.obs.LogError("lifecycle_transition_failed", err, ports.Field{Key: "event", Value: event})
		return false
	}
	return true
}

// State returns the current lifecycle state.
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State(c.lifecycle.Current())
}

// Start launches the sampler goroutine. Starting a running collector is a
// no-op. If the output sink cannot be opened the collector keeps its state
// and the error wraps domain.ErrResourceExhausted.
func (c *Collector) Start() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrDisposed
	}
	if State(c.lifecycle.Current()) == StateRunning {
		return nil
	}
	if c.sink == nil && c.openSink != nil {
		snk, err := c.openSink()
		if err != nil {
			return fmt.Errorf("%w: open output sink: %v", domain.ErrResourceExhausted, err)
		}
		c.sink = snk
		c.ownsSink = true
	}
	if !c.fireLocked(eventStart) {
		return fmt.Errorf("cannot start collector in state %s", c.lifecycle.Current())
	}

	select {
	case <-c.wake:
	default:
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.run(c.stopCh, c.doneCh)

	c.obs.LogInfo("collector_started",
		ports.Field{Key: "sensors", Value: len(c.sensors)},
		ports.Field{Key: "minimum_sleep", Value: c.sched.Floor().String()})
	return nil
}

// Stop interrupts the sampler, lets an in-flight sample finish, and flushes
// the output. It is idempotent and does nothing on a collector that never
// started.
func (c *Collector) Stop() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.stop()
}

func (c *Collector) stop() error {
	c.mu.Lock()
	if State(c.lifecycle.Current()) != StateRunning {
		c.mu.Unlock()
		return nil
	}
	stopCh, doneCh := c.stopCh, c.doneCh
	c.stopCh, c.doneCh = nil, nil
	close(stopCh)
	c.fireLocked(eventStop)
	if len(c.sensors) == 0 {
		c.fireLocked(eventClear)
	}
	c.mu.Unlock()

	<-doneCh
	c.obs.LogInfo("collector_stopped")
	return c.lastDrainErr()
}

// Close stops the collector, releases every sensor and descriptor, flushes
// queued records and closes a sink the collector opened. Operations after
// Close report domain.ErrDisposed or do nothing.
func (c *Collector) Close() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	errs := []error{c.stop()}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.Join(errs...)
	}
	c.closed = true
	entries := c.sched.Drain()
	clear(c.sensors)
	c.degraded = 0
	c.mu.Unlock()

	for _, e := range entries {
		c.release(e.Value)
	}
	c.template.Release()

	errs = append(errs, c.drain())
	if c.ownsSink {
		if closer, ok := c.sink.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	c.obs.SetGauge(ports.MetricSensorsAttached, 0)
	c.obs.SetGauge(ports.MetricSensorsDegraded, 0)
	return errors.Join(errs...)
}

// Closed reports whether Close has been called.
func (c *Collector) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
