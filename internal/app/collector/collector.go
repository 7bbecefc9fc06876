// Package collector polls a changing set of power sensors from a single
// sampler goroutine and hands their measurements to delivery callbacks and
// an ordered output sink.
package collector

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"k8s.io/utils/clock"

	"github.com/ghalamif/wattflow/internal/adapters/queue"
	"github.com/ghalamif/wattflow/internal/app/sampling"
	"github.com/ghalamif/wattflow/internal/app/schedule"
	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

const (
	DefaultMinimumSleep = 100 * time.Millisecond
	DefaultMaxQueueLen  = 4096
	DefaultMaxBatchSize = 256

	// PolicyBlock makes the sampler write a batch to the sink inline when
	// the queue is full. The write happens under the collector lock, so
	// Attach, Detach, Marker and the other mutators may wait on sink I/O.
	PolicyBlock = "block"
	PolicyDrop  = "drop"
)

// Settings are the collector-wide defaults. Zero values are replaced by
// the package defaults in New.
type Settings struct {
	// SamplingInterval is used for sensors attached without a descriptor.
	SamplingInterval time.Duration
	// MinimumSleep caps how long the sampler blocks before it re-checks
	// for mutations. Descriptors may lower it further.
	MinimumSleep time.Duration
	Resolution   domain.TimestampResolution
	Policy       ports.Policy
}

func (s *Settings) applyDefaults() {
	if s.SamplingInterval == 0 {
		s.SamplingInterval = sampling.DefaultInterval
	}
	if s.MinimumSleep == 0 {
		s.MinimumSleep = DefaultMinimumSleep
	}
	if s.Policy.MaxQueueLen == 0 {
		s.Policy.MaxQueueLen = DefaultMaxQueueLen
	}
	if s.Policy.MaxBatchSize == 0 {
		s.Policy.MaxBatchSize = DefaultMaxBatchSize
	}
	if s.Policy.OnQueueFull == "" {
		s.Policy.OnQueueFull = PolicyBlock
	}
}

func (s Settings) validate() error {
	if s.SamplingInterval < 0 {
		return fmt.Errorf("%w: sampling interval must be positive", domain.ErrInvalidConfiguration)
	}
	if s.MinimumSleep < 0 {
		return fmt.Errorf("%w: minimum sleep must not be negative", domain.ErrInvalidConfiguration)
	}
	if s.Policy.MaxQueueLen < 0 || s.Policy.MaxBatchSize < 0 {
		return fmt.Errorf("%w: queue and batch sizes must not be negative", domain.ErrInvalidConfiguration)
	}
	switch s.Policy.OnQueueFull {
	case PolicyBlock, PolicyDrop:
	default:
		return fmt.Errorf("%w: unknown queue policy %q", domain.ErrInvalidConfiguration, s.Policy.OnQueueFull)
	}
	return nil
}

// Options carries the collaborators of a Collector.
type Options struct {
	// Sink receives output records. The caller keeps ownership.
	Sink ports.Sink
	// OpenSink is called by the first Start when Sink is nil. A sink it
	// returns is owned and closed by the collector.
	OpenSink func() (ports.Sink, error)
	// Queue overrides the bounded in-memory output queue.
	Queue         ports.RecordQueue
	Observability ports.Observability
	Clock         clock.Clock
}

// Handle identifies an attached sensor.
type Handle struct{ id uuid.UUID }

func (h Handle) String() string { return h.id.String() }

// IsZero reports whether h was never issued by a collector.
func (h Handle) IsZero() bool { return h.id == uuid.Nil }

// SensorStatus is a snapshot of one attached sensor.
type SensorStatus struct {
	Handle        Handle
	Name          string
	Interval      time.Duration
	Effective     time.Duration
	Samples       uint64
	Failures      int
	TotalFailures uint64
	Degraded      bool
	LastError     string
	NextDue       time.Time
}

// Collector owns its sensors and the sampler goroutine polling them.
type Collector struct {
	// runMu serialises Start, Stop and Close.
	runMu sync.Mutex

	// mu guards everything below it. It is held for bookkeeping, delivery
	// callbacks and queue access, never across a Sample call.
	mu        sync.Mutex
	settings  Settings
	template  *sampling.Descriptor
	sched     *schedule.Scheduler[*sensorState]
	sensors   map[Handle]*sensorState
	nextKey   uint64
	degraded  int
	lifecycle *fsm.FSM
	queue     ports.RecordQueue
	sink      ports.Sink
	ownsSink  bool
	openSink  func() (ports.Sink, error)
	stopCh    chan struct{}
	doneCh    chan struct{}
	flushErr  error
	drainErr  error
	closed    bool

	obs   ports.Observability
	clock clock.Clock
	phase atomic.Int32
	wake  chan struct{}
}

// New builds a collector in the empty state.
func New(settings Settings, opts Options) (*Collector, error) {
	settings.applyDefaults()
	if err := settings.validate(); err != nil {
		return nil, err
	}

	template := sampling.New().
		Every(settings.SamplingInterval).
		UsingResolution(settings.Resolution)
	if err := template.Err(); err != nil {
		return nil, err
	}

	c := &Collector{
		settings:  settings,
		template:  template,
		sched:     schedule.New[*sensorState](settings.MinimumSleep),
		sensors:   make(map[Handle]*sensorState),
		lifecycle: newLifecycle(),
		sink:      opts.Sink,
		openSink:  opts.OpenSink,
		queue:     opts.Queue,
		obs:       opts.Observability,
		clock:     opts.Clock,
		wake:      make(chan struct{}, 1),
	}
	if c.obs == nil {
		c.obs = nopObservability{}
	}
	if c.clock == nil {
		c.clock = clock.RealClock{}
	}
	if c.queue == nil && (c.sink != nil || c.openSink != nil) {
		c.queue = queue.NewMemQueue(settings.Policy.MaxQueueLen)
	}
	return c, nil
}

// Settings returns the effective collector settings.
func (c *Collector) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Attach takes ownership of sensor and schedules it for immediate sampling.
// The descriptor is moved into the collector; a nil descriptor uses the
// collector defaults.
func (c *Collector) Attach(sensor ports.Sensor, d *sampling.Descriptor) (Handle, error) {
	if sensor == nil {
		return Handle{}, fmt.Errorf("%w: sensor is nil", domain.ErrInvalidConfiguration)
	}
	if d != nil && d.Err() != nil {
		return Handle{}, d.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Handle{}, domain.ErrDisposed
	}

	var desc *sampling.Descriptor
	if d != nil {
		desc = d.Move()
	} else {
		var err error
		if desc, err = c.template.Clone(); err != nil {
			return Handle{}, err
		}
	}

	c.nextKey++
	st := newSensorState(Handle{id: uuid.New()}, c.nextKey, sensor, desc, c.clock)
	st.selectSources()

	c.sensors[st.handle] = st
	c.sched.Insert(st.key, st, c.clock.Now())
	c.refreshFloorLocked()
	c.fireLocked(eventConfigure)
	c.obs.SetGauge(ports.MetricSensorsAttached, float64(len(c.sensors)))
	c.obs.LogInfo("sensor_attached",
		ports.Field{Key: "sensor", Value: st.name},
		ports.Field{Key: "handle", Value: st.handle.String()},
		ports.Field{Key: "interval", Value: desc.Interval().String()})
	c.notify()
	return st.handle, nil
}

// Detach removes the sensor and closes it. When the sensor is being sampled,
// Detach waits for that sample to finish or ctx to expire; the sensor is
// released by the sampler either way.
func (c *Collector) Detach(ctx context.Context, h Handle) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrDisposed
	}
	st, ok := c.sensors[h]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrUnknownSensor, h)
	}

	delete(c.sensors, h)
	st.detaching = true
	if st.degraded {
		c.degraded--
		c.obs.SetGauge(ports.MetricSensorsDegraded, float64(c.degraded))
	}
	_, deferred := c.sched.Remove(st.key)
	if deferred {
		st.detached = make(chan struct{})
	}
	done := st.detached
	c.refreshFloorLocked()
	if len(c.sensors) == 0 {
		c.fireLocked(eventClear)
	}
	c.obs.SetGauge(ports.MetricSensorsAttached, float64(len(c.sensors)))
	c.obs.LogInfo("sensor_detached", ports.Field{Key: "sensor", Value: st.name})
	c.notify()
	c.mu.Unlock()

	if !deferred {
		c.release(st)
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconfigure swaps the descriptor of an attached sensor. The previous
// descriptor is released. If the sensor is being sampled the swap happens
// once that sample has been delivered.
func (c *Collector) Reconfigure(h Handle, d *sampling.Descriptor) error {
	if d == nil {
		return fmt.Errorf("%w: descriptor is nil", domain.ErrInvalidConfiguration)
	}
	if err := d.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrDisposed
	}
	st, ok := c.sensors[h]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrUnknownSensor, h)
	}

	next := d.Move()
	var old *sampling.Descriptor
	if e, ok := c.sched.Get(st.key); ok && e.InFlight() {
		old = st.pending
		st.pending = next
	} else {
		old = c.swapDescriptorLocked(st, next)
		c.sched.Update(st.key, st.nextDue(c.clock.Now()))
	}
	c.refreshFloorLocked()
	c.notify()
	c.mu.Unlock()

	if old != nil {
		old.Release()
	}
	return nil
}

// swapDescriptorLocked installs next and returns the descriptor it replaced.
func (c *Collector) swapDescriptorLocked(st *sensorState, next *sampling.Descriptor) *sampling.Descriptor {
	old := st.desc
	if st.degraded {
		c.degraded--
		c.obs.SetGauge(ports.MetricSensorsDegraded, float64(c.degraded))
	}
	st.install(next)
	st.selectSources()
	return old
}

// Marker injects text into the output stream. The marker follows every
// sample delivered before the call and precedes every sample delivered
// after it returns. It is a no-op on a closed collector or one without a
// sink.
func (c *Collector) Marker(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.queue == nil {
		return nil
	}
	r := domain.NewMarkerRecord(c.clock.Now(), text, c.settings.Resolution)
	if !c.queue.Enqueue(r) {
		c.obs.IncCounter(ports.MetricOutputDropped, 1)
		return domain.ErrQueueFull
	}
	c.obs.IncCounter(ports.MetricMarkers, 1)
	c.obs.SetGauge(ports.MetricOutputQueueLen, float64(c.queue.Len()))
	c.notify()
	return nil
}

// Size returns the number of attached sensors.
func (c *Collector) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sensors)
}

// Status reports every attached sensor in attach order.
func (c *Collector) Status() []SensorStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]SensorStatus, 0, len(c.sensors))
	keys := make(map[Handle]uint64, len(c.sensors))
	for h, st := range c.sensors {
		s := SensorStatus{
			Handle:        h,
			Name:          st.name,
			Interval:      st.desc.Interval(),
			Effective:     st.effective,
			Samples:       st.samples,
			Failures:      st.failures,
			TotalFailures: st.totalFailures,
			Degraded:      st.degraded,
		}
		if st.lastErr != nil {
			s.LastError = st.lastErr.Error()
		}
		if e, ok := c.sched.Get(st.key); ok {
			s.NextDue = e.Due
		}
		keys[h] = st.key
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return keys[out[i].Handle] < keys[out[j].Handle] })
	return out
}

// Phase returns what the sampler goroutine is currently doing.
func (c *Collector) Phase() Phase {
	return Phase(c.phase.Load())
}

func (c *Collector) setPhase(p Phase) {
	c.phase.Store(int32(p))
}

// refreshFloorLocked recomputes the scheduler floor from the collector
// setting and every positive descriptor minimum sleep.
func (c *Collector) refreshFloorLocked() {
	floor := c.settings.MinimumSleep
	for _, st := range c.sensors {
		if ms := st.minimumSleep(); ms > 0 && ms < floor {
			floor = ms
		}
	}
	c.sched.SetFloor(floor)
}

// notify wakes the sampler so it picks up a mutation immediately.
func (c *Collector) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// release closes a sensor and frees its descriptors. Must be called
// without holding mu.
func (c *Collector) release(st *sensorState) {
	st.desc.Release()
	if st.pending != nil {
		st.pending.Release()
	}
	if closer, ok := st.sensor.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.obs.LogError("sensor_close_failed", err, ports.Field{Key: "sensor", Value: st.name})
		}
	}
	if st.detached != nil {
		close(st.detached)
	}
}
