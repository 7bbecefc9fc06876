package wattflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/ghalamif/wattflow/internal/adapters/observability"
	"github.com/ghalamif/wattflow/internal/adapters/sink"
	"github.com/ghalamif/wattflow/internal/app/collector"
	"github.com/ghalamif/wattflow/internal/app/config"
	"github.com/ghalamif/wattflow/internal/app/instrument"
	"github.com/ghalamif/wattflow/internal/app/sampling"
	"github.com/ghalamif/wattflow/internal/app/sensors"
	"github.com/ghalamif/wattflow/internal/ports"
)

// Option customizes the dependencies used by a Collector.
type Option func(*options)

type options struct {
	sink          Sink
	observability Observability
	logger        *zap.Logger
	registry      *prometheus.Registry
	clock         clock.Clock
	env           sensors.Env
	discoverer    ports.Discoverer
	discover      bool
	attachments   []attachment
	instruments   []InstrumentEntry
}

type attachment struct {
	sensor Sensor
	desc   *Descriptor
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.clock != nil {
		o.env.Clock = o.clock
	}
	return o
}

// WithSink replaces the output configured in the file with a caller-owned sink.
func WithSink(s Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) Option {
	return func(o *options) {
		o.observability = obs
	}
}

// WithLogger sets the logger of the default Prometheus observability backend.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegistry registers the collector metrics with reg instead of a private
// registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithClock drives scheduling and timestamps from clk.
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		o.clock = clk
	}
}

// WithHostRoots points sensor discovery at alternative sysfs and procfs
// mount points.
func WithHostRoots(sysRoot, procRoot string) Option {
	return func(o *options) {
		o.env.SysRoot = sysRoot
		o.env.ProcRoot = procRoot
	}
}

// WithDiscovery attaches every sensor the host exposes.
func WithDiscovery() Option {
	return func(o *options) {
		o.discover = true
	}
}

// WithDiscoverer replaces the host sensor discovery.
func WithDiscoverer(d ports.Discoverer) Option {
	return func(o *options) {
		o.discoverer = d
	}
}

// WithSensor attaches s with descriptor d. A nil descriptor uses the
// configured sampling interval.
func WithSensor(s Sensor, d *Descriptor) Option {
	return func(o *options) {
		if s != nil {
			o.attachments = append(o.attachments, attachment{sensor: s, desc: d})
		}
	}
}

// WithInstruments binds instrument configuration entries to every attached
// sensor that is an Instrument.
func WithInstruments(entries []InstrumentEntry) Option {
	return func(o *options) {
		o.instruments = entries
	}
}

// Collector samples a set of power sensors and streams their readings to
// callbacks and an output sink. A Collector whose state was moved out by
// Move or Assign is disposed: Stop and Marker are no-ops, Size is zero and
// every other operation returns ErrDisposed. Move and Assign must not race
// with other calls on the same handle.
type Collector struct {
	core     *collector.Collector
	cfg      *Config
	registry *prometheus.Registry
}

// New builds a collector from cfg plus the sensors given as options. A nil
// cfg uses the defaults.
func New(cfg *Config, opts ...Option) (*Collector, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := newOptions(opts)

	settings, err := cfg.CollectorSettings()
	if err != nil {
		return nil, err
	}

	obs, registry := o.observability, o.registry
	if obs == nil {
		if registry == nil {
			registry = prometheus.NewRegistry()
		}
		obs = observability.NewPromObs(o.logger, registry)
	}

	core, err := collector.New(settings, collector.Options{
		Sink:          o.sink,
		OpenSink:      outputOpener(cfg.Output, o.sink),
		Observability: obs,
		Clock:         o.clock,
	})
	if err != nil {
		return nil, err
	}
	settings = core.Settings()

	built, err := sensors.BuildAll(cfg.Sensors, o.env)
	if err != nil {
		return nil, errors.Join(err, core.Close())
	}
	pending := make([]attachment, 0, len(built)+len(o.attachments))
	for i, s := range built {
		pending = append(pending, attachment{
			sensor: s,
			desc:   sensors.Descriptor(cfg.Sensors[i], settings.SamplingInterval, settings.Resolution),
		})
	}

	if o.discover {
		found, err := discover(context.Background(), o)
		if err != nil {
			return nil, errors.Join(err, core.Close(), closePending(pending))
		}
		for _, s := range found {
			pending = append(pending, attachment{sensor: s})
		}
	}
	pending = append(pending, o.attachments...)

	c := &Collector{core: core, cfg: cfg, registry: registry}
	if err := c.attachAll(pending, o.instruments, obs, settings); err != nil {
		return nil, err
	}
	return c, nil
}

// ForAll attaches every sensor discovered on this machine plus the sensors
// listed in cfg.
func ForAll(cfg *Config, opts ...Option) (*Collector, error) {
	return New(cfg, append(opts, WithDiscovery())...)
}

// FromJSON loads the collector configuration file at path and builds its
// sensors. Files not ending in .json are read as YAML.
func FromJSON(path string, opts ...Option) (*Collector, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// FromSensors takes ownership of list. Sensors listed in cfg are ignored.
func FromSensors(cfg *Config, list []Sensor, opts ...Option) (*Collector, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	own := *cfg
	own.Sensors = nil
	for _, s := range list {
		opts = append(opts, WithSensor(s, nil))
	}
	return New(&own, opts...)
}

func discover(ctx context.Context, o options) ([]Sensor, error) {
	if o.discoverer != nil {
		return o.discoverer.Discover(ctx)
	}
	return sensors.Discover(ctx, o.env)
}

func (c *Collector) attachAll(pending []attachment, entries []InstrumentEntry, obs ports.Observability, settings collector.Settings) error {
	for i, a := range pending {
		err := c.applyInstrument(&a, entries, obs, settings)
		if err == nil {
			_, err = c.core.Attach(a.sensor, a.desc)
		}
		if err != nil {
			return errors.Join(
				fmt.Errorf("attach %s: %w", a.sensor.Name(), err),
				c.core.Close(),
				closePending(pending[i:]),
			)
		}
	}
	return nil
}

func (c *Collector) applyInstrument(a *attachment, entries []InstrumentEntry, obs ports.Observability, settings collector.Settings) error {
	if len(entries) == 0 {
		return nil
	}
	inst, ok := a.sensor.(Instrument)
	if !ok {
		return nil
	}
	cfg, err := instrument.Bind(entries, inst, obs)
	if err != nil {
		return err
	}
	if cfg.Interval > 0 {
		if a.desc == nil {
			a.desc = sampling.New().UsingResolution(settings.Resolution)
		}
		a.desc.Every(cfg.Interval.Std())
	}
	return nil
}

func closePending(pending []attachment) error {
	list := make([]Sensor, 0, len(pending))
	for _, a := range pending {
		if a.desc != nil {
			a.desc.Release()
		}
		list = append(list, a.sensor)
	}
	return sensors.CloseAll(list)
}

func outputOpener(out OutputConfig, override Sink) func() (ports.Sink, error) {
	if override != nil {
		return nil
	}
	switch out.Kind {
	case config.OutputFile:
		return func() (ports.Sink, error) { return sink.NewFileSink(out.Path) }
	case config.OutputTimescale:
		return func() (ports.Sink, error) {
			return sink.OpenTimescaleSink(out.Timescale.ConnString, out.Timescale.Table)
		}
	case "":
		if out.Path != "" {
			return func() (ports.Sink, error) { return sink.NewFileSink(out.Path) }
		}
	}
	return nil
}

// Valid reports whether c still owns a collector.
func (c *Collector) Valid() bool {
	return c != nil && c.core != nil
}

// Config returns the configuration c was built from, or nil when disposed.
func (c *Collector) Config() *Config {
	if !c.Valid() {
		return nil
	}
	return c.cfg
}

// Start begins sampling. Starting a running collector is a no-op.
func (c *Collector) Start() error {
	if !c.Valid() {
		return ErrDisposed
	}
	return c.core.Start()
}

// Stop halts sampling after the current burst and flushes the output.
func (c *Collector) Stop() error {
	if !c.Valid() {
		return nil
	}
	return c.core.Stop()
}

// Run starts the collector and blocks until ctx is cancelled, then closes it.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return c.Close()
}

// Marker injects text into the output stream between two sampling bursts.
func (c *Collector) Marker(text string) error {
	if !c.Valid() {
		return nil
	}
	return c.core.Marker(text)
}

// Size returns the number of attached sensors.
func (c *Collector) Size() int {
	if !c.Valid() {
		return 0
	}
	return c.core.Size()
}

// Attach takes ownership of s and samples it according to d.
func (c *Collector) Attach(s Sensor, d *Descriptor) (Handle, error) {
	if !c.Valid() {
		return Handle{}, ErrDisposed
	}
	return c.core.Attach(s, d)
}

// Detach removes and closes the sensor behind h.
func (c *Collector) Detach(ctx context.Context, h Handle) error {
	if !c.Valid() {
		return ErrDisposed
	}
	return c.core.Detach(ctx, h)
}

// Reconfigure replaces the descriptor of the sensor behind h.
func (c *Collector) Reconfigure(h Handle, d *Descriptor) error {
	if !c.Valid() {
		return ErrDisposed
	}
	return c.core.Reconfigure(h, d)
}

// Status reports per-sensor sampling health.
func (c *Collector) Status() []SensorStatus {
	if !c.Valid() {
		return nil
	}
	return c.core.Status()
}

// State reports the lifecycle state. Disposed collectors are empty.
func (c *Collector) State() State {
	if !c.Valid() {
		return StateEmpty
	}
	return c.core.State()
}

// Phase reports what the sampler goroutine is doing.
func (c *Collector) Phase() Phase {
	if !c.Valid() {
		return collector.PhaseIdle
	}
	return c.core.Phase()
}

// MetricsHandler serves the metrics of the default observability backend.
func (c *Collector) MetricsHandler() http.Handler {
	if !c.Valid() || c.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Move transfers ownership of the collector to the returned handle and
// disposes c.
func (c *Collector) Move() *Collector {
	if c == nil {
		return &Collector{}
	}
	moved := *c
	*c = Collector{}
	return &moved
}

// Assign closes the collector owned by c, if any, and moves other into c.
func (c *Collector) Assign(other *Collector) error {
	if c == other {
		return nil
	}
	err := c.Close()
	if other == nil {
		*c = Collector{}
		return err
	}
	*c = *other
	*other = Collector{}
	return err
}

// Close stops sampling, releases every sensor and descriptor, closes an
// owned sink and disposes c.
func (c *Collector) Close() error {
	if !c.Valid() {
		return nil
	}
	core := c.core
	*c = Collector{}
	return core.Close()
}
