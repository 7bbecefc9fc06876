package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ghalamif/wattflow/internal/ports"
)

// PromObs logs through zap and records collector metrics in Prometheus.
type PromObs struct {
	log      *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer

	sensorErrors *prometheus.CounterVec
	errLimiter   *rate.Limiter
}

// NewPromObs registers the collector metrics with reg. A nil reg falls back to
// prometheus.DefaultRegisterer and a nil logger to zap.NewNop.
func NewPromObs(logger *zap.Logger, reg prometheus.Registerer) *PromObs {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	delivered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricSamplesDelivered,
		Help: "Measurements taken from sensors and handed to callbacks or the output queue.",
	})
	markers := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricMarkers,
		Help: "Markers injected into the output stream.",
	})
	written := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricOutputRecords,
		Help: "Records written to the output sink.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricOutputDropped,
		Help: "Records lost due to output queue backpressure or sink failures.",
	})
	sensorErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricSensorErrors,
		Help: "Failed sampling attempts per sensor.",
	}, []string{"sensor"})
	attached := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricSensorsAttached,
		Help: "Sensors currently attached to the collector.",
	})
	degraded := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricSensorsDegraded,
		Help: "Sensors currently backing off after sampling errors.",
	})
	queueLen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricOutputQueueLen,
		Help: "Records buffered in the output queue.",
	})
	sampleDur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricSampleDuration,
		Help:    "Time spent inside a single sensor read.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
	sinkWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricSinkWrite,
		Help:    "Latency of writing one batch to the output sink.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	reg.MustRegister(delivered, markers, written, dropped, sensorErrors, attached, degraded, queueLen, sampleDur, sinkWrite)

	return &PromObs{
		log: logger,
		counters: map[string]prometheus.Counter{
			ports.MetricSamplesDelivered: delivered,
			ports.MetricMarkers:          markers,
			ports.MetricOutputRecords:    written,
			ports.MetricOutputDropped:    dropped,
		},
		gauges: map[string]prometheus.Gauge{
			ports.MetricSensorsAttached: attached,
			ports.MetricSensorsDegraded: degraded,
			ports.MetricOutputQueueLen:  queueLen,
		},
		histos: map[string]prometheus.Observer{
			ports.MetricSampleDuration: sampleDur,
			ports.MetricSinkWrite:      sinkWrite,
		},
		sensorErrors: sensorErrors,
		// a flapping sensor would otherwise log once per sampling interval
		errLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Logger exposes the underlying zap logger.
func (p *PromObs) Logger() *zap.Logger { return p.log }

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, zapFields(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(fields), zap.Error(err), zap.Bool("critical", true))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordSensorError(sensor string, err error) {
	p.sensorErrors.WithLabelValues(sensor).Inc()
	if err != nil && p.errLimiter.Allow() {
		p.log.Warn("sensor_sample_failed", zap.String("sensor", sensor), zap.Error(err))
	}
}

func zapFields(fields []ports.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
