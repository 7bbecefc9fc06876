package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"k8s.io/utils/clock"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/ghalamif/wattflow/internal/adapters/observability"
	"github.com/ghalamif/wattflow/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubSensor struct {
	name  string
	clock clock.PassiveClock
	power float64

	mu       sync.Mutex
	calls    int
	failures int

	closed     atomic.Bool
	detached   atomic.Bool
	violations atomic.Int32
}

func newStubSensor(name string, clk clock.PassiveClock) *stubSensor {
	return &stubSensor{name: name, clock: clk, power: 10}
}

func (s *stubSensor) Name() string { return s.name }

func (s *stubSensor) Sample(context.Context) ([]domain.MeasurementData, error) {
	if s.closed.Load() || s.detached.Load() {
		s.violations.Add(1)
	}
	s.mu.Lock()
	s.calls++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if fail {
		return nil, errors.New("bus timeout")
	}
	return []domain.MeasurementData{domain.NewPowerData(s.clock.Now(), s.power)}, nil
}

func (s *stubSensor) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *stubSensor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubSensor) failNext(n int) {
	s.mu.Lock()
	s.failures = n
	s.mu.Unlock()
}

// blockingSensor parks inside Sample until release is closed.
type blockingSensor struct {
	entered chan struct{}
	release chan struct{}
	closed  atomic.Bool
}

func newBlockingSensor() *blockingSensor {
	return &blockingSensor{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (b *blockingSensor) Name() string { return "blocking" }

func (b *blockingSensor) Sample(context.Context) ([]domain.MeasurementData, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return []domain.MeasurementData{domain.NewPowerData(time.Now(), 1)}, nil
}

func (b *blockingSensor) Close() error {
	b.closed.Store(true)
	return nil
}

type memSink struct {
	mu      sync.Mutex
	records []*domain.Record
	flushes int
}

func (m *memSink) Name() string { return "memory" }

func (m *memSink) WriteBatch(records []*domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

func (m *memSink) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func (m *memSink) Records() []*domain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Record(nil), m.records...)
}

func (m *memSink) Kinds() []domain.RecordKind {
	var out []domain.RecordKind
	for _, r := range m.Records() {
		out = append(out, r.Kind)
	}
	return out
}

func newTestCollector(t *testing.T, settings Settings, opts Options) *Collector {
	t.Helper()
	if opts.Observability == nil {
		opts.Observability = observability.NewPromObs(zaptest.NewLogger(t), prometheus.NewRegistry())
	}
	c, err := New(settings, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// waitForTimer blocks until the sampler is parked on a fake timer, which
// means it finished everything that was due.
func waitForTimer(t *testing.T, fc *testingclock.FakeClock) {
	t.Helper()
	require.Eventually(t, fc.HasWaiters, 2*time.Second, time.Millisecond)
}
