package collector

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/ghalamif/wattflow/internal/adapters/sink"
	"github.com/ghalamif/wattflow/internal/app/sampling"
	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

func TestTwoSensorsToFileSink(t *testing.T) {
	fc := testingclock.NewFakeClock(t0)
	path := filepath.Join(t.TempDir(), "power.log")

	c := newTestCollector(t, Settings{Resolution: domain.Microseconds}, Options{
		Clock:    fc,
		OpenSink: func() (ports.Sink, error) { return sink.NewFileSink(path) },
	})

	fast := sampling.New().Every(time.Millisecond).UsingResolution(domain.Microseconds)
	slow := sampling.New().Every(5 * time.Millisecond).UsingResolution(domain.Microseconds)
	_, err := c.Attach(newStubSensor("fast", fc), fast)
	require.NoError(t, err)
	_, err = c.Attach(newStubSensor("slow", fc), slow)
	require.NoError(t, err)

	require.NoError(t, c.Start())
	for i := 0; i < 100; i++ {
		waitForTimer(t, fc)
		fc.Step(time.Millisecond)
	}
	waitForTimer(t, fc)
	require.NoError(t, c.Marker("end"))
	require.NoError(t, c.Close())

	counts := map[string]int{}
	lastTS := map[string]int64{}
	lastSeq := map[string]uint64{}
	var prevAt time.Time
	var markers int

	require.NoError(t, sink.Iterate(path, func(_ uint64, r *domain.Record) error {
		require.Equal(t, domain.Microseconds, r.Resolution)
		if r.Kind == domain.RecordMarker {
			markers++
			return nil
		}
		require.Equal(t, domain.RecordSample, r.Kind)
		require.False(t, r.At.Before(prevAt), "records must follow completion order")
		prevAt = r.At

		if n := counts[r.Sensor]; n > 0 {
			require.Greater(t, r.Timestamp, lastTS[r.Sensor], "%s timestamps must increase", r.Sensor)
			require.Equal(t, lastSeq[r.Sensor]+1, r.Seq, "%s sequence must be gapless", r.Sensor)
		}
		require.Equal(t, r.At.UnixMicro(), r.Timestamp)
		counts[r.Sensor]++
		lastTS[r.Sensor] = r.Timestamp
		lastSeq[r.Sensor] = r.Seq
		return nil
	}))

	require.Equal(t, 101, counts["fast"])
	require.Equal(t, 21, counts["slow"])
	require.Equal(t, 1, markers)
}

func TestNonFiniteReadingKeepsOtherSensorsRecords(t *testing.T) {
	fc := testingclock.NewFakeClock(t0)
	path := filepath.Join(t.TempDir(), "power.log")
	c := newTestCollector(t, Settings{}, Options{
		Clock:    fc,
		OpenSink: func() (ports.Sink, error) { return sink.NewFileSink(path) },
	})

	broken := newStubSensor("broken", fc)
	broken.power = math.NaN()
	for _, s := range []*stubSensor{newStubSensor("good", fc), broken, newStubSensor("good2", fc)} {
		_, err := c.Attach(s, nil)
		require.NoError(t, err)
	}

	require.NoError(t, c.Start())
	waitForTimer(t, fc)
	require.NoError(t, c.Stop())
	require.NoError(t, c.Close())

	kinds := map[string]domain.RecordKind{}
	require.NoError(t, sink.Iterate(path, func(_ uint64, r *domain.Record) error {
		kinds[r.Sensor] = r.Kind
		return nil
	}))
	require.Equal(t, map[string]domain.RecordKind{
		"good":   domain.RecordSample,
		"broken": domain.RecordError,
		"good2":  domain.RecordSample,
	}, kinds)
}

var errSinkDown = errors.New("disk unplugged")

type downSink struct{}

func (downSink) Name() string                              { return "down" }
func (downSink) WriteBatch(records []*domain.Record) error { return errSinkDown }

func TestStopReportsSinkWriteFailure(t *testing.T) {
	fc := testingclock.NewFakeClock(t0)
	c := newTestCollector(t, Settings{}, Options{Clock: fc, Sink: downSink{}})
	_, err := c.Attach(newStubSensor("cpu", fc), nil)
	require.NoError(t, err)

	require.NoError(t, c.Start())
	waitForTimer(t, fc)
	require.ErrorIs(t, c.Stop(), errSinkDown)
	require.NoError(t, c.Stop())
}
