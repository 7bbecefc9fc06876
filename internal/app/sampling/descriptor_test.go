package sampling

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/wattflow/internal/domain"
)

type releaseCounter struct{ calls map[any]int }

func newReleaseCounter() *releaseCounter { return &releaseCounter{calls: map[any]int{}} }

func (r *releaseCounter) release(v any) { r.calls[v]++ }

func TestDescriptorDefaults(t *testing.T) {
	d := New()
	require.NoError(t, d.Err())
	require.Equal(t, DefaultInterval, d.Interval())
	require.Zero(t, d.MinimumSleep())
	require.Equal(t, domain.Milliseconds, d.Resolution())
	require.Equal(t, domain.SourceAll, d.Sources())
	require.False(t, d.Enabled())
}

func TestDescriptorRejectsInvalidValues(t *testing.T) {
	d := New().Every(0)
	require.ErrorIs(t, d.Err(), domain.ErrInvalidConfiguration)
	require.Equal(t, DefaultInterval, d.Interval())

	d = New().MustSleepAtLeast(-time.Millisecond)
	require.ErrorIs(t, d.Err(), domain.ErrInvalidConfiguration)

	d = New().FromSources(0)
	require.ErrorIs(t, d.Err(), domain.ErrInvalidConfiguration)

	// The first error sticks.
	d = New().Every(-1).MustSleepAtLeast(-1)
	require.Contains(t, d.Err().Error(), "interval")
}

func TestDeliveryVariantsAreExclusive(t *testing.T) {
	var dataCalls, measureCalls int
	d := New().
		DeliverMeasurements(func(domain.Measurement, any) { measureCalls++ }).
		DeliverMeasurementData(func(string, []domain.MeasurementData, any) { dataCalls++ })

	samples := []domain.MeasurementData{{Power: 1}, {Power: 2}}
	require.True(t, d.Deliver("s", samples))
	require.Equal(t, 1, dataCalls)
	require.Zero(t, measureCalls)

	d.DeliverMeasurements(func(domain.Measurement, any) { measureCalls++ })
	require.True(t, d.Deliver("s", samples))
	require.Equal(t, 1, dataCalls)
	require.Equal(t, 2, measureCalls, "legacy callback fires once per sample")
}

func TestDeliverPassesSensorAndContext(t *testing.T) {
	var got domain.Measurement
	var gotCtx any
	d := New().
		PassContext("ctx").
		DeliverMeasurements(func(m domain.Measurement, ctx any) { got, gotCtx = m, ctx })

	ts := time.Now()
	require.True(t, d.Deliver("gpu-0", []domain.MeasurementData{domain.NewPowerData(ts, 42)}))
	require.Equal(t, "gpu-0", got.Sensor)
	require.Equal(t, 42.0, got.Power)
	require.Equal(t, "ctx", gotCtx)
}

func TestDeliverWithoutCallbackOrSamples(t *testing.T) {
	require.False(t, New().Deliver("s", []domain.MeasurementData{{Power: 1}}))

	fired := false
	d := New().DeliverMeasurementData(func(string, []domain.MeasurementData, any) { fired = true })
	require.False(t, d.Deliver("s", nil))
	require.False(t, fired)
}

func TestOwnedContextReleasedExactlyOnce(t *testing.T) {
	rc := newReleaseCounter()
	a, b := new(int), new(int)

	d := New().
		DeliverMeasurementData(func(string, []domain.MeasurementData, any) {}).
		StoreContext(a, rc.release)

	// Replacing releases the previous owned context.
	d.StoreContext(b, rc.release)
	require.Equal(t, 1, rc.calls[a])
	require.Zero(t, rc.calls[b])

	// Disable releases the current one and clears the callback.
	d.Disable()
	require.Equal(t, 1, rc.calls[b])
	require.False(t, d.Enabled())
	require.Nil(t, d.Context())

	// Nothing left to release.
	d.Disable()
	d.Release()
	require.Equal(t, 1, rc.calls[a])
	require.Equal(t, 1, rc.calls[b])
}

func TestNilCallbackDisables(t *testing.T) {
	rc := newReleaseCounter()
	v := new(int)
	d := New().
		DeliverMeasurementData(func(string, []domain.MeasurementData, any) {}).
		StoreContext(v, rc.release).
		DeliverMeasurements(nil)

	require.False(t, d.Enabled())
	require.Equal(t, 1, rc.calls[v])
}

func TestPassContextDoesNotRelease(t *testing.T) {
	rc := newReleaseCounter()
	owned, borrowed := new(int), new(int)

	d := New().StoreContext(owned, rc.release).PassContext(borrowed)
	require.Equal(t, 1, rc.calls[owned])

	d.Release()
	require.Zero(t, rc.calls[borrowed])
}

func TestMoveTransfersOwnership(t *testing.T) {
	rc := newReleaseCounter()
	v := new(int)

	src := New().
		Every(time.Second).
		UsingResolution(domain.Microseconds).
		DeliverMeasurementData(func(string, []domain.MeasurementData, any) {}).
		StoreContext(v, rc.release)

	dst := src.Move()

	require.Equal(t, time.Second, dst.Interval())
	require.Equal(t, domain.Microseconds, dst.Resolution())
	require.True(t, dst.Enabled())
	require.Same(t, v, dst.Context())

	require.Equal(t, DefaultInterval, src.Interval())
	require.False(t, src.Enabled())

	src.Release()
	require.Zero(t, rc.calls[v], "moved-from descriptor must not release")

	dst.Release()
	require.Equal(t, 1, rc.calls[v])
}

func TestCloneRejectsOwnedContext(t *testing.T) {
	tpl := New().Every(10 * time.Millisecond).PassContext("shared")
	c, err := tpl.Clone()
	require.NoError(t, err)
	require.Equal(t, 10*time.Millisecond, c.Interval())
	require.Equal(t, "shared", c.Context())

	_, err = New().StoreContext(1, func(any) {}).Clone()
	require.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}
