package simulated

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/ghalamif/wattflow/internal/domain"
)

func TestSampleWithinJitter(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Unix(1700000000, 0))
	s := New("psu", 120, 5, fc)

	for i := 0; i < 100; i++ {
		got, err := s.Sample(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.InDelta(t, 120, got[0].Power, 5)
		require.InDelta(t, got[0].Power, got[0].Voltage*got[0].Current, 1e-9)
		require.True(t, got[0].Timestamp.Equal(fc.Now()))
	}
}

func TestSourceSelectionKeepsPower(t *testing.T) {
	s := New("psu", 60, 0, nil)
	s.SelectSources(domain.SourcePower)

	got, err := s.Sample(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 60, got[0].Power, 1e-9)
	require.Zero(t, got[0].Voltage)
	require.Zero(t, got[0].Current)
}

func TestFromSpec(t *testing.T) {
	s := FromSpec(domain.SensorSpec{Type: "simulated", Power: 7}, nil)
	require.Equal(t, "simulated", s.Name())
	require.Equal(t, 7.0, s.Spec().Power)
}

func TestApplyInstrumentConfig(t *testing.T) {
	s := New("psu", 60, 0, nil)
	require.Equal(t, "sim://psu", s.Path())

	require.NoError(t, s.Apply(domain.InstrumentConfig{Parameters: map[string]float64{"power": 24}}))
	got, err := s.Sample(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 24, got[0].Power, 1e-9)

	err = s.Apply(domain.InstrumentConfig{Parameters: map[string]float64{"power": -1}})
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	require.Equal(t, 24.0, s.Spec().Power)
}
