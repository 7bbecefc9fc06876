package instrument

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

type fakeInstrument struct {
	name, path string
	applied    []Configuration
	err        error
}

func (f *fakeInstrument) Name() string { return f.name }
func (f *fakeInstrument) Path() string { return f.path }
func (f *fakeInstrument) Apply(cfg Configuration) error {
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, cfg)
	return nil
}

type noteObs struct {
	ports.Observability
	infos []string
}

func (n *noteObs) LogInfo(msg string, _ ...ports.Field) { n.infos = append(n.infos, msg) }

func TestParseSingleObject(t *testing.T) {
	entries, err := Parse([]byte(`{"beep": 2, "interval": "10ms", "parameters": {"range": 30}}`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 2, entries[0].Configuration.Beep)
	require.Equal(t, 10*time.Millisecond, entries[0].Configuration.Interval.Std())
	require.Equal(t, 30.0, entries[0].Configuration.Parameters["range"])
}

func TestParseWrappedArray(t *testing.T) {
	entries, err := Parse([]byte(`[
		{"name": "hmc8015", "path": "tcp://10.0.0.5", "configuration": {"beep": 1}},
		{"parameters": {"range": 5}}
	]`))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "hmc8015", entries[0].Name)
	require.Equal(t, "tcp://10.0.0.5", entries[0].Path)
	require.Equal(t, 1, entries[0].Configuration.Beep)
	require.Equal(t, 5.0, entries[1].Configuration.Parameters["range"])
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "[", `"text"`, `[1, 2]`} {
		_, err := Parse([]byte(raw))
		require.ErrorIs(t, err, domain.ErrInvalidConfiguration, raw)
	}
}

func TestSelectPrefersPathOverName(t *testing.T) {
	entries := []Entry{
		{Name: "meter", Configuration: Configuration{Beep: 1}},
		{Path: "usb://2", Configuration: Configuration{Beep: 2}},
		{Name: "other", Configuration: Configuration{Beep: 3}},
	}

	cfg, matched, err := Select(entries, &fakeInstrument{name: "meter", path: "usb://2"})
	require.NoError(t, err)
	require.True(t, matched)
	require.Equal(t, 2, cfg.Beep)

	cfg, matched, err = Select(entries, &fakeInstrument{name: "other", path: "usb://9"})
	require.NoError(t, err)
	require.True(t, matched)
	require.Equal(t, 3, cfg.Beep)

	_, _, err = Select(nil, &fakeInstrument{})
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestBindFallsBackToFirstWithNotice(t *testing.T) {
	obs := &noteObs{}
	inst := &fakeInstrument{name: "unknown"}
	cfg, err := Bind([]Entry{{Name: "a", Configuration: Configuration{Beep: 4}}}, inst, obs)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Beep)
	require.Len(t, inst.applied, 1)
	require.Equal(t, 4, inst.applied[0].Beep)
	require.Len(t, obs.infos, 1)
}

func TestPlanIsPrimaryThenSecondaries(t *testing.T) {
	base := Configuration{Beep: 1, Parameters: map[string]float64{"range": 10}}
	plan := Plan(base, 3)
	require.Len(t, plan, 3)

	require.Equal(t, RolePrimary, plan[0].Role)
	require.Equal(t, 1, plan[0].Beep)
	require.Equal(t, RoleSecondary, plan[1].Role)
	require.Equal(t, 2, plan[1].Beep)
	require.Equal(t, RoleSecondary, plan[2].Role)
	require.Equal(t, 3, plan[2].Beep)

	plan[2].Parameters["range"] = 99
	require.Equal(t, 10.0, plan[0].Parameters["range"])
	require.Equal(t, 10.0, base.Parameters["range"])
	require.Empty(t, base.Role)

	require.Empty(t, Plan(base, 0))
}

func TestBroadcastStopsAtFirstFailure(t *testing.T) {
	a := &fakeInstrument{name: "a"}
	b := &fakeInstrument{name: "b", err: errors.New("busy")}
	c := &fakeInstrument{name: "c"}

	err := Broadcast(Configuration{}, []Instrument{a, b, c})
	require.ErrorContains(t, err, "instrument b")
	require.Len(t, a.applied, 1)
	require.Empty(t, c.applied)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "instruments.json")
	insts := []Instrument{
		&fakeInstrument{name: "a", path: "usb://1"},
		&fakeInstrument{name: "b", path: "usb://2"},
	}
	cfg := Configuration{Beep: 1, Interval: domain.Duration(time.Second)}
	require.NoError(t, Save(path, Snapshot(insts, cfg)))

	entries, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "usb://2", entries[1].Path)
	require.Equal(t, time.Second, entries[1].Configuration.Interval.Std())
}
