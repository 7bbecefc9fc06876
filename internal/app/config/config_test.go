package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghalamif/wattflow/internal/domain"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
policy:
  max_queue_len: 1000
output:
  path: ./data/power.log
resolution: us
sensors:
  - type: powercap
    zone: intel-rapl:0
    interval: 10ms
  - type: simulated
    name: psu
    power: 120
    interval: 2500
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Output.Kind != OutputFile {
		t.Fatalf("expected output kind to default to file, got %s", cfg.Output.Kind)
	}
	if cfg.Policy.MaxBatchSize != 256 {
		t.Fatalf("expected MaxBatchSize default 256, got %d", cfg.Policy.MaxBatchSize)
	}
	if cfg.Policy.OnQueueFull != "block" {
		t.Fatalf("expected block policy, got %s", cfg.Policy.OnQueueFull)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Fatalf("expected default metrics addr :9100, got %s", cfg.Metrics.Addr)
	}
	if cfg.SamplingInterval.Std() != 5*time.Millisecond {
		t.Fatalf("expected default sampling interval 5ms, got %s", cfg.SamplingInterval)
	}
	if cfg.Sensors[0].Interval.Std() != 10*time.Millisecond {
		t.Fatalf("expected 10ms sensor interval, got %s", cfg.Sensors[0].Interval)
	}
	if cfg.Sensors[1].Interval.Std() != 2500*time.Microsecond {
		t.Fatalf("expected integer interval in microseconds, got %s", cfg.Sensors[1].Interval)
	}

	settings, err := cfg.CollectorSettings()
	if err != nil {
		t.Fatalf("collector settings: %v", err)
	}
	if settings.Resolution != domain.Microseconds {
		t.Fatalf("expected µs resolution, got %s", settings.Resolution)
	}
	if settings.MinimumSleep != 100*time.Millisecond {
		t.Fatalf("expected 100ms minimum sleep, got %s", settings.MinimumSleep)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.json")
	data := `{
  "output": {"kind": "timescale", "timescale": {"conn_string": "postgres://localhost/power"}},
  "minimum_sleep": "20ms",
  "sensors": [{"type": "msr", "core": 1, "domain": "dram"}]
}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Output.Timescale.Table != "power_samples" {
		t.Fatalf("expected default table, got %s", cfg.Output.Timescale.Table)
	}
	if cfg.MinimumSleep.Std() != 20*time.Millisecond {
		t.Fatalf("expected 20ms, got %s", cfg.MinimumSleep)
	}
	if cfg.Sensors[0].Core != 1 || cfg.Sensors[0].Domain != "dram" {
		t.Fatalf("unexpected sensor spec %+v", cfg.Sensors[0])
	}
}

func TestValidationErrors(t *testing.T) {
	cases := map[string]string{
		"file without path":     "output: {kind: file}",
		"timescale without dsn": "output: {kind: timescale}",
		"unknown output":        "output: {kind: kafka}",
		"bad resolution":        "resolution: fortnight",
		"bad policy":            "policy: {on_queue_full: spill}",
		"sensor without type":   "sensors: [{name: x}]",
		"malformed":             "sensors: [",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc), false); !errors.Is(err, domain.ErrInvalidConfiguration) {
			t.Fatalf("%s: expected invalid configuration, got %v", name, err)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Output = OutputConfig{Kind: OutputFile, Path: "out.log"}
	cfg.Sensors = []domain.SensorSpec{{Type: "simulated", Name: "psu", Power: 42, Interval: domain.Duration(time.Second)}}

	for _, name := range []string{"c.yaml", "c.json"} {
		path := filepath.Join(dir, name)
		if err := cfg.Save(path); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if len(got.Sensors) != 1 || got.Sensors[0].Power != 42 || got.Sensors[0].Interval.Std() != time.Second {
			t.Fatalf("%s: unexpected sensors %+v", name, got.Sensors)
		}
		if got.Output.Path != "out.log" {
			t.Fatalf("%s: unexpected output %+v", name, got.Output)
		}
	}
}
