package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/wattflow/internal/app/collector"
	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

const (
	OutputNone      = "none"
	OutputFile      = "file"
	OutputTimescale = "timescale"
)

// Config is the collector configuration file. It is read from YAML or,
// for files ending in .json, from JSON.
type Config struct {
	Output           OutputConfig        `yaml:"output" json:"output"`
	SamplingInterval domain.Duration     `yaml:"sampling_interval" json:"sampling_interval"`
	MinimumSleep     domain.Duration     `yaml:"minimum_sleep" json:"minimum_sleep"`
	Resolution       string              `yaml:"resolution" json:"resolution"`
	Policy           ports.Policy        `yaml:"policy" json:"policy"`
	Metrics          MetricsConfig       `yaml:"metrics" json:"metrics"`
	Log              LogConfig           `yaml:"log" json:"log"`
	Sensors          []domain.SensorSpec `yaml:"sensors" json:"sensors"`
}

type OutputConfig struct {
	Kind      string          `yaml:"kind" json:"kind"`
	Path      string          `yaml:"path" json:"path,omitempty"`
	Timescale TimescaleConfig `yaml:"timescale" json:"timescale"`
}

type TimescaleConfig struct {
	ConnString string `yaml:"conn_string" json:"conn_string,omitempty"`
	Table      string `yaml:"table" json:"table,omitempty"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

type LogConfig struct {
	Level       string `yaml:"level" json:"level"`
	Development bool   `yaml:"development" json:"development"`
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, isJSON(path))
}

// Parse decodes a configuration document, applies defaults and validates it.
func Parse(raw []byte, asJSON bool) (*Config, error) {
	var cfg Config
	var err error
	if asJSON {
		err = json.Unmarshal(raw, &cfg)
	} else {
		err = yaml.Unmarshal(raw, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration in the format implied by the extension of
// path.
func (c *Config) Save(path string) error {
	var (
		raw []byte
		err error
	)
	if isJSON(path) {
		raw, err = json.MarshalIndent(c, "", "  ")
	} else {
		raw, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, raw, 0o644)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Output.Kind == "" {
		if c.Output.Path != "" {
			c.Output.Kind = OutputFile
		} else {
			c.Output.Kind = OutputNone
		}
	}
	if c.Output.Timescale.Table == "" {
		c.Output.Timescale.Table = "power_samples"
	}
	if c.SamplingInterval == 0 {
		c.SamplingInterval = domain.Duration(5 * time.Millisecond)
	}
	if c.MinimumSleep == 0 {
		c.MinimumSleep = domain.Duration(collector.DefaultMinimumSleep)
	}
	if c.Resolution == "" {
		c.Resolution = domain.Milliseconds.String()
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = collector.DefaultMaxQueueLen
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = collector.DefaultMaxBatchSize
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = collector.PolicyBlock
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	switch c.Output.Kind {
	case OutputNone:
	case OutputFile:
		if c.Output.Path == "" {
			return fmt.Errorf("%w: output.path is required for file output", domain.ErrInvalidConfiguration)
		}
	case OutputTimescale:
		if c.Output.Timescale.ConnString == "" {
			return fmt.Errorf("%w: output.timescale.conn_string is required", domain.ErrInvalidConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown output kind %q", domain.ErrInvalidConfiguration, c.Output.Kind)
	}
	if c.SamplingInterval < 0 || c.MinimumSleep < 0 {
		return fmt.Errorf("%w: sampling_interval and minimum_sleep must not be negative", domain.ErrInvalidConfiguration)
	}
	if _, err := domain.ParseResolution(c.Resolution); err != nil {
		return err
	}
	switch c.Policy.OnQueueFull {
	case collector.PolicyBlock, collector.PolicyDrop:
	default:
		return fmt.Errorf("%w: policy.on_queue_full must be block or drop, got %q", domain.ErrInvalidConfiguration, c.Policy.OnQueueFull)
	}
	for i, s := range c.Sensors {
		if s.Type == "" {
			return fmt.Errorf("%w: sensors[%d].type is required", domain.ErrInvalidConfiguration, i)
		}
		if s.Interval < 0 {
			return fmt.Errorf("%w: sensors[%d].interval must not be negative", domain.ErrInvalidConfiguration, i)
		}
	}
	return nil
}

// CollectorSettings converts the file into collector settings.
func (c *Config) CollectorSettings() (collector.Settings, error) {
	res, err := domain.ParseResolution(c.Resolution)
	if err != nil {
		return collector.Settings{}, err
	}
	return collector.Settings{
		SamplingInterval: c.SamplingInterval.Std(),
		MinimumSleep:     c.MinimumSleep.Std(),
		Resolution:       res,
		Policy:           c.Policy,
	}, nil
}
