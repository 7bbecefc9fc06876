package wattflow

import (
	"context"
	"errors"

	"github.com/ghalamif/wattflow/internal/app/config"
	"github.com/ghalamif/wattflow/internal/app/sensors"
)

// MakeConfigurationTemplate writes a configuration file to path listing
// every sensor discovered on this machine. The format follows the extension
// of path, JSON for .json and YAML otherwise.
func MakeConfigurationTemplate(path string, opts ...Option) error {
	o := newOptions(opts)
	found, err := discover(context.Background(), o)
	if err != nil {
		return err
	}

	cfg := config.Default()
	cfg.Sensors = sensors.Specs(found)
	return errors.Join(cfg.Save(path), sensors.CloseAll(found))
}
