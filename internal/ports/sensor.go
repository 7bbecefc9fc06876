package ports

import (
	"context"

	"github.com/ghalamif/wattflow/internal/domain"
)

// Sensor is the only capability the collector needs from a power sensor.
// Sample is synchronous and may block on device I/O; drivers own their timeouts.
type Sensor interface {
	Name() string
	Sample(ctx context.Context) ([]domain.MeasurementData, error)
}

// SourceSelector is implemented by sensors that can restrict which quantities they read.
type SourceSelector interface {
	SelectSources(mask domain.SourceMask)
}

// Describer is implemented by sensors that can be written back into a configuration file.
type Describer interface {
	Spec() domain.SensorSpec
}

// Discoverer enumerates the sensors available on the local machine.
type Discoverer interface {
	Discover(ctx context.Context) ([]Sensor, error)
}
