// Package sensors turns configuration entries into sensors and descriptors.
package sensors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"k8s.io/utils/clock"

	"github.com/ghalamif/wattflow/internal/adapters/msr"
	"github.com/ghalamif/wattflow/internal/adapters/opcua"
	"github.com/ghalamif/wattflow/internal/adapters/powercap"
	"github.com/ghalamif/wattflow/internal/adapters/simulated"
	"github.com/ghalamif/wattflow/internal/app/sampling"
	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

const (
	TypePowercap  = "powercap"
	TypeMSR       = "msr"
	TypeOPCUA     = "opcua"
	TypeSimulated = "simulated"
)

// Env locates the host filesystems sensors read from.
type Env struct {
	SysRoot  string
	ProcRoot string
	Clock    clock.PassiveClock
}

func (e Env) withDefaults() Env {
	if e.SysRoot == "" {
		e.SysRoot = powercap.DefaultRoot
	}
	if e.ProcRoot == "" {
		e.ProcRoot = "/proc"
	}
	if e.Clock == nil {
		e.Clock = clock.RealClock{}
	}
	return e
}

// Build creates the sensor described by spec.
func Build(spec domain.SensorSpec, env Env) (ports.Sensor, error) {
	env = env.withDefaults()
	switch spec.Type {
	case TypePowercap:
		return powercap.Discoverer{Root: env.SysRoot, Clock: env.Clock}.Open(spec.Zone)
	case TypeMSR:
		d, err := msr.ParseDomain(spec.Domain)
		if err != nil {
			return nil, err
		}
		return msr.Open(env.ProcRoot, spec.Core, d)
	case TypeOPCUA:
		return opcua.NewSensor(opcua.ConfigFromSpec(spec))
	case TypeSimulated:
		return simulated.FromSpec(spec, env.Clock), nil
	default:
		return nil, fmt.Errorf("%w: unknown sensor type %q", domain.ErrInvalidConfiguration, spec.Type)
	}
}

// BuildAll creates every sensor in specs. On error the sensors built so far
// are closed.
func BuildAll(specs []domain.SensorSpec, env Env) ([]ports.Sensor, error) {
	out := make([]ports.Sensor, 0, len(specs))
	for i, spec := range specs {
		s, err := Build(spec, env)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("sensors[%d] (%s): %w", i, spec.Type, err), CloseAll(out))
		}
		out = append(out, s)
	}
	return out, nil
}

// CloseAll closes every sensor that implements io.Closer.
func CloseAll(list []ports.Sensor) error {
	var errs []error
	for _, s := range list {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Descriptor builds the sampling descriptor for spec. Entries without an
// interval use fallback.
func Descriptor(spec domain.SensorSpec, fallback time.Duration, res domain.TimestampResolution) *sampling.Descriptor {
	interval := spec.Interval.Std()
	if interval <= 0 {
		interval = fallback
	}
	return sampling.New().Every(interval).UsingResolution(res)
}

// Discover enumerates every sensor this host exposes without configuration:
// the powercap RAPL zones.
func Discover(ctx context.Context, env Env) ([]ports.Sensor, error) {
	env = env.withDefaults()
	return powercap.Discoverer{Root: env.SysRoot, Clock: env.Clock}.Discover(ctx)
}

// Specs describes sensors for a configuration template. Sensors that cannot
// describe themselves are skipped.
func Specs(list []ports.Sensor) []domain.SensorSpec {
	out := make([]domain.SensorSpec, 0, len(list))
	for _, s := range list {
		if d, ok := s.(ports.Describer); ok {
			out = append(out, d.Spec())
		}
	}
	return out
}
