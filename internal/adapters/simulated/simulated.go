// Package simulated provides a synthetic power sensor for demos and tests.
package simulated

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"k8s.io/utils/clock"

	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

const nominalVoltage = 12.0

// Sensor reports Power watts plus uniform noise of up to Jitter watts at a
// fixed 12 V.
type Sensor struct {
	name   string
	power  float64
	jitter float64
	clock  clock.PassiveClock

	mu   sync.Mutex
	rnd  *rand.Rand
	mask domain.SourceMask
}

func New(name string, power, jitter float64, clk clock.PassiveClock) *Sensor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Sensor{
		name:   name,
		power:  power,
		jitter: jitter,
		clock:  clk,
		rnd:    rand.New(rand.NewPCG(uint64(len(name)), uint64(power*1000))),
		mask:   domain.SourceAll,
	}
}

// FromSpec builds a sensor from a configuration entry.
func FromSpec(spec domain.SensorSpec, clk clock.PassiveClock) *Sensor {
	name := spec.Name
	if name == "" {
		name = "simulated"
	}
	return New(name, spec.Power, spec.Jitter, clk)
}

func (s *Sensor) Name() string { return s.name }

func (s *Sensor) SelectSources(mask domain.SourceMask) {
	s.mu.Lock()
	s.mask = mask
	s.mu.Unlock()
}

func (s *Sensor) Spec() domain.SensorSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SensorSpec{Type: "simulated", Name: s.name, Power: s.power, Jitter: s.jitter}
}

// Path identifies the sensor in instrument configuration files.
func (s *Sensor) Path() string { return "sim://" + s.name }

// Apply takes the "power" and "jitter" parameters of cfg.
func (s *Sensor) Apply(cfg domain.InstrumentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := cfg.Parameters["power"]; ok {
		if v < 0 {
			return fmt.Errorf("%w: negative power %v", domain.ErrInvalidConfiguration, v)
		}
		s.power = v
	}
	if v, ok := cfg.Parameters["jitter"]; ok {
		s.jitter = v
	}
	return nil
}

func (s *Sensor) Sample(context.Context) ([]domain.MeasurementData, error) {
	s.mu.Lock()
	p := s.power
	if s.jitter > 0 {
		p += (s.rnd.Float64()*2 - 1) * s.jitter
	}
	mask := s.mask
	s.mu.Unlock()

	d := domain.NewElectricalData(s.clock.Now(), nominalVoltage, p/nominalVoltage)
	if !mask.Has(domain.SourceVoltage) {
		d.Voltage = 0
	}
	if !mask.Has(domain.SourceCurrent) {
		d.Current = 0
	}
	return []domain.MeasurementData{d}, nil
}

var (
	_ ports.Sensor         = (*Sensor)(nil)
	_ ports.SourceSelector = (*Sensor)(nil)
	_ ports.Describer      = (*Sensor)(nil)
	_ ports.Instrument     = (*Sensor)(nil)
)
