package msr

import (
	"context"
	"fmt"
	"sync"

	"k8s.io/utils/clock"

	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

// Device reads 64-bit model specific registers of one core.
type Device interface {
	Read(offset int64) (uint64, error)
	Close() error
}

// energyCounterMax is the wrap point of the 32-bit energy status field.
const energyCounterMax = 1 << 32

// Sensor reports the average power of one RAPL domain on one core. The
// first Sample primes the counter and returns an empty batch.
type Sensor struct {
	dev    Device
	core   int
	domain Domain
	offset int64
	name   string
	clock  clock.PassiveClock

	mu      sync.Mutex
	counter domain.EnergyCounter
}

// NewSensor reads the energy unit of the CPU from dev and prepares to
// sample d. The sensor takes ownership of dev.
func NewSensor(dev Device, core int, vendor Vendor, d Domain, clk clock.PassiveClock) (*Sensor, error) {
	offset, err := Offset(vendor, d)
	if err != nil {
		return nil, err
	}
	unitOff, err := UnitOffset(vendor)
	if err != nil {
		return nil, err
	}
	unit, err := dev.Read(unitOff)
	if err != nil {
		return nil, fmt.Errorf("%w: read RAPL power unit: %v", domain.ErrDeviceIO, err)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Sensor{
		dev:     dev,
		core:    core,
		domain:  d,
		offset:  offset,
		name:    fmt.Sprintf("msr/%d/%s", core, d),
		clock:   clk,
		counter: domain.EnergyCounter{Max: energyCounterMax, Scale: EnergyScale(unit)},
	}, nil
}

// Open detects the CPU vendor below procRoot and opens the msr device of
// core.
func Open(procRoot string, core int, d Domain) (*Sensor, error) {
	vendor, err := DetectVendor(procRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: detect cpu vendor: %v", domain.ErrInvalidConfiguration, err)
	}
	if vendor == VendorUnknown {
		return nil, fmt.Errorf("%w: unknown cpu vendor", domain.ErrInvalidConfiguration)
	}
	dev, err := OpenDevice(core)
	if err != nil {
		return nil, err
	}
	s, err := NewSensor(dev, core, vendor, d, nil)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sensor) Name() string { return s.name }

func (s *Sensor) Spec() domain.SensorSpec {
	return domain.SensorSpec{Type: "msr", Name: s.name, Core: s.core, Domain: s.domain.String()}
}

func (s *Sensor) Sample(context.Context) ([]domain.MeasurementData, error) {
	raw, err := s.dev.Read(s.offset)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	s.mu.Lock()
	w, ok := s.counter.Observe(raw&(energyCounterMax-1), now)
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return []domain.MeasurementData{domain.NewPowerData(now, w)}, nil
}

func (s *Sensor) Close() error {
	return s.dev.Close()
}

var (
	_ ports.Sensor    = (*Sensor)(nil)
	_ ports.Describer = (*Sensor)(nil)
)
