// Package powercap reads CPU energy counters exposed by the Linux powercap
// framework under /sys/class/powercap.
package powercap

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prometheus/procfs/sysfs"
	"k8s.io/utils/clock"

	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

const DefaultRoot = "/sys"

// Sensor reports the average power of one RAPL zone between two
// consecutive samples. The first Sample primes the counter and returns an
// empty batch.
type Sensor struct {
	zone  sysfs.RaplZone
	name  string
	clock clock.PassiveClock

	mu      sync.Mutex
	counter domain.EnergyCounter
}

func NewSensor(zone sysfs.RaplZone, clk clock.PassiveClock) *Sensor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Sensor{
		zone:    zone,
		name:    "powercap/" + zoneID(zone) + "/" + strings.TrimSpace(zone.Name),
		clock:   clk,
		counter: domain.EnergyCounter{Max: zone.MaxMicrojoules, Scale: 1e-6},
	}
}

func (s *Sensor) Name() string { return s.name }

func (s *Sensor) Spec() domain.SensorSpec {
	return domain.SensorSpec{Type: "powercap", Name: s.name, Zone: zoneID(s.zone)}
}

func (s *Sensor) Sample(context.Context) ([]domain.MeasurementData, error) {
	uj, err := s.zone.GetEnergyMicrojoules()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.zone.Path, err)
	}
	now := s.clock.Now()

	s.mu.Lock()
	w, ok := s.counter.Observe(uj, now)
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return []domain.MeasurementData{domain.NewPowerData(now, w)}, nil
}

// Discoverer enumerates the RAPL zones below Root.
type Discoverer struct {
	Root  string
	Clock clock.PassiveClock
}

func (d Discoverer) zones() ([]sysfs.RaplZone, error) {
	root := d.Root
	if root == "" {
		root = DefaultRoot
	}
	fs, err := sysfs.NewFS(root)
	if err != nil {
		return nil, err
	}
	return sysfs.GetRaplZones(fs)
}

func (d Discoverer) Discover(context.Context) ([]ports.Sensor, error) {
	zones, err := d.zones()
	if err != nil {
		return nil, fmt.Errorf("discover powercap zones: %w", err)
	}
	out := make([]ports.Sensor, 0, len(zones))
	for _, z := range zones {
		out = append(out, NewSensor(z, d.Clock))
	}
	return out, nil
}

// Open returns the sensor for the zone identified by id, which is either
// the sysfs directory name (intel-rapl:0) or the zone name (package-0).
func (d Discoverer) Open(id string) (*Sensor, error) {
	zones, err := d.zones()
	if err != nil {
		return nil, fmt.Errorf("%w: powercap: %v", domain.ErrInvalidConfiguration, err)
	}
	for _, z := range zones {
		if zoneID(z) == id || strings.TrimSpace(z.Name) == id {
			return NewSensor(z, d.Clock), nil
		}
	}
	return nil, fmt.Errorf("%w: powercap zone %q not found", domain.ErrInvalidConfiguration, id)
}

// zoneID is the sysfs directory of the zone, unique across sockets.
func zoneID(z sysfs.RaplZone) string {
	return filepath.Base(z.Path)
}

var (
	_ ports.Sensor     = (*Sensor)(nil)
	_ ports.Describer  = (*Sensor)(nil)
	_ ports.Discoverer = Discoverer{}
)
