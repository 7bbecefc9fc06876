package ports

import "github.com/ghalamif/wattflow/internal/domain"

// Instrument is a physical device that accepts shared settings from an
// instrument configuration file.
type Instrument interface {
	Name() string
	Path() string
	Apply(cfg domain.InstrumentConfig) error
}
