// Package instrument reads and writes per-instrument configuration files and
// binds shared settings to physical instruments.
package instrument

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

// Roles assigned by Broadcast.
const (
	RolePrimary   = "primary"
	RoleSecondary = "secondary"
)

type (
	Configuration = domain.InstrumentConfig
	Instrument    = ports.Instrument
)

// Entry is one element of a configuration file.
type Entry struct {
	Name          string        `json:"name,omitempty"`
	Path          string        `json:"path,omitempty"`
	Configuration Configuration `json:"configuration"`
}

// Load reads the configuration file at path.
func Load(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse accepts a single object or an array. Elements without a
// "configuration" key are the configuration themselves.
func Parse(raw []byte) ([]Entry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty instrument configuration", domain.ErrInvalidConfiguration)
	}

	var elems []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
		}
	} else {
		elems = []json.RawMessage{raw}
	}

	entries := make([]Entry, 0, len(elems))
	for i, elem := range elems {
		e, err := parseEntry(elem)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", domain.ErrInvalidConfiguration, i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseEntry(raw json.RawMessage) (Entry, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Entry{}, err
	}
	var e Entry
	if _, wrapped := probe["configuration"]; wrapped {
		err := json.Unmarshal(raw, &e)
		return e, err
	}
	err := json.Unmarshal(raw, &e.Configuration)
	return e, err
}

// Save writes entries as an array of {path, name, configuration} objects.
func Save(path string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

// Select picks the entry for inst: a matching path wins over a matching
// name. Without either the first entry is returned and matched is false.
func Select(entries []Entry, inst Instrument) (cfg Configuration, matched bool, err error) {
	if len(entries) == 0 {
		return Configuration{}, false, fmt.Errorf("%w: no instrument configuration", domain.ErrInvalidConfiguration)
	}
	if p := inst.Path(); p != "" {
		for _, e := range entries {
			if e.Path == p {
				return e.Configuration.Clone(), true, nil
			}
		}
	}
	if n := inst.Name(); n != "" {
		for _, e := range entries {
			if e.Name == n {
				return e.Configuration.Clone(), true, nil
			}
		}
	}
	return entries[0].Configuration.Clone(), false, nil
}

// Bind applies the selected entry to inst and returns it.
func Bind(entries []Entry, inst Instrument, obs ports.Observability) (Configuration, error) {
	cfg, matched, err := Select(entries, inst)
	if err != nil {
		return Configuration{}, err
	}
	if !matched && obs != nil {
		obs.LogInfo("no configuration matches instrument, applying the first one",
			ports.Field{Key: "instrument", Value: inst.Name()},
			ports.Field{Key: "path", Value: inst.Path()},
		)
	}
	if err := inst.Apply(cfg); err != nil {
		return Configuration{}, fmt.Errorf("instrument %s: %w", inst.Name(), err)
	}
	return cfg, nil
}

// Secondary derives the configuration of the instrument that follows prev in
// a broadcast.
func Secondary(prev Configuration) Configuration {
	next := prev.Clone()
	next.Role = RoleSecondary
	next.Beep = prev.Beep + 1
	return next
}

// Plan folds base over n instruments: the first gets base as primary, every
// following one gets Secondary of its predecessor.
func Plan(base Configuration, n int) []Configuration {
	out := make([]Configuration, 0, n)
	acc := base.Clone()
	acc.Role = RolePrimary
	for i := 0; i < n; i++ {
		if i > 0 {
			acc = Secondary(acc)
		}
		out = append(out, acc)
	}
	return out
}

// Broadcast applies Plan(base, len(insts)) in order and stops at the first
// failure.
func Broadcast(base Configuration, insts []Instrument) error {
	for i, cfg := range Plan(base, len(insts)) {
		if err := insts[i].Apply(cfg); err != nil {
			return fmt.Errorf("instrument %s: %w", insts[i].Name(), err)
		}
	}
	return nil
}

// Snapshot describes insts as file entries carrying cfg.
func Snapshot(insts []Instrument, cfg Configuration) []Entry {
	out := make([]Entry, 0, len(insts))
	for _, inst := range insts {
		out = append(out, Entry{Name: inst.Name(), Path: inst.Path(), Configuration: cfg.Clone()})
	}
	return out
}
