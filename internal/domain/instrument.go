package domain

// InstrumentConfig is the instrument-independent part of an instrument
// setup. Parameters carry driver specific settings.
type InstrumentConfig struct {
	Role       string             `json:"role,omitempty"`
	Beep       int                `json:"beep,omitempty"`
	Interval   Duration           `json:"interval,omitempty"`
	Parameters map[string]float64 `json:"parameters,omitempty"`
}

// Clone returns a deep copy of c.
func (c InstrumentConfig) Clone() InstrumentConfig {
	if c.Parameters != nil {
		params := make(map[string]float64, len(c.Parameters))
		for k, v := range c.Parameters {
			params[k] = v
		}
		c.Parameters = params
	}
	return c
}
