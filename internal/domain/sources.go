package domain

// SourceMask selects which quantities a multi-channel sensor should read.
// Sensors that cannot select sources ignore it.
type SourceMask uint8

const (
	SourcePower SourceMask = 1 << iota
	SourceVoltage
	SourceCurrent

	SourceAll = SourcePower | SourceVoltage | SourceCurrent
)

// Has reports whether every bit of s is set in m.
func (m SourceMask) Has(s SourceMask) bool {
	return m&s == s
}
