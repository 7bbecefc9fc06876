package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimestampResolution is the unit in which output timestamps are expressed.
type TimestampResolution uint8

const (
	Milliseconds TimestampResolution = iota
	Microseconds
	Nanoseconds
	Seconds
)

// Scale converts ts into a Unix timestamp at the resolution r.
func (r TimestampResolution) Scale(ts time.Time) int64 {
	switch r {
	case Seconds:
		return ts.Unix()
	case Microseconds:
		return ts.UnixMicro()
	case Nanoseconds:
		return ts.UnixNano()
	default:
		return ts.UnixMilli()
	}
}

func (r TimestampResolution) String() string {
	switch r {
	case Seconds:
		return "s"
	case Microseconds:
		return "us"
	case Nanoseconds:
		return "ns"
	default:
		return "ms"
	}
}

// ParseResolution accepts the short unit names used in configuration files.
func ParseResolution(s string) (TimestampResolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ms", "millisecond", "milliseconds":
		return Milliseconds, nil
	case "us", "µs", "microsecond", "microseconds":
		return Microseconds, nil
	case "ns", "nanosecond", "nanoseconds":
		return Nanoseconds, nil
	case "s", "second", "seconds":
		return Seconds, nil
	default:
		return Milliseconds, fmt.Errorf("%w: unknown timestamp resolution %q", ErrInvalidConfiguration, s)
	}
}
