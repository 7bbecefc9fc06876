package domain

import (
	"math"
	"time"
)

// MeasurementData is a single reading taken from a power sensor.
type MeasurementData struct {
	Timestamp time.Time `json:"ts"`
	Voltage   float64   `json:"voltage,omitempty"`
	Current   float64   `json:"current,omitempty"`
	Power     float64   `json:"power"`
}

// Finite reports whether every value of the reading can be encoded.
func (d MeasurementData) Finite() bool {
	for _, v := range [...]float64{d.Voltage, d.Current, d.Power} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// NewPowerData builds a reading for sensors that only report power.
func NewPowerData(ts time.Time, power float64) MeasurementData {
	return MeasurementData{Timestamp: ts, Power: power}
}

// NewElectricalData builds a reading from voltage and current, deriving power.
func NewElectricalData(ts time.Time, voltage, current float64) MeasurementData {
	return MeasurementData{
		Timestamp: ts,
		Voltage:   voltage,
		Current:   current,
		Power:     voltage * current,
	}
}

// Measurement couples a reading with the name of the sensor it came from.
type Measurement struct {
	Sensor string `json:"sensor"`
	MeasurementData
}

// RecordKind discriminates the entries of the output stream.
type RecordKind uint8

const (
	RecordSample RecordKind = iota + 1
	RecordMarker
	RecordError
)

func (k RecordKind) String() string {
	switch k {
	case RecordSample:
		return "sample"
	case RecordMarker:
		return "marker"
	case RecordError:
		return "error"
	default:
		return "unknown"
	}
}

// Record is one entry of the append-only output stream.
type Record struct {
	Kind       RecordKind          `json:"kind"`
	Sensor     string              `json:"sensor,omitempty"`
	At         time.Time           `json:"at"`
	Timestamp  int64               `json:"ts"`
	Resolution TimestampResolution `json:"res"`
	Seq        uint64              `json:"seq,omitempty"`
	Voltage    float64             `json:"voltage,omitempty"`
	Current    float64             `json:"current,omitempty"`
	Power      float64             `json:"power,omitempty"`
	Text       string              `json:"text,omitempty"`
}

// NewSampleRecord converts a reading of the named sensor into an output record.
func NewSampleRecord(sensor string, seq uint64, d MeasurementData, res TimestampResolution) *Record {
	return &Record{
		Kind:       RecordSample,
		Sensor:     sensor,
		At:         d.Timestamp,
		Timestamp:  res.Scale(d.Timestamp),
		Resolution: res,
		Seq:        seq,
		Voltage:    d.Voltage,
		Current:    d.Current,
		Power:      d.Power,
	}
}

// NewMarkerRecord builds the record for a marker injected at ts.
func NewMarkerRecord(ts time.Time, text string, res TimestampResolution) *Record {
	return &Record{
		Kind:       RecordMarker,
		At:         ts,
		Timestamp:  res.Scale(ts),
		Resolution: res,
		Text:       text,
	}
}

// NewErrorRecord records a failed sampling attempt in-band.
func NewErrorRecord(sensor string, ts time.Time, err error, res TimestampResolution) *Record {
	r := &Record{
		Kind:       RecordError,
		Sensor:     sensor,
		At:         ts,
		Timestamp:  res.Scale(ts),
		Resolution: res,
	}
	if err != nil {
		r.Text = err.Error()
	}
	return r
}
