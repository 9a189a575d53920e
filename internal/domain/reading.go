package domain

import "time"

// AirQuality is the categorical label derived from a reading. It is never set by
// the poller directly; see airquality.Classify.
type AirQuality string

const (
	AirExcellent AirQuality = "excellent"
	AirGood      AirQuality = "good"
	AirFair      AirQuality = "fair"
	AirModerate  AirQuality = "moderate"
	AirPoor      AirQuality = "poor"
	AirVeryPoor  AirQuality = "very_poor"
	AirUnknown   AirQuality = "unknown"
)

// SensorReading is the unit of freezer telemetry produced once per poll cycle.
// A nil channel field means the channel produced no data this cycle, which is
// distinct from a zero concentration.
type SensorReading struct {
	Seq        uint64     `json:"seq"`
	SourceID   string     `json:"source_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	CO2PPM     *uint16    `json:"co2_ppm"`
	AmmoniaPPM *float64   `json:"ammonia_ppm"`
	H2SPPM     *float64   `json:"h2s_ppm"`
	DoorOpen   *bool      `json:"door_open"`
	AirQuality AirQuality `json:"air_quality"`
}

// HasGasData reports whether any gas channel carried a value.
func (r *SensorReading) HasGasData() bool {
	return r.CO2PPM != nil || r.AmmoniaPPM != nil || r.H2SPPM != nil
}

// Clone returns a deep copy so callers never share optional field storage.
func (r *SensorReading) Clone() *SensorReading {
	if r == nil {
		return nil
	}
	out := *r
	if r.CO2PPM != nil {
		out.CO2PPM = Uint16(*r.CO2PPM)
	}
	if r.AmmoniaPPM != nil {
		out.AmmoniaPPM = Float64(*r.AmmoniaPPM)
	}
	if r.H2SPPM != nil {
		out.H2SPPM = Float64(*r.H2SPPM)
	}
	if r.DoorOpen != nil {
		out.DoorOpen = Bool(*r.DoorOpen)
	}
	return &out
}

func Uint16(v uint16) *uint16    { return &v }
func Float64(v float64) *float64 { return &v }
func Bool(v bool) *bool          { return &v }
