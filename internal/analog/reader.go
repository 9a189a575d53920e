// Package analog converts averaged ADC voltages from MQ-series gas sensors into
// concentration estimates. The coefficients are uncalibrated approximations
// kept as configuration.
package analog

import (
	"fmt"

	"github.com/ghalamif/frostline/internal/ports"
)

// Channel identifies a gas sensor wired to the ADC.
type Channel string

const (
	Ammonia Channel = "ammonia"
	H2S     Channel = "h2s"
)

// Calibration maps a voltage onto ppm: zero below VoltageFloor, linear above.
type Calibration struct {
	VoltageFloor float64 `yaml:"voltage_floor"`
	PPMPerVolt   float64 `yaml:"ppm_per_volt"`
}

// Table holds one Calibration per channel.
type Table map[Channel]Calibration

// DefaultTable mirrors the field scripts: MQ137 ammonia and MQ136 H2S with a
// 0.1 V floor.
func DefaultTable() Table {
	return Table{
		Ammonia: {VoltageFloor: 0.1, PPMPerVolt: 1000},
		H2S:     {VoltageFloor: 0.1, PPMPerVolt: 2000},
	}
}

// Reader is the AnalogGasReader.
type Reader struct {
	table Table
}

func NewReader(table Table) (*Reader, error) {
	for ch, cal := range table {
		if cal.PPMPerVolt < 0 {
			return nil, fmt.Errorf("analog: channel %s: ppm_per_volt must be >= 0", ch)
		}
	}
	return &Reader{table: table}, nil
}

// Read converts the sample's voltage. Unknown channels and non-finite voltages
// read as zero; the result is never negative.
func (r *Reader) Read(ch Channel, s ports.AnalogSample) float64 {
	cal, ok := r.table[ch]
	if !ok {
		return 0
	}
	return Convert(cal, s.Voltage)
}

// Convert applies a calibration to a voltage.
func Convert(cal Calibration, voltage float64) float64 {
	if !(voltage >= cal.VoltageFloor) {
		return 0
	}
	ppm := (voltage - cal.VoltageFloor) * cal.PPMPerVolt
	if !(ppm > 0) {
		return 0
	}
	return ppm
}

// Average returns the mean raw code and voltage of the samples.
func Average(samples []ports.AnalogSample) ports.AnalogSample {
	if len(samples) == 0 {
		return ports.AnalogSample{}
	}
	var out ports.AnalogSample
	for _, s := range samples {
		out.Raw += s.Raw
		out.Voltage += s.Voltage
	}
	n := float64(len(samples))
	out.Raw /= n
	out.Voltage /= n
	return out
}
