// Package airquality labels readings. Two independent scales exist: the
// multi-sensor cascade used by the pipeline, and the CO2-only ladder used by
// display and reporting paths. They are not interchangeable.
package airquality

import (
	"fmt"

	"github.com/ghalamif/frostline/internal/domain"
)

// Thresholds holds the alarm levels shared with the spoilage engine and the
// CO2 display ladder breakpoints.
type Thresholds struct {
	// CO2Breakpoints are the upper bounds (exclusive) of excellent, good, fair,
	// moderate and poor. Anything at or above the last one is very_poor.
	CO2Breakpoints     []uint16 `yaml:"co2_breakpoints"`
	AmmoniaSpoilagePPM float64  `yaml:"ammonia_spoilage_ppm"`
	H2SSpoilagePPM     float64  `yaml:"h2s_spoilage_ppm"`
	CO2VentilationPPM  uint16   `yaml:"co2_ventilation_ppm"`
}

var ladder = []domain.AirQuality{
	domain.AirExcellent,
	domain.AirGood,
	domain.AirFair,
	domain.AirModerate,
	domain.AirPoor,
	domain.AirVeryPoor,
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		CO2Breakpoints:     []uint16{400, 600, 800, 1000, 1500},
		AmmoniaSpoilagePPM: 25,
		H2SSpoilagePPM:     10,
		CO2VentilationPPM:  1000,
	}
}

// ApplyDefaults fills zero values from DefaultThresholds.
func (t *Thresholds) ApplyDefaults() {
	def := DefaultThresholds()
	if len(t.CO2Breakpoints) == 0 {
		t.CO2Breakpoints = def.CO2Breakpoints
	}
	if t.AmmoniaSpoilagePPM == 0 {
		t.AmmoniaSpoilagePPM = def.AmmoniaSpoilagePPM
	}
	if t.H2SSpoilagePPM == 0 {
		t.H2SSpoilagePPM = def.H2SSpoilagePPM
	}
	if t.CO2VentilationPPM == 0 {
		t.CO2VentilationPPM = def.CO2VentilationPPM
	}
}

func (t Thresholds) Validate() error {
	if len(t.CO2Breakpoints) != len(ladder)-1 {
		return fmt.Errorf("co2_breakpoints needs %d values, got %d", len(ladder)-1, len(t.CO2Breakpoints))
	}
	for i := 1; i < len(t.CO2Breakpoints); i++ {
		if t.CO2Breakpoints[i] <= t.CO2Breakpoints[i-1] {
			return fmt.Errorf("co2_breakpoints must be strictly ascending: %v", t.CO2Breakpoints)
		}
	}
	if t.AmmoniaSpoilagePPM < 0 || t.H2SSpoilagePPM < 0 {
		return fmt.Errorf("spoilage thresholds must be >= 0")
	}
	return nil
}

// Classify runs the multi-sensor cascade. The first breached alarm wins; with
// no breach the label is good only when all three gas channels reported, and
// moderate when some are missing. Door state does not contribute.
func Classify(r *domain.SensorReading, t Thresholds) domain.AirQuality {
	if r == nil || !r.HasGasData() {
		return domain.AirUnknown
	}
	switch {
	case r.CO2PPM != nil && *r.CO2PPM > t.CO2VentilationPPM:
		return domain.AirPoor
	case r.AmmoniaPPM != nil && *r.AmmoniaPPM > t.AmmoniaSpoilagePPM:
		return domain.AirPoor
	case r.H2SPPM != nil && *r.H2SPPM > t.H2SSpoilagePPM:
		return domain.AirPoor
	}
	if r.CO2PPM != nil && r.AmmoniaPPM != nil && r.H2SPPM != nil {
		return domain.AirGood
	}
	return domain.AirModerate
}

// CO2Label places a CO2 concentration on the display ladder.
func (t Thresholds) CO2Label(ppm *uint16) domain.AirQuality {
	if ppm == nil {
		return domain.AirUnknown
	}
	for i, bp := range t.CO2Breakpoints {
		if i >= len(ladder)-1 {
			break
		}
		if *ppm < bp {
			return ladder[i]
		}
	}
	return domain.AirVeryPoor
}
