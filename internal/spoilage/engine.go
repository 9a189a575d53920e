// Package spoilage decides which inventory items have spoiled given the latest
// reading, and which warnings the reading raises.
package spoilage

import (
	"fmt"
	"time"

	"github.com/ghalamif/frostline/internal/airquality"
	"github.com/ghalamif/frostline/internal/domain"
)

// DefaultCategories are the perishables that react to ammonia and H2S.
func DefaultCategories() []domain.Category {
	return []domain.Category{domain.CategoryMeat, domain.CategoryDairy, domain.CategorySeafood}
}

// Engine is pure apart from flipping IsSpoiled on the items it is given.
type Engine struct {
	thresholds airquality.Thresholds
	gasSens    map[domain.Category]struct{}
	now        func() time.Time
}

func NewEngine(th airquality.Thresholds, categories []domain.Category) *Engine {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	set := make(map[domain.Category]struct{}, len(categories))
	for _, c := range categories {
		set[c.Normalize()] = struct{}{}
	}
	return &Engine{thresholds: th, gasSens: set, now: time.Now}
}

// Assess evaluates every fresh item against the reading. Items already spoiled
// are skipped entirely. Matching items get IsSpoiled set to true; the flag is
// never cleared. Expiry is judged against the reading's timestamp, or the
// current time for a nil or unstamped reading.
func (e *Engine) Assess(r *domain.SensorReading, items []*domain.InventoryItem) domain.Assessment {
	ref := e.now()
	var out domain.Assessment
	if r != nil {
		if !r.Timestamp.IsZero() {
			ref = r.Timestamp
		}
		out = domain.Assessment{
			ReadingSeq: r.Seq,
			AirQuality: r.AirQuality,
			DoorOpen:   r.DoorOpen,
			CO2PPM:     r.CO2PPM,
			AmmoniaPPM: r.AmmoniaPPM,
			H2SPPM:     r.H2SPPM,
		}
	} else {
		out.AirQuality = domain.AirUnknown
	}
	out.AssessedAt = ref

	ammoniaHigh := r != nil && r.AmmoniaPPM != nil && *r.AmmoniaPPM > e.thresholds.AmmoniaSpoilagePPM
	h2sHigh := r != nil && r.H2SPPM != nil && *r.H2SPPM > e.thresholds.H2SSpoilagePPM

	seen := make(map[domain.ItemID]struct{})
	for _, item := range items {
		if item == nil || item.IsSpoiled {
			continue
		}
		var reasons []domain.SpoilReason
		if _, ok := e.gasSens[item.Category.Normalize()]; ok {
			if ammoniaHigh {
				reasons = append(reasons, domain.ReasonAmmonia)
			}
			if h2sHigh {
				reasons = append(reasons, domain.ReasonH2S)
			}
		}
		if item.ExpiryAt != nil && daysSince(*item.ExpiryAt, ref) > 0 {
			reasons = append(reasons, domain.ReasonExpired)
		}
		if len(reasons) == 0 {
			continue
		}

		item.IsSpoiled = true
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		out.SpoiledIDs = append(out.SpoiledIDs, item.ID)
		out.Verdicts = append(out.Verdicts, domain.ItemVerdict{ItemID: item.ID, Name: item.Name, Reasons: reasons})
	}

	out.Warnings = e.warnings(r, ammoniaHigh, h2sHigh)
	return out
}

func (e *Engine) warnings(r *domain.SensorReading, ammoniaHigh, h2sHigh bool) []string {
	if r == nil {
		return nil
	}
	var w []string
	if ammoniaHigh {
		w = append(w, fmt.Sprintf("High ammonia detected: %.2f PPM", *r.AmmoniaPPM))
	}
	if h2sHigh {
		w = append(w, fmt.Sprintf("High H2S detected: %.2f PPM", *r.H2SPPM))
	}
	if r.AirQuality == domain.AirPoor {
		w = append(w, "Poor air quality detected")
	}
	if r.CO2PPM != nil && *r.CO2PPM > e.thresholds.CO2VentilationPPM {
		w = append(w, fmt.Sprintf("High CO2 detected: %d PPM", *r.CO2PPM))
	}
	if r.DoorOpen != nil && *r.DoorOpen {
		w = append(w, "Door is open")
	}
	return w
}

// daysSince counts calendar days from expiry to ref in ref's location, so an
// item expiring at 23:59 yesterday is one day old at 00:00 today while an item
// expiring earlier today is zero days old.
func daysSince(expiry, ref time.Time) int {
	ey, em, ed := expiry.In(ref.Location()).Date()
	ry, rm, rd := ref.Date()
	e := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	r := time.Date(ry, rm, rd, 0, 0, 0, 0, time.UTC)
	return int(r.Sub(e).Hours() / 24)
}
