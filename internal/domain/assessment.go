package domain

import "time"

// SpoilReason names the rule that moved an item to spoiled.
type SpoilReason string

const (
	ReasonAmmonia SpoilReason = "ammonia"
	ReasonH2S     SpoilReason = "h2s"
	ReasonExpired SpoilReason = "expired"
)

// ItemVerdict lists every rule that fired for one item in a cycle.
type ItemVerdict struct {
	ItemID  ItemID        `json:"item_id"`
	Name    string        `json:"name"`
	Reasons []SpoilReason `json:"reasons"`
}

// Assessment is the outcome of one spoilage evaluation.
type Assessment struct {
	ReadingSeq uint64        `json:"reading_seq"`
	AssessedAt time.Time     `json:"assessed_at"`
	SpoiledIDs []ItemID      `json:"spoiled_ids"`
	Verdicts   []ItemVerdict `json:"verdicts"`
	Warnings   []string      `json:"warnings"`
	AirQuality AirQuality    `json:"air_quality"`
	DoorOpen   *bool         `json:"door_open"`
	CO2PPM     *uint16       `json:"co2_level"`
	AmmoniaPPM *float64      `json:"ammonia_level"`
	H2SPPM     *float64      `json:"h2s_level"`
}
