package ports

import "github.com/ghalamif/frostline/internal/domain"

// Sink is the telemetry sink: it accepts batches of readings in poll order.
type Sink interface {
	WriteBatch(readings []*domain.SensorReading) error
	Name() string
}
