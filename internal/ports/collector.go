package ports

import "github.com/ghalamif/frostline/internal/domain"

// Collector produces readings into out until Stop is called.
type Collector interface {
	Start(out chan<- *domain.SensorReading) error
	Stop() error
}
