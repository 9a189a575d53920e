package ports

import "github.com/ghalamif/frostline/internal/domain"

type QueuedReading struct {
	ID      WALEntryID
	Reading *domain.SensorReading
}

type ReadingQueue interface {
	Enqueue(id WALEntryID, r *domain.SensorReading) bool
	DequeueBatch(max int) []QueuedReading
	Len() int
}
