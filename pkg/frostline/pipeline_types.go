package frostline

import (
	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/poller"
	"github.com/ghalamif/frostline/internal/ports"
)

// Reading is one poll cycle's telemetry. Nil channel fields were absent.
type Reading = domain.SensorReading

// Assessment is the spoilage outcome for one reading.
type Assessment = domain.Assessment

// InventoryItem is an item as the inventory store reports it.
type InventoryItem = domain.InventoryItem

// AirQuality is the categorical label attached to each reading.
type AirQuality = domain.AirQuality

// QueuedReading represents an item buffered inside the bounded queue.
type QueuedReading = ports.QueuedReading

// Collector streams readings into the pipeline. The telemetry poller is the
// default; simulators and replay tools can stand in for it.
type Collector = ports.Collector

// ReadingQueue is the bounded, in-memory queue that decouples the collector and sink.
type ReadingQueue = ports.ReadingQueue

// Sink consumes batches of readings in poll order.
type Sink = ports.Sink

// InventoryStore lists fresh items and flags spoiled ones.
type InventoryStore = ports.InventoryStore

// Observability emits metrics and structured logs.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// WAL abstracts the write-ahead log used for durability and crash recovery.
type WAL = ports.WAL

// WALStats exposes WAL metadata for observability.
type WALStats = ports.WALStats

// WALEntryID uniquely identifies a WAL entry.
type WALEntryID = ports.WALEntryID

// Hardware is the set of sensor handles the poller owns.
type Hardware = poller.Hardware

// Poller is the telemetry poller.
type Poller = poller.Poller

// PollerStats counts cycles and CO2 outcomes.
type PollerStats = poller.Stats
