package frostline

import (
	"database/sql"
	"fmt"
	"io"

	_ "github.com/lib/pq"

	"github.com/ghalamif/frostline/internal/adapters/inventory"
	"github.com/ghalamif/frostline/internal/adapters/sink"
	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
)

// OpenDatabase returns nil when no database is configured.
func OpenDatabase(cfg *Config) (*sql.DB, error) {
	if cfg.Database.URL == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// BuildSinks assembles every configured sink. With more than one the batch
// fans out through a MultiSink; with none, readings are only logged. The
// returned closer releases broker connections.
func BuildSinks(cfg *Config, db *sql.DB, obs Observability) (Sink, io.Closer, error) {
	var sinks []ports.Sink

	if db != nil && !cfg.Sinks.Postgres.Disabled {
		sinks = append(sinks, sink.NewPostgresSink(db, cfg.Database.ReadingsTable))
	}
	if cfg.Sinks.HTTP.URL != "" {
		sinks = append(sinks, sink.NewHTTPSink(cfg.Sinks.HTTP.URL, cfg.Sinks.HTTP.Timeout))
	}
	if cfg.Sinks.MQTT.Broker != "" {
		m, err := sink.DialMQTT(cfg.Sinks.MQTT)
		if err != nil {
			closeAll(sinks)
			return nil, nil, err
		}
		sinks = append(sinks, m)
	}
	if len(cfg.Sinks.Kafka.Brokers) > 0 {
		sinks = append(sinks, sink.NewKafkaSink(cfg.Sinks.Kafka))
	}

	switch len(sinks) {
	case 0:
		obs.LogWarn("no_sink_configured")
		return &logSink{obs: obs}, closerList(nil), nil
	case 1:
		if c, ok := sinks[0].(io.Closer); ok {
			return sinks[0], c, nil
		}
		return sinks[0], closerList(nil), nil
	default:
		m := sink.NewMultiSink(sinks...)
		return m, m, nil
	}
}

// BuildInventory picks the inventory store named by inventory.backend. The
// memory store is seeded from inventory.items.
func BuildInventory(cfg *Config, db *sql.DB) (InventoryStore, error) {
	switch cfg.Inventory.Backend {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("inventory backend postgres requires database.url")
		}
		return inventory.NewPostgresStore(db, cfg.Database.InventoryTable), nil
	case "memory", "":
		return inventory.NewMemoryStore(cfg.Inventory.Items...), nil
	default:
		return nil, fmt.Errorf("unknown inventory backend %q", cfg.Inventory.Backend)
	}
}

func closeAll(sinks []ports.Sink) {
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

// logSink records readings in the log when no real sink is configured.
type logSink struct {
	obs Observability
}

func (l *logSink) Name() string { return "log" }

func (l *logSink) WriteBatch(readings []*domain.SensorReading) error {
	for _, r := range readings {
		l.obs.LogInfo("reading",
			ports.Field{Key: "seq", Value: r.Seq},
			ports.Field{Key: "co2_ppm", Value: optional(r.CO2PPM)},
			ports.Field{Key: "ammonia_ppm", Value: optional(r.AmmoniaPPM)},
			ports.Field{Key: "h2s_ppm", Value: optional(r.H2SPPM)},
			ports.Field{Key: "door_open", Value: optional(r.DoorOpen)},
			ports.Field{Key: "air_quality", Value: r.AirQuality},
		)
	}
	return nil
}

func optional[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
