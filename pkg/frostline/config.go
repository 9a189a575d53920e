package frostline

import (
	"github.com/ghalamif/frostline/internal/adapters/sink"
	"github.com/ghalamif/frostline/internal/airquality"
	"github.com/ghalamif/frostline/internal/app/config"
	"github.com/ghalamif/frostline/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls WAL/queue thresholds.
	Policy = ports.Policy
	// Thresholds holds the alarm levels and the CO2 display ladder.
	Thresholds = airquality.Thresholds
	// PollerConfig sets the cycle interval and sub-read timeout.
	PollerConfig = config.PollerConfig
	CO2Config    = config.CO2Config
	ADCConfig    = config.ADCConfig
	DoorConfig   = config.DoorConfig
	// InventoryConfig selects the inventory store.
	InventoryConfig = config.InventoryConfig
	DatabaseConfig  = config.DatabaseConfig
	// SinksConfig enables the telemetry sinks; several may be active at once.
	SinksConfig = config.SinksConfig
	MQTTConfig  = sink.MQTTConfig
	KafkaConfig = sink.KafkaConfig
	// MetricsConfig configures the status HTTP server.
	MetricsConfig = config.MetricsConfig
	// WALConfig configures on-disk durability.
	WALConfig = config.WALConfig
	LogConfig = config.LogConfig
)

// LoadConfig loads YAML from disk using the internal config reader. An empty
// path starts from defaults and environment overrides only.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
