package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/frostline/internal/adapters/ads1115"
	"github.com/ghalamif/frostline/internal/adapters/gpio"
	"github.com/ghalamif/frostline/internal/adapters/serial"
	"github.com/ghalamif/frostline/internal/adapters/sink"
	"github.com/ghalamif/frostline/internal/airquality"
	"github.com/ghalamif/frostline/internal/analog"
	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/mhz19"
	"github.com/ghalamif/frostline/internal/ports"
)

const envPrefix = "FROSTLINE_"

type Config struct {
	Policy     ports.Policy          `yaml:"policy"`
	Poller     PollerConfig          `yaml:"poller"`
	CO2        CO2Config             `yaml:"co2"`
	ADC        ADCConfig             `yaml:"adc"`
	Door       DoorConfig            `yaml:"door"`
	Thresholds airquality.Thresholds `yaml:"thresholds"`
	Spoilage   SpoilageConfig        `yaml:"spoilage"`
	Inventory  InventoryConfig       `yaml:"inventory"`
	Database   DatabaseConfig        `yaml:"database"`
	Sinks      SinksConfig           `yaml:"sinks"`
	Metrics    MetricsConfig         `yaml:"metrics"`
	WAL        WALConfig             `yaml:"wal"`
	Log        LogConfig             `yaml:"log"`
}

type PollerConfig struct {
	Interval       time.Duration `yaml:"interval"`
	SubReadTimeout time.Duration `yaml:"sub_read_timeout"`
	// SourceID is stamped on every reading; a random instance id is used when empty.
	SourceID string `yaml:"source_id"`
}

type CO2Config struct {
	Disabled       bool          `yaml:"disabled"`
	Serial         serial.Config `yaml:",inline"`
	Retries        int           `yaml:"retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	Settle         time.Duration `yaml:"settle"`
	ChecksumPolicy string        `yaml:"checksum_policy"`
}

type ADCConfig struct {
	Disabled      bool               `yaml:"disabled"`
	Device        ads1115.Config     `yaml:",inline"`
	Samples       int                `yaml:"samples"`
	SampleSpacing time.Duration      `yaml:"sample_spacing"`
	Channels      []GasChannelConfig `yaml:"channels"`
}

type GasChannelConfig struct {
	Channel     analog.Channel     `yaml:"channel"`
	Input       int                `yaml:"input"`
	Calibration analog.Calibration `yaml:",inline"`
}

type DoorConfig struct {
	Disabled bool        `yaml:"disabled"`
	Line     gpio.Config `yaml:",inline"`
}

type SpoilageConfig struct {
	Categories []domain.Category `yaml:"categories"`
}

type InventoryConfig struct {
	// Backend is "postgres" or "memory". Empty picks postgres when a database
	// URL is configured.
	Backend string                 `yaml:"backend"`
	Items   []domain.InventoryItem `yaml:"items"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	ReadingsTable  string `yaml:"readings_table"`
	InventoryTable string `yaml:"inventory_table"`
}

type SinksConfig struct {
	Postgres PostgresSinkConfig `yaml:"postgres"`
	HTTP     HTTPSinkConfig     `yaml:"http"`
	MQTT     sink.MQTTConfig    `yaml:"mqtt"`
	Kafka    sink.KafkaConfig   `yaml:"kafka"`
}

type PostgresSinkConfig struct {
	Disabled bool `yaml:"disabled"`
}

type HTTPSinkConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type WALConfig struct {
	Dir   string `yaml:"dir"`
	Fsync bool   `yaml:"fsync"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads the YAML file at path (skipped when path is empty), applies
// FROSTLINE_* environment overrides, optionally sourced from a .env file,
// then fills defaults and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load(".env")
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	get := func(key string) string { return strings.TrimSpace(getenv(envPrefix + key)) }

	if v := get("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sPOLL_INTERVAL: %w", envPrefix, err)
		}
		c.Poller.Interval = d
	}
	if v := get("CO2_PORT"); v != "" {
		c.CO2.Serial.Device = v
	}
	if v := get("CO2_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sCO2_RETRIES: %w", envPrefix, err)
		}
		c.CO2.Retries = n
	}
	if v := get("CO2_CHECKSUM_POLICY"); v != "" {
		c.CO2.ChecksumPolicy = v
	}
	if v := get("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := get("DASHBOARD_URL"); v != "" {
		c.Sinks.HTTP.URL = v
	}
	if v := get("MQTT_BROKER"); v != "" {
		c.Sinks.MQTT.Broker = v
	}
	if v := get("KAFKA_BROKERS"); v != "" {
		c.Sinks.Kafka.Brokers = splitList(v)
	}
	if v := get("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := get("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Policy.MaxWALSizeBytes == 0 {
		c.Policy.MaxWALSizeBytes = 256 << 20
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 100
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 250 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "block"
	}
	if c.Policy.OnWALFull == "" {
		c.Policy.OnWALFull = "block"
	}

	if c.Poller.Interval == 0 {
		c.Poller.Interval = 30 * time.Second
	}
	if c.Poller.SubReadTimeout == 0 {
		c.Poller.SubReadTimeout = 5 * time.Second
	}

	c.CO2.Serial.ApplyDefaults()
	if c.CO2.Serial.WarmUp == 0 {
		c.CO2.Serial.WarmUp = 2 * time.Second
	}
	if c.CO2.Retries == 0 {
		c.CO2.Retries = 3
	}
	if c.CO2.RetryDelay == 0 {
		c.CO2.RetryDelay = 200 * time.Millisecond
	}
	if c.CO2.Settle == 0 {
		c.CO2.Settle = 100 * time.Millisecond
	}
	if c.CO2.ChecksumPolicy == "" {
		c.CO2.ChecksumPolicy = string(mhz19.Lenient)
	}

	c.ADC.Device.ApplyDefaults()
	if c.ADC.Samples == 0 {
		c.ADC.Samples = 5
	}
	if c.ADC.SampleSpacing == 0 {
		c.ADC.SampleSpacing = 500 * time.Millisecond
	}
	if len(c.ADC.Channels) == 0 {
		def := analog.DefaultTable()
		c.ADC.Channels = []GasChannelConfig{
			{Channel: analog.Ammonia, Input: 0, Calibration: def[analog.Ammonia]},
			{Channel: analog.H2S, Input: 1, Calibration: def[analog.H2S]},
		}
	}

	c.Door.Line.ApplyDefaults()

	c.Thresholds.ApplyDefaults()

	if c.Database.ReadingsTable == "" {
		c.Database.ReadingsTable = "sensor_readings"
	}
	if c.Database.InventoryTable == "" {
		c.Database.InventoryTable = "inventory_items"
	}
	if c.Inventory.Backend == "" {
		c.Inventory.Backend = "memory"
		if c.Database.URL != "" {
			c.Inventory.Backend = "postgres"
		}
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = "./data/wal"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	var errs []error

	switch c.Policy.OnWALFull {
	case "block", "drop":
	default:
		errs = append(errs, fmt.Errorf("policy.on_wal_full must be block or drop, got %q", c.Policy.OnWALFull))
	}
	switch c.Policy.OnQueueFull {
	case "block", "drop", "reject":
	default:
		errs = append(errs, fmt.Errorf("policy.on_queue_full must be block, drop or reject, got %q", c.Policy.OnQueueFull))
	}
	if c.Poller.Interval < 0 || c.Poller.SubReadTimeout < 0 {
		errs = append(errs, errors.New("poller durations must be positive"))
	}
	if c.CO2.Retries < 1 {
		errs = append(errs, fmt.Errorf("co2.retries must be >= 1, got %d", c.CO2.Retries))
	}
	if _, err := mhz19.ParseChecksumPolicy(c.CO2.ChecksumPolicy); err != nil {
		errs = append(errs, fmt.Errorf("co2.checksum_policy: %w", err))
	}

	seen := make(map[analog.Channel]bool)
	for _, ch := range c.ADC.Channels {
		if ch.Channel != analog.Ammonia && ch.Channel != analog.H2S {
			errs = append(errs, fmt.Errorf("adc.channels: unknown channel %q", ch.Channel))
		}
		if seen[ch.Channel] {
			errs = append(errs, fmt.Errorf("adc.channels: %s configured twice", ch.Channel))
		}
		seen[ch.Channel] = true
		if ch.Input < 0 || ch.Input > 3 {
			errs = append(errs, fmt.Errorf("adc.channels: %s input %d out of range", ch.Channel, ch.Input))
		}
		if ch.Calibration.PPMPerVolt < 0 {
			errs = append(errs, fmt.Errorf("adc.channels: %s ppm_per_volt must be >= 0", ch.Channel))
		}
	}
	if !c.Door.Disabled {
		if err := c.Door.Line.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("thresholds: %w", err))
	}

	switch c.Inventory.Backend {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("inventory.backend postgres requires database.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("inventory.backend must be memory or postgres, got %q", c.Inventory.Backend))
	}

	if c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required"))
	}
	if c.WAL.Dir == "" {
		errs = append(errs, errors.New("wal.dir is required"))
	}
	return errors.Join(errs...)
}

// CalibrationTable builds the analog table from the configured channels.
func (c *Config) CalibrationTable() analog.Table {
	t := make(analog.Table, len(c.ADC.Channels))
	for _, ch := range c.ADC.Channels {
		t[ch.Channel] = ch.Calibration
	}
	return t
}

// ChecksumPolicy returns the parsed policy; validate has already checked it.
func (c *Config) ChecksumPolicy() mhz19.ChecksumPolicy {
	p, _ := mhz19.ParseChecksumPolicy(c.CO2.ChecksumPolicy)
	return p
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
