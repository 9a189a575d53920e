package frostline

import (
	"time"

	base "github.com/ghalamif/frostline/pkg/frostline"
)

// Re-exported errors for convenience.
var (
	ErrQueueFull         = base.ErrQueueFull
	ErrWALFull           = base.ErrWALFull
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/ghalamif/frostline directly.
type (
	Config            = base.Config
	Policy            = base.Policy
	Thresholds        = base.Thresholds
	PollerConfig      = base.PollerConfig
	CO2Config         = base.CO2Config
	ADCConfig         = base.ADCConfig
	DoorConfig        = base.DoorConfig
	InventoryConfig   = base.InventoryConfig
	DatabaseConfig    = base.DatabaseConfig
	SinksConfig       = base.SinksConfig
	MQTTConfig        = base.MQTTConfig
	KafkaConfig       = base.KafkaConfig
	MetricsConfig     = base.MetricsConfig
	WALConfig         = base.WALConfig
	LogConfig         = base.LogConfig
	Flow              = base.Flow
	FlowOption        = base.FlowOption
	StreamInOption    = base.StreamInOption
	StreamOutOption   = base.StreamOutOption
	EdgeRuntime       = base.EdgeRuntime
	EdgeRuntimeOption = base.EdgeRuntimeOption
	Reading           = base.Reading
	Assessment        = base.Assessment
	InventoryItem     = base.InventoryItem
	AirQuality        = base.AirQuality
	ReadingBatchSink  = base.ReadingBatchSink
	Collector         = base.Collector
	Sink              = base.Sink
	InventoryStore    = base.InventoryStore
	ReadingQueue      = base.ReadingQueue
	WAL               = base.WAL
	Observability     = base.Observability
	Field             = base.Field
	QueuedReading     = base.QueuedReading
	WALEntryID        = base.WALEntryID
	WALStats          = base.WALStats
	Hardware          = base.Hardware
	Poller            = base.Poller
	PollerStats       = base.PollerStats
	Publisher         = base.Publisher
	PublisherConfig   = base.PublisherConfig
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...EdgeRuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInCollector(col Collector) StreamInOption {
	return base.StreamInCollector(col)
}

func StreamInHardware(hw Hardware) StreamInOption {
	return base.StreamInHardware(hw)
}

func StreamInPollEvery(d time.Duration) StreamInOption {
	return base.StreamInPollEvery(d)
}

func StreamInQueue(q ReadingQueue) StreamInOption {
	return base.StreamInQueue(q)
}

func StreamInWAL(w WAL) StreamInOption {
	return base.StreamInWAL(w)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutInventory(inv InventoryStore) StreamOutOption {
	return base.StreamOutInventory(inv)
}

func StreamOutAssessments(fn func(Assessment)) StreamOutOption {
	return base.StreamOutAssessments(fn)
}

func StreamOutCategories(categories ...string) StreamOutOption {
	return base.StreamOutCategories(categories...)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn ReadingBatchSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Edge runtime and options.
func NewEdgeRuntime(cfg *Config, opts ...EdgeRuntimeOption) (*EdgeRuntime, error) {
	return base.NewEdgeRuntime(cfg, opts...)
}

func WithCollector(col Collector) EdgeRuntimeOption {
	return base.WithCollector(col)
}

func WithHardware(hw Hardware) EdgeRuntimeOption {
	return base.WithHardware(hw)
}

func WithSink(s Sink) EdgeRuntimeOption {
	return base.WithSink(s)
}

func WithWAL(w WAL) EdgeRuntimeOption {
	return base.WithWAL(w)
}

func WithReadingQueue(q ReadingQueue) EdgeRuntimeOption {
	return base.WithReadingQueue(q)
}

func WithObservability(obs Observability) EdgeRuntimeOption {
	return base.WithObservability(obs)
}

func WithInventory(inv InventoryStore) EdgeRuntimeOption {
	return base.WithInventory(inv)
}

func WithAssessmentHandler(fn func(Assessment)) EdgeRuntimeOption {
	return base.WithAssessmentHandler(fn)
}

// Sink adapters.
func NewCallbackSink(name string, fn ReadingBatchSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []Reading, func()) {
	return base.NewChannelSink(name, buffer)
}

// External publisher.
func NewPublisher(cfg *PublisherConfig, sink Sink) (*Publisher, error) {
	return base.NewPublisher(cfg, sink)
}
