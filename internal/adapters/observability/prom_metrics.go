package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/frostline/internal/ports"
)

// PromObs implements ports.Observability: logs go to slog, counters, gauges
// and histograms to Prometheus. Unknown metric names are ignored.
type PromObs struct {
	log      *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the frostline metrics on reg, or on the default
// registerer when reg is nil.
func NewPromObs(logger *slog.Logger, reg prometheus.Registerer) *PromObs {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	counters := map[string]prometheus.Counter{
		"frostline_readings_ingested_total":      counter("frostline_readings_ingested_total", "Readings successfully written to the sinks."),
		"frostline_queue_dropped_total":          counter("frostline_queue_dropped_total", "Readings lost to queue or WAL backpressure policies."),
		"frostline_co2_retries_total":            counter("frostline_co2_retries_total", "CO2 read attempts beyond the first in a cycle."),
		"frostline_co2_checksum_anomalies_total": counter("frostline_co2_checksum_anomalies_total", "CO2 frames accepted despite a checksum mismatch."),
		"frostline_channel_absent_total":         counter("frostline_channel_absent_total", "Sensor channels that produced no value in a cycle."),
		"frostline_items_spoiled_total":          counter("frostline_items_spoiled_total", "Inventory items flagged spoiled."),
		"frostline_warnings_total":               counter("frostline_warnings_total", "Spoilage warnings emitted."),
	}
	gauges := map[string]prometheus.Gauge{
		"frostline_queue_length":   gauge("frostline_queue_length", "Readings buffered in the in-memory queue."),
		"frostline_wal_size_bytes": gauge("frostline_wal_size_bytes", "Size of the WAL on disk."),
		"frostline_co2_ppm":        gauge("frostline_co2_ppm", "Last CO2 concentration."),
		"frostline_ammonia_ppm":    gauge("frostline_ammonia_ppm", "Last ammonia estimate."),
		"frostline_h2s_ppm":        gauge("frostline_h2s_ppm", "Last hydrogen sulfide estimate."),
		"frostline_door_open":      gauge("frostline_door_open", "1 when the door was last seen open."),
	}
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "frostline_sink_latency_seconds",
		Help:    "Time to write one batch to the sinks.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	for _, c := range counters {
		reg.MustRegister(c)
	}
	for _, g := range gauges {
		reg.MustRegister(g)
	}
	reg.MustRegister(latency)

	return &PromObs{
		log:      logger,
		counters: counters,
		gauges:   gauges,
		histos: map[string]prometheus.Observer{
			"frostline_sink_latency_seconds": latency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, attrs(nil, fields)...)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.log.Warn(msg, attrs(nil, fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, attrs(err, fields)...)
}

// LogCritical logs at error level with critical=true; the process keeps going.
func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(attrs(err, fields), slog.Bool("critical", true))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func attrs(err error, fields []ports.Field) []any {
	out := make([]any, 0, len(fields)+1)
	if err != nil {
		out = append(out, slog.String("err", err.Error()))
	}
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
