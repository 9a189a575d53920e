package frostline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/frostline/internal/adapters/sink"
	"github.com/ghalamif/frostline/internal/domain"
)

var errCollectorAndHardware = errors.New("frostline: flow sets both a collector and poller hardware")

// Flow builds an EdgeRuntime in three steps: Conf loads the configuration,
// StreamIN chooses where readings come from, StreamOUT chooses where readings
// and assessments go.
type Flow struct {
	cfg   *Config
	in    flowSource
	out   flowTarget
	extra []EdgeRuntimeOption
}

type flowSource struct {
	collector Collector
	hardware  *Hardware
	queue     ReadingQueue
	wal       WAL
	obs       Observability
	interval  time.Duration
}

type flowTarget struct {
	sinks       []Sink
	inventory   InventoryStore
	assessments []func(Assessment)
	obs         Observability
	categories  []domain.Category
}

// FlowOption adjusts a Flow right after its configuration is loaded.
type FlowOption func(*Flow)

// StreamInOption selects the reading source side: poller hardware or a
// replacement collector, and the WAL and queue readings pass through.
type StreamInOption func(*flowSource)

// StreamOutOption selects the delivery side: sinks, inventory and assessment
// consumers.
type StreamOutOption func(*flowTarget)

func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the loaded configuration. Per-flow overrides such as
// StreamInPollEvery are applied to a copy at StreamOUT and do not show here.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw EdgeRuntimeOption values. They are applied after the
// StreamIN and StreamOUT choices and win over them.
func (f *Flow) Options(opts ...EdgeRuntimeOption) *Flow {
	if f != nil {
		f.extra = append(f.extra, opts...)
	}
	return f
}

func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&f.in)
		}
	}
	return f
}

// StreamOUT applies the delivery options and builds the runtime.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*EdgeRuntime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&f.out)
		}
	}
	cfg, runtimeOpts, err := f.resolve()
	if err != nil {
		return nil, err
	}
	return NewEdgeRuntime(cfg, runtimeOpts...)
}

// Run builds the runtime with StreamOUT and blocks until ctx is done.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

func (f *Flow) resolve() (*Config, []EdgeRuntimeOption, error) {
	if f.in.collector != nil && f.in.hardware != nil {
		return nil, nil, errCollectorAndHardware
	}

	cfg := f.cfg
	if f.in.interval > 0 || len(f.out.categories) > 0 {
		c := *f.cfg
		if f.in.interval > 0 {
			c.Poller.Interval = f.in.interval
		}
		if len(f.out.categories) > 0 {
			c.Spoilage.Categories = f.out.categories
		}
		cfg = &c
	}

	var opts []EdgeRuntimeOption
	add := func(ok bool, opt EdgeRuntimeOption) {
		if ok {
			opts = append(opts, opt)
		}
	}
	add(f.in.collector != nil, WithCollector(f.in.collector))
	if f.in.hardware != nil {
		opts = append(opts, WithHardware(*f.in.hardware))
	}
	add(f.in.wal != nil, WithWAL(f.in.wal))
	add(f.in.queue != nil, WithReadingQueue(f.in.queue))

	// The delivery side's observability wins when both sides set one.
	obs := f.in.obs
	if f.out.obs != nil {
		obs = f.out.obs
	}
	add(obs != nil, WithObservability(obs))

	switch len(f.out.sinks) {
	case 0:
	case 1:
		opts = append(opts, WithSink(f.out.sinks[0]))
	default:
		opts = append(opts, WithSink(sink.NewMultiSink(f.out.sinks...)))
	}
	add(f.out.inventory != nil, WithInventory(f.out.inventory))

	if handlers := f.out.assessments; len(handlers) > 0 {
		opts = append(opts, WithAssessmentHandler(func(a Assessment) {
			for _, h := range handlers {
				h(a)
			}
		}))
	}

	return cfg, append(opts, f.extra...), nil
}

// WithFlowOptions appends EdgeRuntimeOption values during Conf.
func WithFlowOptions(opts ...EdgeRuntimeOption) FlowOption {
	return func(f *Flow) {
		f.extra = append(f.extra, opts...)
	}
}

// StreamInCollector replaces the telemetry poller, e.g. with a simulator.
// No hardware is opened.
func StreamInCollector(col Collector) StreamInOption {
	return func(s *flowSource) {
		if col != nil {
			s.collector = col
		}
	}
}

// StreamInHardware hands the poller already-opened sensor handles.
func StreamInHardware(hw Hardware) StreamInOption {
	return func(s *flowSource) {
		s.hardware = &hw
	}
}

// StreamInPollEvery overrides the configured poll interval for this flow.
func StreamInPollEvery(d time.Duration) StreamInOption {
	return func(s *flowSource) {
		if d > 0 {
			s.interval = d
		}
	}
}

func StreamInQueue(q ReadingQueue) StreamInOption {
	return func(s *flowSource) {
		if q != nil {
			s.queue = q
		}
	}
}

func StreamInWAL(w WAL) StreamInOption {
	return func(s *flowSource) {
		if w != nil {
			s.wal = w
		}
	}
}

func StreamInObservability(obs Observability) StreamInOption {
	return func(s *flowSource) {
		if obs != nil {
			s.obs = obs
		}
	}
}

// StreamOutSink adds a delivery target in place of the configured sinks.
// Repeating it fans every batch out to all of them.
func StreamOutSink(s Sink) StreamOutOption {
	return func(t *flowTarget) {
		if s != nil {
			t.sinks = append(t.sinks, s)
		}
	}
}

// StreamOutCallback adds a sink built from a plain function.
func StreamOutCallback(name string, fn ReadingBatchSink) StreamOutOption {
	return StreamOutSink(NewCallbackSink(name, fn))
}

// StreamOutInventory points the spoilage engine at a caller-provided store.
func StreamOutInventory(inv InventoryStore) StreamOutOption {
	return func(t *flowTarget) {
		if inv != nil {
			t.inventory = inv
		}
	}
}

// StreamOutAssessments adds a consumer of spoilage assessments; consumers
// run in the order they were added.
func StreamOutAssessments(fn func(Assessment)) StreamOutOption {
	return func(t *flowTarget) {
		if fn != nil {
			t.assessments = append(t.assessments, fn)
		}
	}
}

// StreamOutCategories limits gas-triggered spoilage to the given item
// categories for this flow.
func StreamOutCategories(categories ...string) StreamOutOption {
	return func(t *flowTarget) {
		for _, c := range categories {
			if n := domain.Category(c).Normalize(); n != "" {
				t.categories = append(t.categories, n)
			}
		}
	}
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return func(t *flowTarget) {
		if obs != nil {
			t.obs = obs
		}
	}
}
