package frostline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/frostline/internal/adapters/observability"
	"github.com/ghalamif/frostline/internal/adapters/queue"
	"github.com/ghalamif/frostline/internal/adapters/wal"
	"github.com/ghalamif/frostline/internal/airquality"
	"github.com/ghalamif/frostline/internal/app/pipeline"
	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/spoilage"
)

var (
	// ErrQueueFull indicates the in-memory queue rejected the reading according to policy.
	ErrQueueFull = pipeline.ErrQueueFull
	// ErrWALFull indicates the WAL is at capacity and OnWALFull != "block".
	ErrWALFull = pipeline.ErrWALFull
)

// PublisherConfig configures the WAL-backed publisher used by callers that
// produce readings themselves, for example a second freezer forwarding over
// the network or a bench simulator.
type PublisherConfig struct {
	Policy Policy
	WAL    WALConfig
	// Inventory enables spoilage assessment of published readings.
	Inventory  InventoryStore
	Thresholds Thresholds
	Categories []domain.Category
	// OnAssessment receives each assessment when Inventory is set.
	OnAssessment func(Assessment)
	// Obs defaults to logging through slog on stderr with unregistered metrics.
	Obs Observability
}

// applyDefaults fills in sane thresholds so callers only override what they need.
func (c *PublisherConfig) applyDefaults() {
	if c.Policy.MaxWALSizeBytes == 0 {
		c.Policy.MaxWALSizeBytes = 64 << 20
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 1_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 100
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 5 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "block"
	}
	if c.Policy.OnWALFull == "" {
		c.Policy.OnWALFull = "block"
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = "./data/frostline-publisher-wal"
	}
	c.Thresholds.ApplyDefaults()
}

func (c *PublisherConfig) validate() error {
	if c.WAL.Dir == "" {
		return fmt.Errorf("wal.dir is required")
	}
	if c.Policy.MaxQueueLen <= 0 {
		return fmt.Errorf("policy.max_queue_len must be > 0")
	}
	if c.Policy.MaxBatchSize <= 0 {
		return fmt.Errorf("policy.max_batch_size must be > 0")
	}
	return c.Thresholds.Validate()
}

// Publisher exposes the WAL → queue → sink pipeline to external producers.
type Publisher struct {
	policy     Policy
	thresholds Thresholds
	wal        WAL
	queue      ReadingQueue
	obs        Observability

	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewPublisher wires a WAL, a bounded queue and a sink so callers can push
// readings while reusing the durability and backpressure policies.
// Uncommitted readings from an earlier run are delivered first.
func NewPublisher(cfg *PublisherConfig, sink Sink) (*Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	obs := cfg.Obs
	if obs == nil {
		logger, err := observability.NewLogger(os.Stderr, "info")
		if err != nil {
			return nil, err
		}
		obs = observability.NewPromObs(logger, prometheus.NewRegistry())
	}

	walAdapter, err := wal.NewFileWAL(cfg.WAL.Dir)
	if err != nil {
		return nil, err
	}
	q := queue.NewMemQueue(cfg.Policy.MaxQueueLen)

	ctx, cancel := context.WithCancel(context.Background())
	pub := &Publisher{
		policy:     cfg.Policy,
		thresholds: cfg.Thresholds,
		wal:        walAdapter,
		queue:      q,
		obs:        obs,
		cancel:     cancel,
		doneCh:     make(chan struct{}),
	}

	in := pipeline.Ingest{
		WAL:          walAdapter,
		Queue:        q,
		Sink:         sink,
		Policy:       cfg.Policy,
		Obs:          obs,
		OnAssessment: cfg.OnAssessment,
	}
	if cfg.Inventory != nil {
		in.Inventory = cfg.Inventory
		in.Engine = spoilage.NewEngine(cfg.Thresholds, cfg.Categories)
	}
	go func() {
		defer close(pub.doneCh)
		pipeline.RunIngestPipeline(ctx, in)
	}()

	if err := replayWALIntoQueue(ctx, walAdapter, q, cfg.Policy, obs); err != nil {
		cancel()
		<-pub.doneCh
		_ = walAdapter.Close()
		return nil, err
	}
	return pub, nil
}

// Publish appends the reading to the WAL and enqueues it according to policy.
// A blocking policy waits until ctx is done. The air quality label is always
// derived from the channel values; a label set by the caller is replaced.
func (p *Publisher) Publish(ctx context.Context, r *Reading) error {
	if r == nil {
		return fmt.Errorf("reading is required")
	}
	r = r.Clone()
	r.AirQuality = airquality.Classify(r, p.thresholds)
	return pipeline.Admit(ctx, p.wal, p.queue, r, p.policy, p.obs)
}

// Close waits until every published reading has been delivered and committed,
// or ctx is done, then stops the ingest loop and closes the WAL. Readings not
// delivered by then stay in the WAL for the next publisher on the same dir.
func (p *Publisher) Close(ctx context.Context) error {
	idle := p.policy.IdleSleep
	for !p.drained() {
		select {
		case <-ctx.Done():
			p.cancel()
			<-p.doneCh
			_ = p.wal.Close()
			return ctx.Err()
		case <-time.After(idle):
		}
	}
	p.cancel()
	<-p.doneCh
	return p.wal.Close()
}

func (p *Publisher) drained() bool {
	st := p.wal.Stats()
	return p.queue.Len() == 0 && st.OldestUncommitted > st.LatestAppended
}
