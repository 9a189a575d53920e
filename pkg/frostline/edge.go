package frostline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ghalamif/frostline/internal/adapters/observability"
	"github.com/ghalamif/frostline/internal/adapters/queue"
	"github.com/ghalamif/frostline/internal/adapters/wal"
	"github.com/ghalamif/frostline/internal/app/pipeline"
	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
	"github.com/ghalamif/frostline/internal/spoilage"
)

// EdgeRuntimeOption customizes the dependencies used by EdgeRuntime.
type EdgeRuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	collector     Collector
	hardware      *Hardware
	sink          Sink
	wal           WAL
	queue         ReadingQueue
	observability Observability
	inventory     InventoryStore
	onAssessment  func(Assessment)
}

// WithCollector replaces the telemetry poller (simulators, replay tools).
// No hardware is opened when a collector is injected.
func WithCollector(col Collector) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.collector = col
	}
}

// WithHardware hands the poller pre-opened sensor handles instead of opening
// them from configuration. The caller keeps ownership of the handles.
func WithHardware(hw Hardware) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.hardware = &hw
	}
}

// WithSink injects a custom sink so readings can be sent to any database or API.
func WithSink(s Sink) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithWAL lets callers bring their own WAL implementation or reuse an existing instance.
func WithWAL(w WAL) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.wal = w
	}
}

// WithReadingQueue injects a custom queue implementation.
func WithReadingQueue(q ReadingQueue) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithInventory injects the inventory store the spoilage engine works against.
func WithInventory(inv InventoryStore) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.inventory = inv
	}
}

// WithAssessmentHandler is called with every spoilage assessment, after the
// spoiled flags have been written.
func WithAssessmentHandler(fn func(Assessment)) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.onAssessment = fn
	}
}

// EdgeRuntime wires up the poller → WAL → queue → spoilage → sink pipeline and
// exposes simple lifecycle hooks for embedding frostline inside any Go service.
type EdgeRuntime struct {
	cfg       *Config
	policy    ports.Policy
	obs       ports.Observability
	registry  *prometheus.Registry
	wal       ports.WAL
	queue     ports.ReadingQueue
	collector ports.Collector
	sink      ports.Sink
	inventory ports.InventoryStore
	engine    *spoilage.Engine
	status    *statusState

	onAssessment func(Assessment)

	hardware io.Closer
	sinks    io.Closer
	db       *sql.DB

	mu         sync.Mutex
	cancel     context.CancelFunc
	edgeDone   <-chan struct{}
	ingestDone chan struct{}
	gaugeDone  chan struct{}
	statusSrv  *http.Server
}

// NewEdgeRuntime bootstraps the default adapters (telemetry poller over the
// configured hardware, file WAL, in-memory queue, configured sinks and
// inventory store, Prometheus observability). Callers can use
// EdgeRuntimeOption values to override any dependency.
func NewEdgeRuntime(cfg *Config, opts ...EdgeRuntimeOption) (rt *EdgeRuntime, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	e := &EdgeRuntime{
		cfg:          cfg,
		policy:       cfg.Policy,
		registry:     prometheus.NewRegistry(),
		status:       &statusState{},
		onAssessment: overrides.onAssessment,
	}
	defer func() {
		if err != nil {
			_ = e.closeResources()
		}
	}()

	e.obs = overrides.observability
	if e.obs == nil {
		e.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		e.obs, err = newObservability(cfg, e.registry)
		if err != nil {
			return nil, err
		}
	}

	if overrides.wal != nil {
		e.wal = overrides.wal
	} else {
		e.wal, err = wal.NewFileWAL(cfg.WAL.Dir, wal.WithFsync(cfg.WAL.Fsync))
		if err != nil {
			return nil, err
		}
	}

	e.queue = overrides.queue
	if e.queue == nil {
		e.queue = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
	}

	if overrides.sink == nil || overrides.inventory == nil {
		e.db, err = OpenDatabase(cfg)
		if err != nil {
			return nil, err
		}
	}

	e.sink = overrides.sink
	if e.sink == nil {
		e.sink, e.sinks, err = BuildSinks(cfg, e.db, e.obs)
		if err != nil {
			return nil, err
		}
		seedStatusFromHistory(cfg, e.db, e.status, e.obs)
	}

	e.inventory = overrides.inventory
	if e.inventory == nil {
		e.inventory, err = BuildInventory(cfg, e.db)
		if err != nil {
			return nil, err
		}
	}
	e.engine = spoilage.NewEngine(cfg.Thresholds, cfg.Spoilage.Categories)

	e.collector = overrides.collector
	if e.collector == nil {
		var hw Hardware
		if overrides.hardware != nil {
			hw = *overrides.hardware
		} else {
			hw, e.hardware = OpenHardware(cfg, e.obs)
		}
		p, err := NewPoller(cfg, hw, e.obs)
		if err != nil {
			return nil, err
		}
		e.collector = p
		e.status.stats = p.Stats
	}

	return e, nil
}

// Start replays uncommitted WAL entries, then begins the ingest and edge
// pipelines and the status server. It returns once polling has started; call
// Run to block on a context instead.
func (e *EdgeRuntime) Start() error {
	if e == nil {
		return fmt.Errorf("edge runtime is nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return fmt.Errorf("edge runtime already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.ingestDone = make(chan struct{})
	go func() {
		defer close(e.ingestDone)
		pipeline.RunIngestPipeline(ctx, pipeline.Ingest{
			WAL:          e.wal,
			Queue:        e.queue,
			Sink:         e.sink,
			Engine:       e.engine,
			Inventory:    e.inventory,
			Policy:       e.policy,
			Obs:          e.obs,
			OnAssessment: e.handleAssessment,
			OnDelivered: func(rs []*domain.SensorReading) {
				e.status.setReading(rs[len(rs)-1])
			},
		})
	}()

	if err := replayWALIntoQueue(ctx, e.wal, e.queue, e.policy, e.obs); err != nil {
		cancel()
		<-e.ingestDone
		e.cancel = nil
		return err
	}

	done, err := pipeline.RunEdgePipeline(ctx, e.collector, e.wal, e.queue, e.policy, e.obs)
	if err != nil {
		cancel()
		<-e.ingestDone
		e.cancel = nil
		return err
	}
	e.edgeDone = done

	e.startStatus(ctx)
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled.
// Upon cancellation it attempts a graceful shutdown.
func (e *EdgeRuntime) Run(ctx context.Context) error {
	if err := e.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// Shutdown stops the poller, the ingest loop and the status server, then
// closes hardware handles, sinks, the database and the WAL.
func (e *EdgeRuntime) Shutdown(ctx context.Context) error {
	var errs []error

	if e.collector != nil {
		if err := e.collector.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		for _, done := range []<-chan struct{}{e.edgeDone, e.ingestDone, e.gaugeDone} {
			if done == nil {
				continue
			}
			select {
			case <-done:
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("waiting for pipeline: %w", ctx.Err()))
			}
		}
	}

	if e.statusSrv != nil {
		if err := e.statusSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if err := e.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *EdgeRuntime) closeResources() error {
	var errs []error
	if e.hardware != nil {
		if err := e.hardware.Close(); err != nil {
			errs = append(errs, fmt.Errorf("hardware: %w", err))
		}
		e.hardware = nil
	}
	if e.sinks != nil {
		if err := e.sinks.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sinks: %w", err))
		}
		e.sinks = nil
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
		e.db = nil
	}
	if e.wal != nil {
		if err := e.wal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("wal: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Handler serves /metrics, /healthz and the /status endpoints.
func (e *EdgeRuntime) Handler() http.Handler {
	return newStatusRouter(e.registry, e.status)
}

func (e *EdgeRuntime) handleAssessment(a Assessment) {
	e.status.setAssessment(a)
	if e.onAssessment != nil {
		e.onAssessment(a)
	}
}

func (e *EdgeRuntime) startStatus(ctx context.Context) {
	e.statusSrv = &http.Server{
		Addr:              e.cfg.Metrics.Addr,
		Handler:           e.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := e.statusSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.obs.LogError("status_server_exited", err, ports.Field{Key: "addr", Value: e.cfg.Metrics.Addr})
		}
	}()

	e.gaugeDone = make(chan struct{})
	go e.recordResourceGauges(ctx, e.gaugeDone, time.Second)
}

func (e *EdgeRuntime) recordResourceGauges(ctx context.Context, done chan<- struct{}, interval time.Duration) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := e.wal.Stats()
			e.obs.SetGauge("frostline_wal_size_bytes", float64(stats.SizeBytes))
			e.obs.SetGauge("frostline_queue_length", float64(e.queue.Len()))
		}
	}
}

func replayWALIntoQueue(ctx context.Context, walAdapter ports.WAL, q ports.ReadingQueue, pol ports.Policy, obs ports.Observability) error {
	stats := walAdapter.Stats()
	if stats.LatestAppended == 0 {
		return nil
	}
	start := stats.OldestUncommitted
	if start == 0 || start > stats.LatestAppended {
		return nil
	}

	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	var replayed int
	err := walAdapter.Iterate(start, func(id ports.WALEntryID, r *domain.SensorReading) error {
		for {
			if q.Enqueue(id, r) {
				replayed++
				return nil
			}
			switch pol.OnQueueFull {
			case "drop", "reject":
				return fmt.Errorf("queue full during WAL replay: %w", ErrQueueFull)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}
		}
	})
	if err != nil {
		return err
	}
	if replayed > 0 {
		obs.LogInfo("wal_replay_complete",
			ports.Field{Key: "readings", Value: replayed},
			ports.Field{Key: "from_id", Value: start})
	}
	return nil
}

// NewObservability logs through slog on stderr at log.level and records
// metrics in a private registry. Used by one-shot commands that serve no
// /metrics endpoint.
func NewObservability(cfg *Config) (Observability, error) {
	return newObservability(cfg, prometheus.NewRegistry())
}

func newObservability(cfg *Config, reg prometheus.Registerer) (Observability, error) {
	logger, err := observability.NewLogger(os.Stderr, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return observability.NewPromObs(logger, reg), nil
}
