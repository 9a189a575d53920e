package pipeline

import (
	"context"
	"time"

	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
	"github.com/ghalamif/frostline/internal/spoilage"
)

// Ingest holds the collaborators of the ingest loop. Engine and Inventory are
// optional; without them readings are delivered without assessment.
type Ingest struct {
	WAL       ports.WAL
	Queue     ports.ReadingQueue
	Sink      ports.Sink
	Engine    *spoilage.Engine
	Inventory ports.InventoryStore
	Policy    ports.Policy
	Obs       ports.Observability

	// OnAssessment sees every assessment after its flags are persisted.
	OnAssessment func(domain.Assessment)
	// OnDelivered sees each batch after the sink accepted it.
	OnDelivered func([]*domain.SensorReading)
}

const maxSinkBackoff = 30 * time.Second

// RunIngestPipeline drains the queue until ctx is cancelled. Readings are
// assessed as soon as they are dequeued and then wait in poll order for the
// sink. A failing sink is retried with backoff while later readings keep
// being assessed; nothing is committed to the WAL until the sink accepts it,
// so a restart replays whatever was still pending.
func RunIngestPipeline(ctx context.Context, in Ingest) {
	idle := in.Policy.IdleSleep
	if idle <= 0 {
		idle = defaultIdleSleep
	}

	var (
		pending []ports.QueuedReading
		backoff = idle
		retryAt time.Time
	)
	for ctx.Err() == nil {
		batch := in.Queue.DequeueBatch(in.Policy.MaxBatchSize)
		for _, item := range batch {
			if item.Reading == nil {
				continue
			}
			in.assess(ctx, item.Reading)
			pending = append(pending, item)
		}

		if len(pending) == 0 || time.Now().Before(retryAt) {
			if len(batch) == 0 && !pause(ctx, idle) {
				return
			}
			continue
		}

		n := len(pending)
		if limit := in.Policy.MaxBatchSize; limit > 0 && limit < n {
			n = limit
		}
		chunk := pending[:n]
		if err := in.write(chunk); err != nil {
			in.Obs.LogError("sink_write_failed", err,
				ports.Field{Key: "sink", Value: in.Sink.Name()},
				ports.Field{Key: "readings", Value: n},
				ports.Field{Key: "pending", Value: len(pending)},
				ports.Field{Key: "retry_in", Value: backoff.String()},
			)
			retryAt = time.Now().Add(backoff)
			backoff = min(backoff*2, maxSinkBackoff)
			continue
		}
		backoff, retryAt = idle, time.Time{}
		pending = pending[n:]
		in.committed(chunk)
	}
}

func (in Ingest) write(chunk []ports.QueuedReading) error {
	out := make([]*domain.SensorReading, len(chunk))
	for i, item := range chunk {
		out[i] = item.Reading
	}
	start := time.Now()
	if err := in.Sink.WriteBatch(out); err != nil {
		return err
	}
	in.Obs.ObserveLatency("frostline_sink_latency_seconds", time.Since(start).Seconds())
	in.Obs.IncCounter("frostline_readings_ingested_total", float64(len(out)))
	if in.OnDelivered != nil {
		in.OnDelivered(out)
	}
	return nil
}

// committed advances the WAL past a delivered chunk. Chunks leave pending in
// poll order, so the last id is the highest.
func (in Ingest) committed(chunk []ports.QueuedReading) {
	if err := in.WAL.Commit(chunk[len(chunk)-1].ID); err != nil {
		in.Obs.LogError("wal_commit_failed", err)
		return
	}
	if st := in.WAL.Stats(); st.OldestUncommitted > st.LatestAppended && st.SizeBytes > 0 {
		if err := in.WAL.TruncateCommitted(); err != nil {
			in.Obs.LogError("wal_truncate_failed", err)
		}
	}
}

// assess runs the spoilage engine against the live inventory and persists the
// resulting flags one conditional write per item.
func (in Ingest) assess(ctx context.Context, r *domain.SensorReading) {
	if in.Engine == nil || in.Inventory == nil {
		return
	}

	items, err := in.Inventory.ListActiveItems(ctx)
	if err != nil {
		in.Obs.LogError("inventory_list_failed", err, ports.Field{Key: "seq", Value: r.Seq})
		return
	}

	a := in.Engine.Assess(r, items)
	for _, v := range a.Verdicts {
		changed, err := in.Inventory.MarkSpoiled(ctx, v.ItemID)
		if err != nil {
			in.Obs.LogError("mark_spoiled_failed", err, ports.Field{Key: "item_id", Value: v.ItemID})
			continue
		}
		if !changed {
			continue
		}
		in.Obs.IncCounter("frostline_items_spoiled_total", 1)
		in.Obs.LogWarn("item_marked_spoiled",
			ports.Field{Key: "item_id", Value: v.ItemID},
			ports.Field{Key: "name", Value: v.Name},
			ports.Field{Key: "reasons", Value: v.Reasons},
			ports.Field{Key: "seq", Value: r.Seq},
		)
	}
	for _, w := range a.Warnings {
		in.Obs.IncCounter("frostline_warnings_total", 1)
		in.Obs.LogWarn("spoilage_warning", ports.Field{Key: "warning", Value: w}, ports.Field{Key: "seq", Value: r.Seq})
	}

	if in.OnAssessment != nil {
		in.OnAssessment(a)
	}
}
