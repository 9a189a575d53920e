package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
)

const defaultIdleSleep = 5 * time.Millisecond

var (
	ErrWALFull   = errors.New("frostline: wal full")
	ErrQueueFull = errors.New("frostline: queue full")
)

// RunEdgePipeline starts the collector and moves every reading into the WAL
// and then the queue, in the order the collector produced them. It returns
// once the collector is running; the returned channel closes when ctx is
// cancelled and the forwarding goroutine has exited.
func RunEdgePipeline(ctx context.Context, col ports.Collector, wal ports.WAL, q ports.ReadingQueue, pol ports.Policy, obs ports.Observability) (<-chan struct{}, error) {
	ch := make(chan *domain.SensorReading, max(pol.MaxQueueLen, 1))

	if err := col.Start(ch); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var r *domain.SensorReading
			select {
			case <-ctx.Done():
				return
			case r = <-ch:
			}

			err := Admit(ctx, wal, q, r, pol, obs)
			switch {
			case err == nil:
			case errors.Is(err, ErrWALFull), errors.Is(err, ErrQueueFull):
				obs.IncCounter("frostline_queue_dropped_total", 1)
			default:
				obs.LogCritical("wal_append_failed", err, ports.Field{Key: "seq", Value: r.Seq})
			}
		}
	}()

	return done, nil
}

// Admit appends r to the WAL and then enqueues it, applying the WAL and queue
// policies. Cancelling ctx while a policy blocks reports the matching error.
func Admit(ctx context.Context, wal ports.WAL, q ports.ReadingQueue, r *domain.SensorReading, pol ports.Policy, obs ports.Observability) error {
	if !waitForWALCapacity(ctx, wal, pol, obs) {
		return ErrWALFull
	}
	id, err := wal.Append(r)
	if err != nil {
		return fmt.Errorf("wal append: %w", err)
	}
	if !enqueueWithPolicy(ctx, q, id, r, pol, obs) {
		return ErrQueueFull
	}
	return nil
}

func waitForWALCapacity(ctx context.Context, wal ports.WAL, pol ports.Policy, obs ports.Observability) bool {
	if pol.MaxWALSizeBytes <= 0 {
		return true
	}
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = defaultIdleSleep
	}

	for {
		stats := wal.Stats()
		if stats.SizeBytes < pol.MaxWALSizeBytes {
			return true
		}

		switch pol.OnWALFull {
		case "block":
			if !pause(ctx, sleep) {
				return false
			}
		case "drop":
			obs.LogError("wal_full_drop", fmt.Errorf("size=%d limit=%d", stats.SizeBytes, pol.MaxWALSizeBytes))
			return false
		default:
			obs.LogError("wal_policy_invalid", fmt.Errorf("policy=%s", pol.OnWALFull))
			return false
		}
	}
}

func enqueueWithPolicy(ctx context.Context, q ports.ReadingQueue, id ports.WALEntryID, r *domain.SensorReading, pol ports.Policy, obs ports.Observability) bool {
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = defaultIdleSleep
	}

	for {
		if ok := q.Enqueue(id, r); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			if !pause(ctx, sleep) {
				return false
			}
		case "drop", "reject":
			obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen),
				ports.Field{Key: "seq", Value: r.Seq})
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}

// pause sleeps for d and reports false if ctx ended first.
func pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
