package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/frostline/internal/adapters/inventory"
	"github.com/ghalamif/frostline/internal/airquality"
	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
	"github.com/ghalamif/frostline/internal/spoilage"
)

type recordingSink struct {
	mu       sync.Mutex
	batches  [][]*domain.SensorReading
	failures int
}

func (s *recordingSink) WriteBatch(rs []*domain.SensorReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.batches = append(s.batches, rs)
	return nil
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) delivered() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var seqs []uint64
	for _, b := range s.batches {
		for _, r := range b {
			seqs = append(seqs, r.Seq)
		}
	}
	return seqs
}

type failingInventory struct{}

func (failingInventory) ListActiveItems(context.Context) ([]*domain.InventoryItem, error) {
	return nil, errors.New("db down")
}

func (failingInventory) MarkSpoiled(context.Context, domain.ItemID) (bool, error) {
	return false, nil
}

func seedQueue(wal *memWAL, q *mockQueue, readings ...*domain.SensorReading) {
	for _, r := range readings {
		id, _ := wal.Append(r)
		q.Enqueue(id, r)
	}
}

func runUntil(t *testing.T, in Ingest, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunIngestPipeline(ctx, in)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
	if !cond() {
		t.Fatalf("condition not reached before deadline")
	}
}

func TestIngestDeliversInOrderAndCommits(t *testing.T) {
	wal := &memWAL{}
	q := &mockQueue{}
	sink := &recordingSink{}
	obs := &mockObs{}
	seedQueue(wal, q,
		&domain.SensorReading{Seq: 1},
		&domain.SensorReading{Seq: 2},
		&domain.SensorReading{Seq: 3},
	)

	runUntil(t, Ingest{
		WAL: wal, Queue: q, Sink: sink, Obs: obs,
		Policy: ports.Policy{MaxBatchSize: 2, IdleSleep: time.Millisecond},
	}, func() bool { return wal.committedUpTo() == 3 })

	got := sink.delivered()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected delivery order %v", got)
	}
	if obs.counter("frostline_readings_ingested_total") != 3 {
		t.Fatalf("expected 3 ingested, got %v", obs.counter("frostline_readings_ingested_total"))
	}
	wal.mu.Lock()
	truncates := wal.truncates
	wal.mu.Unlock()
	if truncates == 0 {
		t.Fatalf("expected WAL truncation once fully committed")
	}
}

func TestIngestRetriesSinkWithoutCommitting(t *testing.T) {
	wal := &memWAL{}
	q := &mockQueue{}
	sink := &recordingSink{failures: 2}
	obs := &mockObs{}
	seedQueue(wal, q, &domain.SensorReading{Seq: 7})

	runUntil(t, Ingest{
		WAL: wal, Queue: q, Sink: sink, Obs: obs,
		Policy: ports.Policy{IdleSleep: time.Millisecond},
	}, func() bool { return wal.committedUpTo() == 1 })

	if got := sink.delivered(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("expected single delivery of seq 7, got %v", got)
	}
	if n := len(obs.errorsLogged()); n != 2 {
		t.Fatalf("expected 2 sink errors, got %d", n)
	}
}

func TestIngestMarksSpoiledItems(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)
	store := inventory.NewMemoryStore(
		domain.InventoryItem{ID: 1, Name: "Chicken", Category: "meat"},
		domain.InventoryItem{ID: 2, Name: "Carrots", Category: "vegetables"},
		domain.InventoryItem{ID: 3, Name: "Yoghurt", Category: "dairy", ExpiryAt: &yesterday},
	)
	wal := &memWAL{}
	q := &mockQueue{}
	obs := &mockObs{}
	seedQueue(wal, q, &domain.SensorReading{Seq: 1, Timestamp: now, AmmoniaPPM: domain.Float64(40)})

	var (
		mu          sync.Mutex
		assessments []domain.Assessment
	)
	runUntil(t, Ingest{
		WAL: wal, Queue: q, Sink: &recordingSink{}, Obs: obs,
		Engine:    spoilage.NewEngine(airquality.DefaultThresholds(), nil),
		Inventory: store,
		Policy:    ports.Policy{IdleSleep: time.Millisecond},
		OnAssessment: func(a domain.Assessment) {
			mu.Lock()
			assessments = append(assessments, a)
			mu.Unlock()
		},
	}, func() bool { return wal.committedUpTo() == 1 })

	for id, want := range map[domain.ItemID]bool{1: true, 2: false, 3: true} {
		it, _ := store.Get(id)
		if it.IsSpoiled != want {
			t.Fatalf("item %d spoiled=%v want %v", id, it.IsSpoiled, want)
		}
	}
	if obs.counter("frostline_items_spoiled_total") != 2 {
		t.Fatalf("expected 2 spoiled items counted, got %v", obs.counter("frostline_items_spoiled_total"))
	}
	if obs.counter("frostline_warnings_total") != 1 {
		t.Fatalf("expected ammonia warning counted")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(assessments) != 1 || len(assessments[0].SpoiledIDs) != 2 {
		t.Fatalf("unexpected assessments %+v", assessments)
	}
}

func TestIngestInventoryFailureStillDelivers(t *testing.T) {
	wal := &memWAL{}
	q := &mockQueue{}
	sink := &recordingSink{}
	obs := &mockObs{}
	seedQueue(wal, q, &domain.SensorReading{Seq: 1})

	called := false
	runUntil(t, Ingest{
		WAL: wal, Queue: q, Sink: sink, Obs: obs,
		Engine:       spoilage.NewEngine(airquality.DefaultThresholds(), nil),
		Inventory:    failingInventory{},
		Policy:       ports.Policy{IdleSleep: time.Millisecond},
		OnAssessment: func(domain.Assessment) { called = true },
	}, func() bool { return wal.committedUpTo() == 1 })

	if called {
		t.Fatalf("assessment must be skipped when the inventory cannot be listed")
	}
	if len(sink.delivered()) != 1 {
		t.Fatalf("reading should still reach the sink")
	}
}

func TestIngestAssessesWhileSinkIsDown(t *testing.T) {
	store := inventory.NewMemoryStore(domain.InventoryItem{ID: 1, Name: "Mince", Category: "meat"})
	wal := &memWAL{}
	q := &mockQueue{}
	sink := &recordingSink{failures: 1 << 30}
	obs := &mockObs{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunIngestPipeline(ctx, Ingest{
			WAL: wal, Queue: q, Sink: sink, Obs: obs,
			Engine:    spoilage.NewEngine(airquality.DefaultThresholds(), nil),
			Inventory: store,
			Policy:    ports.Policy{IdleSleep: time.Millisecond},
		})
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	waitFor := func(what string, cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %s", what)
			}
			time.Sleep(time.Millisecond)
		}
	}

	seedQueue(wal, q, &domain.SensorReading{Seq: 1, Timestamp: time.Now()})
	waitFor("first sink failure", func() bool { return len(obs.errorsLogged()) > 0 })

	seedQueue(wal, q, &domain.SensorReading{Seq: 2, Timestamp: time.Now(), AmmoniaPPM: domain.Float64(40)})
	waitFor("meat item flagged", func() bool {
		it, _ := store.Get(1)
		return it.IsSpoiled
	})

	if got := wal.committedUpTo(); got != 0 {
		t.Fatalf("nothing was delivered, WAL committed up to %d", got)
	}
	if got := sink.delivered(); len(got) != 0 {
		t.Fatalf("sink accepted %v while failing", got)
	}
}

func TestIngestDrainsBacklogAfterOutage(t *testing.T) {
	wal := &memWAL{}
	q := &mockQueue{}
	sink := &recordingSink{failures: 3}
	seedQueue(wal, q,
		&domain.SensorReading{Seq: 1},
		&domain.SensorReading{Seq: 2},
		&domain.SensorReading{Seq: 3},
		&domain.SensorReading{Seq: 4},
		&domain.SensorReading{Seq: 5},
	)

	runUntil(t, Ingest{
		WAL: wal, Queue: q, Sink: sink, Obs: &mockObs{},
		Policy: ports.Policy{MaxBatchSize: 2, IdleSleep: time.Millisecond},
	}, func() bool { return wal.committedUpTo() == 5 })

	got := sink.delivered()
	if len(got) != 5 {
		t.Fatalf("expected 5 deliveries, got %v", got)
	}
	for i, seq := range got {
		if seq != uint64(i+1) {
			t.Fatalf("delivery out of order: %v", got)
		}
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, b := range sink.batches {
		if len(b) > 2 {
			t.Fatalf("batch of %d exceeds max batch size", len(b))
		}
	}
}
