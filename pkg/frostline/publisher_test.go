package frostline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/frostline/internal/adapters/inventory"
	"github.com/ghalamif/frostline/internal/domain"
)

func TestPublisherDeliversAndAssesses(t *testing.T) {
	store := inventory.NewMemoryStore(domain.InventoryItem{ID: 1, Name: "Milk", Category: "Dairy"})

	var (
		mu        sync.Mutex
		delivered []Reading
		spoiled   []domain.ItemID
	)
	sink := NewCallbackSink("test", func(batch []Reading) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, batch...)
		return nil
	})

	pub, err := NewPublisher(&PublisherConfig{
		WAL:       WALConfig{Dir: t.TempDir()},
		Inventory: store,
		Obs:       &stubObservability{},
		OnAssessment: func(a Assessment) {
			mu.Lock()
			defer mu.Unlock()
			spoiled = append(spoiled, a.SpoiledIDs...)
		},
	}, sink)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	ctx := context.Background()
	if err := pub.Publish(ctx, &Reading{Seq: 1, Timestamp: time.Now(), AmmoniaPPM: domain.Float64(30)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pub.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 || delivered[0].Seq != 1 {
		t.Fatalf("unexpected deliveries %+v", delivered)
	}
	if len(spoiled) != 1 || spoiled[0] != 1 {
		t.Fatalf("expected dairy item flagged by ammonia, got %v", spoiled)
	}
}

func TestPublisherReplaysUndelivered(t *testing.T) {
	dir := t.TempDir()
	failing := NewCallbackSink("down", func([]Reading) error { return errors.New("unreachable") })

	pub, err := NewPublisher(&PublisherConfig{WAL: WALConfig{Dir: dir}, Obs: &stubObservability{}}, failing)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	if err := pub.Publish(context.Background(), &Reading{Seq: 5}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := pub.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected Close to give up on the dead sink, got %v", err)
	}

	got := make(chan Reading, 1)
	pub, err = NewPublisher(&PublisherConfig{WAL: WALConfig{Dir: dir}, Obs: &stubObservability{}},
		NewCallbackSink("up", func(batch []Reading) error {
			for _, r := range batch {
				got <- r
			}
			return nil
		}))
	if err != nil {
		t.Fatalf("NewPublisher (second run): %v", err)
	}
	defer pub.Close(context.Background())

	select {
	case r := <-got:
		if r.Seq != 5 {
			t.Fatalf("expected replayed seq 5, got %d", r.Seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reading from the first run was not replayed")
	}
}

func TestPublisherRequiresSink(t *testing.T) {
	if _, err := NewPublisher(&PublisherConfig{WAL: WALConfig{Dir: t.TempDir()}}, nil); err == nil {
		t.Fatalf("expected error without a sink")
	}
}

func TestPublisherReclassifiesAirQuality(t *testing.T) {
	var (
		mu        sync.Mutex
		delivered []Reading
		warnings  []string
	)
	sink := NewCallbackSink("test", func(batch []Reading) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, batch...)
		return nil
	})

	pub, err := NewPublisher(&PublisherConfig{
		WAL:       WALConfig{Dir: t.TempDir()},
		Inventory: inventory.NewMemoryStore(),
		Obs:       &stubObservability{},
		OnAssessment: func(a Assessment) {
			mu.Lock()
			defer mu.Unlock()
			warnings = append(warnings, a.Warnings...)
		},
	}, sink)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	ctx := context.Background()
	r := &Reading{Seq: 1, Timestamp: time.Now(), CO2PPM: domain.Uint16(1200), AirQuality: domain.AirGood}
	if err := pub.Publish(ctx, r); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pub.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if r.AirQuality != domain.AirGood {
		t.Fatalf("caller's reading was modified")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 || delivered[0].AirQuality != domain.AirPoor {
		t.Fatalf("expected delivered label poor, got %+v", delivered)
	}
	want := []string{"Poor air quality detected", "High CO2 detected: 1200 PPM"}
	if len(warnings) != len(want) {
		t.Fatalf("warnings = %q, want %q", warnings, want)
	}
	for i := range want {
		if warnings[i] != want[i] {
			t.Fatalf("warnings = %q, want %q", warnings, want)
		}
	}
}
