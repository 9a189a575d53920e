package inventory

import (
	"context"
	"testing"

	"github.com/ghalamif/frostline/internal/domain"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(
		domain.InventoryItem{ID: 2, Name: "milk", Category: "dairy"},
		domain.InventoryItem{ID: 1, Name: "cod", Category: "seafood"},
		domain.InventoryItem{ID: 3, Name: "old", IsSpoiled: true},
	)

	items, _ := store.ListActiveItems(ctx)
	if len(items) != 2 || items[0].ID != 1 || items[1].ID != 2 {
		t.Fatalf("unexpected active items %+v", items)
	}

	items[0].IsSpoiled = true
	if it, _ := store.Get(1); it.IsSpoiled {
		t.Fatalf("listed items must be copies")
	}

	if ok, _ := store.MarkSpoiled(ctx, 1); !ok {
		t.Fatalf("expected mark to succeed")
	}
	if ok, _ := store.MarkSpoiled(ctx, 1); ok {
		t.Fatalf("expected second mark to be a no-op")
	}
	if ok, _ := store.MarkSpoiled(ctx, 99); ok {
		t.Fatalf("expected unknown id to be a no-op")
	}

	items, _ = store.ListActiveItems(ctx)
	if len(items) != 1 || items[0].ID != 2 {
		t.Fatalf("unexpected active items after mark %+v", items)
	}
}
