package ports

import (
	"context"

	"github.com/ghalamif/frostline/internal/domain"
)

// InventoryStore is the inventory layer as seen by the spoilage engine.
//
// MarkSpoiled must be a single conditional write per item; it reports false when
// the item was already spoiled or no longer exists. Concurrent edits made through
// other channels are not reconciled: the last writer wins.
type InventoryStore interface {
	ListActiveItems(ctx context.Context) ([]*domain.InventoryItem, error)
	MarkSpoiled(ctx context.Context, id domain.ItemID) (bool, error)
}
