package inventory

import (
	"context"
	"sort"
	"sync"

	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
)

// MemoryStore is an in-process inventory, used when no database is configured
// and by tests.
type MemoryStore struct {
	mu    sync.Mutex
	items map[domain.ItemID]domain.InventoryItem
}

func NewMemoryStore(items ...domain.InventoryItem) *MemoryStore {
	m := &MemoryStore{items: make(map[domain.ItemID]domain.InventoryItem, len(items))}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

// ListActiveItems returns copies so callers can flip IsSpoiled locally without
// touching the store.
func (m *MemoryStore) ListActiveItems(context.Context) ([]*domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.InventoryItem, 0, len(m.items))
	for _, it := range m.items {
		if it.IsSpoiled {
			continue
		}
		cp := it
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) MarkSpoiled(_ context.Context, id domain.ItemID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.IsSpoiled {
		return false, nil
	}
	it.IsSpoiled = true
	m.items[id] = it
	return true, nil
}

// Get returns a copy of the item.
func (m *MemoryStore) Get(id domain.ItemID) (domain.InventoryItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	return it, ok
}

// Put inserts or replaces an item, standing in for edits made by the
// inventory management layer.
func (m *MemoryStore) Put(it domain.InventoryItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
}

var _ ports.InventoryStore = (*MemoryStore)(nil)
