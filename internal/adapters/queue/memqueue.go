package queue

import (
	"sync"

	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
)

// MemQueue is a bounded FIFO of WAL-backed readings between the poller and the
// ingest loop. Readings leave in poll order.
type MemQueue struct {
	mu    sync.Mutex
	items []ports.QueuedReading
	limit int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{
		items: make([]ports.QueuedReading, 0, capacity),
		limit: capacity,
	}
}

// Enqueue reports false when the queue is full; the caller applies the
// on_queue_full policy.
func (q *MemQueue) Enqueue(id ports.WALEntryID, r *domain.SensorReading) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.limit {
		return false
	}
	q.items = append(q.items, ports.QueuedReading{ID: id, Reading: r})
	return true
}

// DequeueBatch removes up to max readings; max <= 0 drains everything.
func (q *MemQueue) DequeueBatch(max int) []ports.QueuedReading {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}
	out := make([]ports.QueuedReading, n)
	copy(out, q.items[:n])
	rest := copy(q.items, q.items[n:])
	clear(q.items[rest:])
	q.items = q.items[:rest]
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

var _ ports.ReadingQueue = (*MemQueue)(nil)
