// Package dedupe tracks which ranking recalculations are already pending so
// a burst of scorecard changes in one category collapses into one request.
package dedupe

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Default configuration constants.
const (
	defaultMaxSize = 10_000
)

// Deduper records keys that are pending.
type Deduper interface {
	// SeenAndRecord atomically checks if key is pending and records it if
	// not. Returns true if key was already pending.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord releases key, typically when its request is dequeued or
	// could not be enqueued.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Key builds the key of a category's recalculation. The competition ID is
// length-prefixed so IDs containing the separator cannot collide.
func Key(competitionID, categoryID string) string {
	return strconv.Itoa(len(competitionID)) + ":" + competitionID + "/" + categoryID
}

// inMemoryDeduper keeps pending keys in a map plus an insertion-ordered
// list. When bounded and full, the oldest key is forgotten; that only costs
// one redundant recalculation.
type inMemoryDeduper struct {
	mu      sync.Mutex
	pending map[string]*list.Element
	order   *list.List
	maxSize int // 0 or negative means unbounded
	size    atomic.Int64
}

// NewInMemoryDeduper creates an in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.pending = make(map[string]*list.Element)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[key]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.pending) >= d.maxSize {
		d.evictOldest()
	}
	d.pending[key] = d.order.PushBack(key)
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.pending[key]; ok {
		d.order.Remove(el)
		delete(d.pending, key)
		d.size.Add(-1)
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.pending, front.Value.(string))
	d.size.Add(-1)
}

// Size returns the number of pending keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
