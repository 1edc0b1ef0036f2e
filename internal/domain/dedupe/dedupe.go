// Package dedupe tracks referee ids whose refresh is already pending so the
// same referee is not queued twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 100000

// Tracker records in-flight ids.
type Tracker interface {
	// Begin marks id as in flight. It returns false when id already is.
	Begin(ctx context.Context, id string) bool

	// Done clears id so it can be queued again. It is called after the
	// refresh finishes, or when the request could not be queued.
	Done(ctx context.Context, id string)

	Size() int64
}

// inMemoryTracker is bounded: once full, the oldest marker is evicted, which
// at worst lets a long-stuck referee be queued a second time.
type inMemoryTracker struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is oldest
	maxSize int
	size    atomic.Int64
}

// NewInMemoryTracker creates a tracker. A non-positive max size means unbounded.
func NewInMemoryTracker(opts ...Option) Tracker {
	t := &inMemoryTracker{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(t)
	}
	t.entries = make(map[string]*list.Element)
	t.order = list.New()
	return t
}

func (t *inMemoryTracker) Begin(_ context.Context, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[id]; ok {
		return false
	}
	if t.maxSize > 0 && len(t.entries) >= t.maxSize {
		t.evictOldest()
	}
	t.entries[id] = t.order.PushBack(id)
	t.size.Add(1)
	return true
}

func (t *inMemoryTracker) Done(_ context.Context, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.entries[id]; ok {
		t.order.Remove(el)
		delete(t.entries, id)
		t.size.Add(-1)
	}
}

// evictOldest must be called with t.mu held.
func (t *inMemoryTracker) evictOldest() {
	front := t.order.Front()
	if front == nil {
		return
	}
	t.order.Remove(front)
	delete(t.entries, front.Value.(string))
	t.size.Add(-1)
}

func (t *inMemoryTracker) Size() int64 {
	return t.size.Load()
}
