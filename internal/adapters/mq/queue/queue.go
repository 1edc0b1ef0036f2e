// Package queue holds pending refresh requests between the HTTP surface and
// the refresh workers.
//
// The queue is an in-memory bounded channel. Enqueue never blocks: a full
// queue rejects the request so callers can answer with backpressure.
package queue

import (
	"context"
	"sync"

	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Request is the payload type flowing through the queue.
type Request = model.RefreshRequest

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a request. It returns ErrQueueFull or ErrQueueClosed when
	// the request was not accepted.
	Enqueue(ctx context.Context, r Request) error

	// Dequeue returns a channel that receives requests as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Request

	// Len returns the current number of queued requests.
	Len() int

	// Cap returns the maximum number of queued requests.
	Cap() int

	// Close stops accepting requests and closes the dequeue channel once drained.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	requests chan Request
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.requests = make(chan Request, q.capacity)
	metrics.UpdateRefreshQueue(0, q.capacity)
	return q
}

// Enqueue adds a request to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r Request) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.requests <- r:
		metrics.RecordRefreshEnqueued()
		metrics.UpdateRefreshQueue(len(q.requests), q.capacity)
		return nil
	default:
		metrics.RecordRefreshRejected()
		return ErrQueueFull
	}
}

// Dequeue returns the queue's own channel. Every consumer receives from it
// directly, so a request is either buffered and counted by Len or already
// owned by a consumer.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Request {
	return q.requests
}

// Len returns the current number of queued requests.
func (q *InMemoryQueue) Len() int {
	return len(q.requests)
}

// Cap returns the queue capacity.
func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.requests)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
