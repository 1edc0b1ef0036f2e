// Package worker runs refresh requests off the queue and fans population-wide
// snapshot loads out over a bounded pool.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/refbench/internal/adapters/mq/queue"
	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/pkg/logger"
	"github.com/okian/refbench/pkg/metrics"
)

const (
	defaultRefreshTimeout = 30 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Refresher recomputes a referee's snapshot.
type Refresher interface {
	Get(ctx context.Context, id string, forceRefresh bool) (model.MetricsSnapshot, error)
}

// Queue defines how workers receive requests.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Request
}

// Tracker is told when a referee's refresh is no longer in flight.
type Tracker interface {
	Done(ctx context.Context, id string)
}

// Worker processes refresh requests.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current request.
	Shutdown(ctx context.Context) error
}

// RefreshWorker implements Worker.
type RefreshWorker struct {
	queue     Queue
	refresher Refresher
	tracker   Tracker
	name      string
	timeout   time.Duration

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewRefreshWorker creates a worker.
func NewRefreshWorker(q Queue, r Refresher, opts ...Option) *RefreshWorker {
	w := &RefreshWorker{
		queue:     q,
		refresher: r,
		name:      "worker",
		timeout:   defaultRefreshTimeout,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.With(logger.String("worker", w.name))
	}
	return w
}

// Run starts the worker loop.
func (w *RefreshWorker) Run(ctx context.Context) {
	defer close(w.done)

	requests := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			w.reportDepth()
			if err := w.process(ctx, req); err != nil {
				w.logger.Error(ctx, "refresh failed", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *RefreshWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// reportDepth publishes the queue depth after a receive when the queue
// exposes it.
func (w *RefreshWorker) reportDepth() {
	if d, ok := w.queue.(interface {
		Len() int
		Cap() int
	}); ok {
		metrics.UpdateRefreshQueue(d.Len(), d.Cap())
	}
}

func (w *RefreshWorker) process(ctx context.Context, req queue.Request) error {
	start := time.Now()
	if w.tracker != nil {
		defer w.tracker.Done(ctx, req.RefereeID)
	}

	rctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	_, err := w.refresher.Get(rctx, req.RefereeID, true)
	latency := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		metrics.RecordRefreshProcessed("error", latency)
		metrics.RecordErrorByComponent("worker", "refresh_error")
		return fmt.Errorf("refresh %s (request %s): %w", req.RefereeID, req.RequestID, err)
	}
	metrics.RecordRefreshProcessed("ok", latency)
	w.logger.Debug(ctx, "referee refreshed",
		logger.String("referee_id", req.RefereeID),
		logger.String("request_id", req.RequestID),
		logger.Duration("queued_for", start.Sub(req.EnqueuedAt)))
	return nil
}

// Pool manages multiple refresh workers over one queue.
type Pool struct {
	workers []*RefreshWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. Options apply to every worker.
func NewPool(workerCount int, q Queue, r Refresher, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*RefreshWorker, workerCount),
		queue:   q,
		logger:  logger.Nop(),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewRefreshWorker(q, r, wopts...)
	}
	if len(p.workers) > 0 {
		p.logger = p.workers[0].logger
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
}

// Shutdown closes the queue and waits for every worker to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
