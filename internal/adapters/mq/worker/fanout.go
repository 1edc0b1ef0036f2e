package worker

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/pkg/logger"
	"github.com/okian/refbench/pkg/metrics"
)

const (
	defaultFanoutMultiplier = 4
	defaultRefereeTimeout   = 2 * time.Second
)

// Gap reasons.
const (
	GapTimeout  = "timeout"
	GapNotFound = "not_found"
	GapError    = "error"
	// GapStale marks a referee served from an expired cache entry. It is
	// counted but the referee is still part of the result.
	GapStale = "stale"
)

// Snapshots loads snapshots, falling back to whatever is cached.
type Snapshots interface {
	Get(ctx context.Context, id string, forceRefresh bool) (model.MetricsSnapshot, error)
	Cached(ctx context.Context, id string) (model.MetricsSnapshot, bool, error)
}

// Item is one loaded snapshot.
type Item struct {
	RefereeID string
	Snapshot  model.MetricsSnapshot
	Stale     bool
}

// Gap is a referee left out of a population fold.
type Gap struct {
	RefereeID string
	Reason    string
	Err       error
}

// Result is the outcome of one population load. Items are ordered by referee id.
type Result struct {
	RunID string
	Items []Item
	Gaps  []Gap
}

// Fanout loads many referees' snapshots on a bounded pool.
type Fanout struct {
	workers int
	timeout time.Duration
	logger  logger.Logger
}

// NewFanout creates a Fanout.
func NewFanout(opts ...FanoutOption) *Fanout {
	f := &Fanout{
		workers: runtime.NumCPU() * defaultFanoutMultiplier,
		timeout: defaultRefereeTimeout,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type outcome struct {
	item Item
	gap  *Gap
	ok   bool
}

// Run loads every id through src. Each referee gets its own timeout; a
// referee that fails or times out is served from its last cached snapshot
// when one exists and otherwise reported as a Gap. Only cancellation of ctx
// fails the whole run.
func (f *Fanout) Run(ctx context.Context, operation string, ids []string, src Snapshots) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.NewString()}

	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)
	ordered = dedupeSorted(ordered)

	outcomes := make([]outcome, len(ordered))
	jobs := make(chan int)

	workers := f.workers
	if workers > len(ordered) {
		workers = len(ordered)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = f.load(ctx, ordered[i], src)
			}
		}()
	}

feed:
	for i := range ordered {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	for _, o := range outcomes {
		if o.ok {
			res.Items = append(res.Items, o.item)
		}
		if o.gap != nil {
			res.Gaps = append(res.Gaps, *o.gap)
		}
	}

	metrics.RecordPopulationRun(operation, len(res.Items), float64(time.Since(start).Microseconds())/1000)
	if len(res.Gaps) > 0 {
		f.logger.Warn(ctx, "population fold had gaps",
			logger.String("operation", operation),
			logger.String("run_id", res.RunID),
			logger.Int("population", len(ordered)),
			logger.Int("gaps", len(res.Gaps)))
	}
	return res, nil
}

func (f *Fanout) load(ctx context.Context, id string, src Snapshots) outcome {
	rctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	snap, err := src.Get(rctx, id, false)
	if err == nil {
		return outcome{item: Item{RefereeID: id, Snapshot: snap}, ok: true}
	}
	if ctx.Err() != nil {
		return outcome{}
	}
	if errors.Is(err, model.ErrRefereeNotFound) {
		return f.gap(ctx, id, GapNotFound, err)
	}

	if cached, ok, cerr := src.Cached(ctx, id); cerr == nil && ok {
		metrics.RecordPopulationGap(GapStale)
		f.logger.Debug(ctx, "serving stale snapshot",
			logger.String("referee_id", id), logger.Error(err))
		return outcome{item: Item{RefereeID: id, Snapshot: cached, Stale: true}, ok: true}
	}

	reason := GapError
	if errors.Is(err, context.DeadlineExceeded) {
		reason = GapTimeout
	}
	return f.gap(ctx, id, reason, err)
}

func (f *Fanout) gap(ctx context.Context, id, reason string, err error) outcome {
	metrics.RecordPopulationGap(reason)
	f.logger.Warn(ctx, "referee skipped",
		logger.String("referee_id", id),
		logger.String("reason", reason),
		logger.Error(err))
	return outcome{gap: &Gap{RefereeID: id, Reason: reason, Err: err}}
}

func dedupeSorted(ids []string) []string {
	out := ids[:0]
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Loader binds a Fanout to one snapshot source.
type Loader struct {
	fanout *Fanout
	src    Snapshots
}

// Bind returns a Loader reading from src.
func (f *Fanout) Bind(src Snapshots) *Loader {
	return &Loader{fanout: f, src: src}
}

// Load returns the loaded snapshots ordered by referee id and the number of
// referees left out.
func (l *Loader) Load(ctx context.Context, operation string, ids []string) ([]model.MetricsSnapshot, int, error) {
	res, err := l.fanout.Run(ctx, operation, ids, l.src)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.MetricsSnapshot, len(res.Items))
	for i, it := range res.Items {
		out[i] = it.Snapshot
	}
	return out, len(res.Gaps), nil
}
