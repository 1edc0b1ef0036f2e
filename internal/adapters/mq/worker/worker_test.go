package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/refbench/internal/adapters/mq/queue"
	worker "github.com/okian/refbench/internal/adapters/mq/worker"
	model "github.com/okian/refbench/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	ch chan queue.Request
}

func newMockQueue() *mockQueue {
	return &mockQueue{ch: make(chan queue.Request, 16)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Request { return mq.ch }

func (mq *mockQueue) Close() error {
	close(mq.ch)
	return nil
}

// mockSnapshots answers Get from a table and can block selected referees.
type mockSnapshots struct {
	mu     sync.Mutex
	calls  map[string]int
	errs   map[string]error
	slow   map[string]bool
	cached map[string]model.MetricsSnapshot
	forced int
}

func newMockSnapshots() *mockSnapshots {
	return &mockSnapshots{
		calls:  map[string]int{},
		errs:   map[string]error{},
		slow:   map[string]bool{},
		cached: map[string]model.MetricsSnapshot{},
	}
}

func (m *mockSnapshots) Get(ctx context.Context, id string, force bool) (model.MetricsSnapshot, error) {
	m.mu.Lock()
	m.calls[id]++
	if force {
		m.forced++
	}
	err, slow := m.errs[id], m.slow[id]
	m.mu.Unlock()

	if slow {
		<-ctx.Done()
		return model.MetricsSnapshot{}, ctx.Err()
	}
	if err != nil {
		return model.MetricsSnapshot{}, err
	}
	return model.MetricsSnapshot{RefereeID: id}, nil
}

func (m *mockSnapshots) Cached(_ context.Context, id string) (model.MetricsSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.cached[id]
	return s, ok, nil
}

func (m *mockSnapshots) callCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

func (m *mockSnapshots) forcedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forced
}

type mockTracker struct {
	mu   sync.Mutex
	done []string
}

func (t *mockTracker) Done(_ context.Context, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = append(t.done, id)
}

func (t *mockTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.done)
}

func TestRefreshWorker(t *testing.T) {
	convey.Convey("Given a refresh worker", t, func() {
		q := newMockQueue()
		snaps := newMockSnapshots()
		tracker := &mockTracker{}
		w := worker.NewRefreshWorker(q, snaps, worker.WithName("w-test"), worker.WithTracker(tracker))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When requests arrive", func() {
			snaps.mu.Lock()
			snaps.errs["r2"] = errors.New("boom")
			snaps.mu.Unlock()
			q.ch <- queue.Request{RequestID: "a", RefereeID: "r1", EnqueuedAt: time.Now()}
			q.ch <- queue.Request{RequestID: "b", RefereeID: "r2", EnqueuedAt: time.Now()}

			convey.Convey("Then each is force-refreshed and released even on failure", func() {
				convey.So(waitFor(func() bool { return tracker.count() == 2 }), convey.ShouldBeTrue)
				convey.So(snaps.callCount("r1"), convey.ShouldEqual, 1)
				convey.So(snaps.forcedCount(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When shutting down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of three workers", t, func() {
		q := newMockQueue()
		snaps := newMockSnapshots()
		tracker := &mockTracker{}
		p := worker.NewPool(3, q, snaps, worker.WithTracker(tracker))
		convey.So(p.Size(), convey.ShouldEqual, 3)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)

		for i := 0; i < 10; i++ {
			q.ch <- queue.Request{RequestID: fmt.Sprint(i), RefereeID: fmt.Sprintf("r%d", i)}
		}

		convey.Convey("Then every request is processed and shutdown drains", func() {
			convey.So(waitFor(func() bool { return tracker.count() == 10 }), convey.ShouldBeTrue)
			convey.So(p.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})

	convey.Convey("A non-positive worker count falls back to the CPU count", t, func() {
		p := worker.NewPool(0, newMockQueue(), newMockSnapshots())
		convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
	})
}

func TestFanout(t *testing.T) {
	convey.Convey("Given a fan-out with a short per-referee timeout", t, func() {
		snaps := newMockSnapshots()
		f := worker.NewFanout(worker.WithWorkers(2), worker.WithRefereeTimeout(20*time.Millisecond))

		convey.Convey("When every referee loads", func() {
			res, err := f.Run(context.Background(), "test", []string{"c", "a", "b", "a"}, snaps)

			convey.Convey("Then items are ordered by id without duplicates", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.RunID, convey.ShouldNotBeEmpty)
				convey.So(len(res.Items), convey.ShouldEqual, 3)
				convey.So(res.Items[0].RefereeID, convey.ShouldEqual, "a")
				convey.So(res.Items[2].RefereeID, convey.ShouldEqual, "c")
				convey.So(res.Gaps, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When one referee times out with nothing cached", func() {
			snaps.slow["b"] = true
			res, err := f.Run(context.Background(), "test", []string{"a", "b", "c"}, snaps)

			convey.Convey("Then it becomes a timeout gap", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(res.Items), convey.ShouldEqual, 2)
				convey.So(len(res.Gaps), convey.ShouldEqual, 1)
				convey.So(res.Gaps[0].RefereeID, convey.ShouldEqual, "b")
				convey.So(res.Gaps[0].Reason, convey.ShouldEqual, worker.GapTimeout)
			})
		})

		convey.Convey("When a timed-out referee has a cached snapshot", func() {
			snaps.slow["b"] = true
			snaps.cached["b"] = model.MetricsSnapshot{RefereeID: "b", TotalCompleted: 7}
			res, _ := f.Run(context.Background(), "test", []string{"a", "b"}, snaps)

			convey.Convey("Then the stale snapshot is used", func() {
				convey.So(len(res.Items), convey.ShouldEqual, 2)
				convey.So(res.Items[1].Stale, convey.ShouldBeTrue)
				convey.So(res.Items[1].Snapshot.TotalCompleted, convey.ShouldEqual, 7)
				convey.So(res.Gaps, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When a referee vanished", func() {
			snaps.errs["b"] = fmt.Errorf("%w: b", model.ErrRefereeNotFound)
			res, _ := f.Run(context.Background(), "test", []string{"a", "b"}, snaps)
			convey.So(len(res.Gaps), convey.ShouldEqual, 1)
			convey.So(res.Gaps[0].Reason, convey.ShouldEqual, worker.GapNotFound)
		})

		convey.Convey("When the caller cancels", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := f.Run(ctx, "test", []string{"a"}, snaps)
			convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
		})

		convey.Convey("An empty population is not an error", func() {
			res, err := f.Run(context.Background(), "test", nil, snaps)
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Items, convey.ShouldBeEmpty)
		})
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestLoader(t *testing.T) {
	convey.Convey("A bound loader returns snapshots and the gap count", t, func() {
		snaps := newMockSnapshots()
		snaps.errs["b"] = errors.New("store down")
		l := worker.NewFanout(worker.WithWorkers(4)).Bind(snaps)

		out, gaps, err := l.Load(context.Background(), "test", []string{"c", "b", "a"})
		convey.So(err, convey.ShouldBeNil)
		convey.So(gaps, convey.ShouldEqual, 1)
		convey.So(len(out), convey.ShouldEqual, 2)
		convey.So(out[0].RefereeID, convey.ShouldEqual, "a")
		convey.So(out[1].RefereeID, convey.ShouldEqual, "c")
	})
}
