package snapcache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/refbench/internal/adapters/repository"
	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/internal/domain/snapcache"
	"github.com/okian/refbench/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingSource counts event loads and can slow them down.
type countingSource struct {
	*repository.Memory
	loads atomic.Int32
	delay time.Duration
}

func (s *countingSource) GetReviewEvents(ctx context.Context, id string) ([]model.ReviewEvent, error) {
	s.loads.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.Memory.GetReviewEvents(ctx, id)
}

func setup() (*repository.Memory, *countingSource, *clock) {
	ctx := context.Background()
	mem := repository.NewMemory()
	_ = mem.PutReferee(ctx, model.Referee{ID: "r1", Active: true})
	invited := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	submitted := invited.Add(10 * 24 * time.Hour)
	_ = mem.AddReviewEvents(ctx, model.ReviewEvent{
		ManuscriptID: "m1", RefereeID: "r1", JournalID: "j1",
		InvitedAt: &invited, SubmittedAt: &submitted, Decision: model.DecisionAccepted,
	})
	return mem, &countingSource{Memory: mem}, &clock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func TestCacheTTL(t *testing.T) {
	Convey("Given a cache with a 24h TTL", t, func() {
		ctx := context.Background()
		mem, src, clk := setup()
		cache := snapcache.New(src, mem, snapcache.WithClock(clk.Now), snapcache.WithTTL(24*time.Hour))

		first, err := cache.Get(ctx, "r1", false)
		So(err, ShouldBeNil)
		So(first.ComputedAt, ShouldEqual, clk.Now())

		Convey("A read 23h later is served from cache", func() {
			clk.Advance(23 * time.Hour)
			again, err := cache.Get(ctx, "r1", false)
			So(err, ShouldBeNil)
			So(again.ComputedAt, ShouldEqual, first.ComputedAt)
			So(src.loads.Load(), ShouldEqual, 1)
		})

		Convey("A read 25h later recomputes", func() {
			clk.Advance(25 * time.Hour)
			again, err := cache.Get(ctx, "r1", false)
			So(err, ShouldBeNil)
			So(again.ComputedAt.After(first.ComputedAt), ShouldBeTrue)
			So(src.loads.Load(), ShouldEqual, 2)
		})

		Convey("A forced refresh always recomputes", func() {
			clk.Advance(time.Minute)
			again, err := cache.Get(ctx, "r1", true)
			So(err, ShouldBeNil)
			So(again.ComputedAt, ShouldEqual, clk.Now())
		})

		Convey("Cached returns the stored snapshot even once expired", func() {
			clk.Advance(48 * time.Hour)
			snap, ok, err := cache.Cached(ctx, "r1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(snap.ComputedAt, ShouldEqual, first.ComputedAt)
		})
	})
}

func TestHistoryPoints(t *testing.T) {
	Convey("Given repeated computations", t, func() {
		ctx := context.Background()
		mem, src, clk := setup()
		cache := snapcache.New(src, mem, snapcache.WithClock(clk.Now))

		_, err := cache.Get(ctx, "r1", false)
		So(err, ShouldBeNil)

		Convey("A cache hit writes no history point", func() {
			_, err := cache.Get(ctx, "r1", false)
			So(err, ShouldBeNil)
			points, _ := mem.History(ctx, "r1", "2024-01-01", "2024-12-31")
			So(len(points), ShouldEqual, 1)
		})

		Convey("A same-day recomputation overwrites the day's point", func() {
			clk.Advance(time.Hour)
			_, err := cache.Get(ctx, "r1", true)
			So(err, ShouldBeNil)
			points, _ := mem.History(ctx, "r1", "2024-01-01", "2024-12-31")
			So(len(points), ShouldEqual, 1)
			So(points[0].Day, ShouldEqual, "2024-03-01")
		})

		Convey("A next-day recomputation appends", func() {
			clk.Advance(24 * time.Hour)
			_, err := cache.Get(ctx, "r1", true)
			So(err, ShouldBeNil)
			points, _ := mem.History(ctx, "r1", "2024-01-01", "2024-12-31")
			So(len(points), ShouldEqual, 2)
		})
	})
}

func TestNotFound(t *testing.T) {
	Convey("Unknown referees fail with ErrRefereeNotFound", t, func() {
		mem, src, clk := setup()
		cache := snapcache.New(src, mem, snapcache.WithClock(clk.Now))

		_, err := cache.Get(context.Background(), "ghost", false)
		So(errors.Is(err, model.ErrRefereeNotFound), ShouldBeTrue)

		_, err = cache.GetTrend(context.Background(), "ghost", 30)
		So(errors.Is(err, model.ErrRefereeNotFound), ShouldBeTrue)
	})
}

func TestSingleFlight(t *testing.T) {
	Convey("Given concurrent misses for one referee", t, func() {
		mem, src, clk := setup()
		src.delay = 100 * time.Millisecond
		cache := snapcache.New(src, mem, snapcache.WithClock(clk.Now))

		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := cache.Get(context.Background(), "r1", false)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		Convey("Then the computation runs once", func() {
			for err := range errs {
				So(err, ShouldBeNil)
			}
			So(src.loads.Load(), ShouldEqual, 1)
		})
	})
}

func TestTrend(t *testing.T) {
	Convey("Given stored history", t, func() {
		ctx := context.Background()
		mem, src, clk := setup()
		cache := snapcache.New(src, mem, snapcache.WithClock(clk.Now))
		put := func(day string, overall float64) {
			_ = mem.UpsertHistory(ctx, model.HistoryPoint{RefereeID: "r1", Day: day, Scores: model.Scores{Overall: overall}})
		}

		Convey("Rising scores are improving", func() {
			put("2024-02-20", 50)
			put("2024-02-25", 55)
			put("2024-02-29", 61)
			res, err := cache.GetTrend(ctx, "r1", 30)
			So(err, ShouldBeNil)
			So(res.Direction, ShouldEqual, model.TrendImproving)
			So(len(res.Points), ShouldEqual, 3)
			So(res.Points[0].Day, ShouldEqual, "2024-02-20")
		})

		Convey("Falling scores are declining", func() {
			put("2024-02-20", 70)
			put("2024-02-28", 60)
			res, _ := cache.GetTrend(ctx, "r1", 30)
			So(res.Direction, ShouldEqual, model.TrendDeclining)
		})

		Convey("Flat scores are stable", func() {
			put("2024-02-20", 60)
			put("2024-02-28", 60.05)
			res, _ := cache.GetTrend(ctx, "r1", 30)
			So(res.Direction, ShouldEqual, model.TrendStable)
		})

		Convey("Points outside the window are ignored", func() {
			put("2023-12-01", 10)
			put("2024-02-28", 60)
			res, _ := cache.GetTrend(ctx, "r1", 30)
			So(len(res.Points), ShouldEqual, 1)
			So(res.Direction, ShouldEqual, model.StatusInsufficientData)
		})

		Convey("A one-day window holds only today", func() {
			put("2024-02-29", 50)
			put("2024-03-01", 60)
			res, err := cache.GetTrend(ctx, "r1", 1)
			So(err, ShouldBeNil)
			So(len(res.Points), ShouldEqual, 1)
			So(res.Points[0].Day, ShouldEqual, "2024-03-01")
			So(res.Direction, ShouldEqual, model.StatusInsufficientData)

			res, err = cache.GetTrend(ctx, "r1", 2)
			So(err, ShouldBeNil)
			So(len(res.Points), ShouldEqual, 2)
			So(res.Direction, ShouldEqual, model.TrendImproving)
		})

		Convey("A non-positive window is rejected", func() {
			_, err := cache.GetTrend(ctx, "r1", 0)
			So(errors.Is(err, snapcache.ErrInvalidDays), ShouldBeTrue)
		})
	})
}
