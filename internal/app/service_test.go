package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/refbench/internal/adapters/mq/queue"
	"github.com/okian/refbench/internal/adapters/repository"
	service "github.com/okian/refbench/internal/app"
	"github.com/okian/refbench/internal/config"
	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func seedStore(ctx context.Context, mem *repository.Memory) {
	for i, id := range []string{"r1", "r2", "r3"} {
		So(mem.PutReferee(ctx, model.Referee{
			ID: id, Active: true, ExpertiseTags: []string{"ml", "stats"},
			CreatedAt: now.AddDate(-3, 0, 0),
		}), ShouldBeNil)
		invited := now.AddDate(0, -2, 0)
		submitted := invited.AddDate(0, 0, 7*(i+1))
		q := 6.0 + float64(i)
		So(mem.AddReviewEvents(ctx, model.ReviewEvent{
			ManuscriptID: fmt.Sprintf("m-%s", id), RefereeID: id, JournalID: "j1",
			InvitedAt: &invited, RespondedAt: &invited, SubmittedAt: &submitted,
			Decision: model.DecisionAccepted, QualityScore: &q,
		}), ShouldBeNil)
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New()

		Convey("Operations fail with ErrNotStarted", func() {
			_, err := svc.GetMetrics(context.Background(), "r1", false)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats(context.Background())["started"], ShouldEqual, false)
		})
	})

	Convey("Given a service configured from defaults with the memory driver", t, func() {
		cfg := config.New()
		cfg.DBDriver = config.DriverMemory
		svc := service.New(service.WithConfig(cfg), service.WithLogger(logger.Nop()))
		ctx := context.Background()

		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)

		Convey("It reports itself started", func() {
			stats := svc.GetStats(ctx)
			So(stats["started"], ShouldEqual, true)
			So(stats["driver"], ShouldEqual, config.DriverMemory)
			So(stats["active_referees"], ShouldEqual, 0)
		})

		Convey("Stop is idempotent", func() {
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.GetStats(ctx)["started"], ShouldEqual, false)
		})

		Reset(func() { _ = svc.Stop(ctx) })
	})
}

func TestService_Operations(t *testing.T) {
	Convey("Given a started service over a seeded store", t, func() {
		ctx := context.Background()
		mem := repository.NewMemory()
		seedStore(ctx, mem)
		svc := service.New(
			service.WithStore(mem),
			service.WithClock(func() time.Time { return now }),
			service.WithLogger(logger.Nop()),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("GetMetrics computes and caches", func() {
			snap, err := svc.GetMetrics(ctx, "r1", false)
			So(err, ShouldBeNil)
			So(snap.TotalCompleted, ShouldEqual, 1)
			So(snap.Time.AvgReviewTime, ShouldAlmostEqual, 7, 1e-9)

			_, ok, _ := mem.GetCacheEntry(ctx, "r1")
			So(ok, ShouldBeTrue)
		})

		Convey("Unknown referees are not found", func() {
			_, err := svc.GetMetrics(ctx, "ghost", false)
			So(errors.Is(err, model.ErrRefereeNotFound), ShouldBeTrue)
			_, err = svc.Refresh(ctx, "ghost")
			So(errors.Is(err, model.ErrRefereeNotFound), ShouldBeTrue)
		})

		Convey("Comparative operations run over the population", func() {
			rank, err := svc.Rank(ctx, "r1")
			So(err, ShouldBeNil)
			So(rank.PopulationSize, ShouldEqual, 3)
			So(rank.Percentiles.Speed, ShouldAlmostEqual, 83.3, 1e-9)

			peers, err := svc.FindPeers(ctx, "r1")
			So(err, ShouldBeNil)
			So(peers, ShouldResemble, []string{"r2", "r3"})

			top, err := svc.TopPerformers(ctx, 2, "quality")
			So(err, ShouldBeNil)
			So(len(top), ShouldEqual, 2)
			So(top[0].RefereeID, ShouldEqual, "r3")

			dist, err := svc.Distribution(ctx, "speed")
			So(err, ShouldBeNil)
			So(dist.N, ShouldEqual, 3)

			bench, err := svc.BenchmarkByJournal(ctx, "j1")
			So(err, ShouldBeNil)
			So(bench.SampleSize, ShouldEqual, 3)

			field, err := svc.BenchmarkByExpertise(ctx, "ml")
			So(err, ShouldBeNil)
			So(field.SampleSize, ShouldEqual, 3)

			cmp, err := svc.PeerComparison(ctx, "r1")
			So(err, ShouldBeNil)
			So(cmp.Peers, ShouldResemble, []string{"r2", "r3"})
			So(cmp.JournalAverage, ShouldNotBeNil)

			So(svc.InvalidateBenchmark(ctx, ""), ShouldBeNil)
			_, ok, _ := mem.GetBenchmark(ctx, "journal_j1")
			So(ok, ShouldBeFalse)
		})

		Convey("GetTrend sees the history point of a computation", func() {
			_, err := svc.GetMetrics(ctx, "r2", false)
			So(err, ShouldBeNil)
			trend, err := svc.GetTrend(ctx, "r2", 30)
			So(err, ShouldBeNil)
			So(len(trend.Points), ShouldEqual, 1)
			So(trend.Direction, ShouldEqual, model.StatusInsufficientData)
		})

		Convey("Refresh queues once and is processed by the workers", func() {
			ack, err := svc.Refresh(ctx, "r3")
			So(err, ShouldBeNil)
			So(ack.Status, ShouldBeIn, model.RefreshQueued, model.RefreshPending)

			deadline := time.Now().Add(2 * time.Second)
			var ok bool
			for time.Now().Before(deadline) {
				if _, ok, _ = mem.GetCacheEntry(ctx, "r3"); ok {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			So(ok, ShouldBeTrue)
		})
	})
}

// gatedStore blocks event reads until release is closed.
type gatedStore struct {
	*repository.Memory
	entered chan string
	release chan struct{}
}

func (g *gatedStore) GetReviewEvents(ctx context.Context, id string) ([]model.ReviewEvent, error) {
	select {
	case g.entered <- id:
	default:
	}
	<-g.release
	return g.Memory.GetReviewEvents(ctx, id)
}

func TestService_Backpressure(t *testing.T) {
	Convey("Given a stopped service", t, func() {
		ctx := context.Background()
		mem := repository.NewMemory()
		seedStore(ctx, mem)
		svc := service.New(service.WithStore(mem), service.WithLogger(logger.Nop()))
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Stop(ctx), ShouldBeNil)

		Convey("Refresh fails with ErrNotStarted", func() {
			_, err := svc.Refresh(ctx, "r1")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})

	Convey("Given one busy worker and a queue of one", t, func() {
		ctx := context.Background()
		mem := repository.NewMemory()
		seedStore(ctx, mem)
		store := &gatedStore{Memory: mem, entered: make(chan string, 8), release: make(chan struct{})}
		svc := service.New(
			service.WithStore(store),
			service.WithQueueSize(1),
			service.WithWorkerCount(1),
			service.WithLogger(logger.Nop()),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() {
			close(store.release)
			_ = svc.Stop(ctx)
		})

		first, err := svc.Refresh(ctx, "r1")
		So(err, ShouldBeNil)
		So(first.Status, ShouldEqual, model.RefreshQueued)
		So(first.RequestID, ShouldNotBeEmpty)

		select {
		case id := <-store.entered:
			So(id, ShouldEqual, "r1")
		case <-time.After(2 * time.Second):
			t.Fatal("worker never picked up the refresh")
		}

		Convey("A duplicate refresh is acknowledged without a second request", func() {
			again, err := svc.Refresh(ctx, "r1")
			So(err, ShouldBeNil)
			So(again.Status, ShouldEqual, model.RefreshPending)
			So(again.RequestID, ShouldBeEmpty)
		})

		Convey("Requests beyond capacity are rejected", func() {
			second, err := svc.Refresh(ctx, "r2")
			So(err, ShouldBeNil)
			So(second.Status, ShouldEqual, model.RefreshQueued)

			_, err = svc.Refresh(ctx, "r3")
			So(errors.Is(err, queue.ErrQueueFull), ShouldBeTrue)
			So(svc.GetStats(ctx)["queue_length"], ShouldEqual, 1)

			Convey("and the rejection leaves nothing marked in flight", func() {
				ack, err := svc.Refresh(ctx, "r3")
				So(errors.Is(err, queue.ErrQueueFull), ShouldBeTrue)
				So(ack.Status, ShouldBeEmpty)
			})
		})
	})
}
