package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/refbench/internal/adapters/http/api"
	"github.com/okian/refbench/internal/adapters/mq/queue"
	"github.com/okian/refbench/internal/domain/comparative"
	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/internal/domain/scoring"
	"github.com/okian/refbench/internal/domain/snapcache"
	"github.com/okian/refbench/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// mockDependencies records the arguments of the last call and returns
// canned results or err.
type mockDependencies struct {
	err error

	lastID       string
	lastForce    bool
	lastDays     int
	lastLimit    int
	lastCategory string
	lastMetric   string
	invalidated  []string

	ack model.RefreshAck
}

func (m *mockDependencies) notFound(id string) error {
	if id == "ghost" {
		return fmt.Errorf("%w: %s", model.ErrRefereeNotFound, id)
	}
	return m.err
}

func (m *mockDependencies) GetMetrics(_ context.Context, id string, force bool) (model.MetricsSnapshot, error) {
	m.lastID, m.lastForce = id, force
	if err := m.notFound(id); err != nil {
		return model.MetricsSnapshot{}, err
	}
	return model.MetricsSnapshot{RefereeID: id, TotalCompleted: 3}, nil
}

func (m *mockDependencies) GetTrend(_ context.Context, id string, days int) (model.TrendResult, error) {
	m.lastID, m.lastDays = id, days
	if days <= 0 {
		return model.TrendResult{}, snapcache.ErrInvalidDays
	}
	if err := m.notFound(id); err != nil {
		return model.TrendResult{}, err
	}
	return model.TrendResult{RefereeID: id, Days: days, Direction: model.TrendStable}, nil
}

func (m *mockDependencies) Rank(_ context.Context, id string) (model.RankResult, error) {
	m.lastID = id
	if err := m.notFound(id); err != nil {
		return model.RankResult{}, err
	}
	return model.RankResult{RefereeID: id, PopulationSize: 4, Percentiles: model.PercentileRanks{Overall: 62.5}}, nil
}

func (m *mockDependencies) FindPeers(_ context.Context, id string) ([]string, error) {
	m.lastID = id
	if err := m.notFound(id); err != nil {
		return nil, err
	}
	return []string{"p1", "p2"}, nil
}

func (m *mockDependencies) PeerComparison(_ context.Context, id string) (model.PeerComparison, error) {
	m.lastID = id
	if err := m.notFound(id); err != nil {
		return model.PeerComparison{}, err
	}
	return model.PeerComparison{Peers: []string{"p1"}, Insights: []string{"Review quality is highly consistent."}}, nil
}

func (m *mockDependencies) Refresh(_ context.Context, id string) (model.RefreshAck, error) {
	m.lastID = id
	if err := m.notFound(id); err != nil {
		return model.RefreshAck{}, err
	}
	return m.ack, nil
}

func (m *mockDependencies) TopPerformers(_ context.Context, limit int, category string) ([]model.TopPerformer, error) {
	m.lastLimit, m.lastCategory = limit, category
	if limit < 1 {
		return nil, comparative.ErrInvalidLimit
	}
	if _, err := scoring.ParseCategory(category); err != nil {
		return nil, err
	}
	return []model.TopPerformer{{Rank: 1, RefereeID: "r1", Score: 9}}, m.err
}

func (m *mockDependencies) Distribution(_ context.Context, metric string) (model.DistributionStats, error) {
	m.lastMetric = metric
	if _, err := scoring.ParseCategory(metric); err != nil {
		return model.DistributionStats{}, fmt.Errorf("%w: %q", comparative.ErrUnknownMetric, metric)
	}
	return model.DistributionStats{Metric: metric, Status: model.StatusInsufficientData}, nil
}

func (m *mockDependencies) BenchmarkByJournal(_ context.Context, id string) (model.BenchmarkRecord, error) {
	m.lastID = id
	return model.BenchmarkRecord{Category: "journal_" + id, Status: model.StatusOK, SampleSize: 2}, m.err
}

func (m *mockDependencies) BenchmarkByExpertise(_ context.Context, area string) (model.BenchmarkRecord, error) {
	m.lastID = area
	return model.BenchmarkRecord{Category: "field_" + area, Status: model.StatusOK, SampleSize: 1}, m.err
}

func (m *mockDependencies) InvalidateBenchmark(_ context.Context, category string) error {
	m.invalidated = append(m.invalidated, category)
	return m.err
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats(context.Context) map[string]any {
	return m.stats
}

func newMux(deps *mockDependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"started": true}}).Register(context.Background(), mux)
	return mux
}

func serve(mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("The health endpoint serves the Prometheus exposition", func() {
			w := serve(mux, http.MethodGet, "/healthz")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "refbench_")
		})

		Convey("The stats endpoint returns the provider's map", func() {
			w := serve(mux, http.MethodGet, "/stats")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("Routes reject the wrong method", func() {
			w := serve(mux, http.MethodPost, "/referees/r1/metrics")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestRefereeHandler(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("GET metrics passes the id and the force flag", func() {
			w := serve(mux, http.MethodGet, "/referees/r1/metrics?force_refresh=true")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastID, ShouldEqual, "r1")
			So(deps.lastForce, ShouldBeTrue)
			So(decode(w)["referee_id"], ShouldEqual, "r1")
		})

		Convey("A malformed force flag is a bad request", func() {
			w := serve(mux, http.MethodGet, "/referees/r1/metrics?force_refresh=maybe")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("An unknown referee is a 404", func() {
			for _, path := range []string{"metrics", "trend", "rank", "peers", "comparison"} {
				w := serve(mux, http.MethodGet, "/referees/ghost/"+path)
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decode(w)["code"], ShouldEqual, "not_found")
			}
		})

		Convey("GET trend defaults to thirty days", func() {
			w := serve(mux, http.MethodGet, "/referees/r1/trend")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastDays, ShouldEqual, 30)
		})

		Convey("GET trend rejects bad windows", func() {
			So(serve(mux, http.MethodGet, "/referees/r1/trend?days=abc").Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodGet, "/referees/r1/trend?days=0").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET rank returns percentiles", func() {
			w := serve(mux, http.MethodGet, "/referees/r1/rank")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["population_size"], ShouldEqual, 4.0)
			So(body["percentiles"].(map[string]any)["overall"], ShouldEqual, 62.5)
		})

		Convey("GET peers wraps the id list", func() {
			w := serve(mux, http.MethodGet, "/referees/r1/peers")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["peers"], ShouldResemble, []any{"p1", "p2"})
		})

		Convey("GET comparison returns insights", func() {
			w := serve(mux, http.MethodGet, "/referees/r1/comparison")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "highly consistent")
		})

		Convey("POST refresh answers 202 when queued", func() {
			deps.ack = model.RefreshAck{RequestID: "req-1", RefereeID: "r1", Status: model.RefreshQueued}
			w := serve(mux, http.MethodPost, "/referees/r1/refresh")
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(decode(w)["status"], ShouldEqual, model.RefreshQueued)
		})

		Convey("POST refresh answers 200 when already queued", func() {
			deps.ack = model.RefreshAck{RefereeID: "r1", Status: model.RefreshPending}
			w := serve(mux, http.MethodPost, "/referees/r1/refresh")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldNotContainSubstring, "request_id")
		})

		Convey("POST refresh answers 429 on backpressure", func() {
			deps.err = queue.ErrQueueFull
			w := serve(mux, http.MethodPost, "/referees/r1/refresh")
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(decode(w)["code"], ShouldEqual, "backpressure")
		})

		Convey("Unexpected failures are a 500", func() {
			deps.err = errors.New("disk on fire")
			w := serve(mux, http.MethodGet, "/referees/r1/metrics")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(decode(w)["message"], ShouldContainSubstring, "disk on fire")
		})

		Convey("Cancelled requests are a 503", func() {
			deps.err = fmt.Errorf("load: %w", context.Canceled)
			w := serve(mux, http.MethodGet, "/referees/r1/rank")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestPopulationHandler(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("GET top applies defaults", func() {
			w := serve(mux, http.MethodGet, "/top")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastLimit, ShouldEqual, 10)
			So(deps.lastCategory, ShouldEqual, "overall")
			body := decode(w)
			So(body["category"], ShouldEqual, "overall")
			So(len(body["performers"].([]any)), ShouldEqual, 1)
		})

		Convey("GET top passes limit and category", func() {
			w := serve(mux, http.MethodGet, "/top?limit=5&category=speed")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastLimit, ShouldEqual, 5)
			So(deps.lastCategory, ShouldEqual, "speed")
		})

		Convey("GET top rejects bad input", func() {
			So(serve(mux, http.MethodGet, "/top?limit=0").Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodGet, "/top?limit=ten").Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodGet, "/top?category=charisma").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET distribution reports insufficient data as a result", func() {
			w := serve(mux, http.MethodGet, "/distribution/quality")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastMetric, ShouldEqual, "quality")
			So(decode(w)["status"], ShouldEqual, model.StatusInsufficientData)
		})

		Convey("GET distribution rejects unknown metrics", func() {
			w := serve(mux, http.MethodGet, "/distribution/charisma")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["message"], ShouldContainSubstring, "unknown metric")
		})
	})
}

func TestBenchmarkHandler(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("GET journal benchmark", func() {
			w := serve(mux, http.MethodGet, "/benchmarks/journals/j1")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastID, ShouldEqual, "j1")
			So(decode(w)["category"], ShouldEqual, "journal_j1")
		})

		Convey("GET expertise benchmark", func() {
			w := serve(mux, http.MethodGet, "/benchmarks/expertise/ecology")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["sample_size"], ShouldEqual, 1.0)
		})

		Convey("An empty key is a bad request", func() {
			deps.err = fmt.Errorf("%w: journal", comparative.ErrEmptyKey)
			w := serve(mux, http.MethodGet, "/benchmarks/journals/j1")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("DELETE drops one category or all of them", func() {
			So(serve(mux, http.MethodDelete, "/benchmarks/journal_j1").Code, ShouldEqual, http.StatusNoContent)
			So(serve(mux, http.MethodDelete, "/benchmarks/all").Code, ShouldEqual, http.StatusNoContent)
			So(deps.invalidated, ShouldResemble, []string{"journal_j1", ""})
		})

		Convey("DELETE failures are a 500", func() {
			deps.err = errors.New("store down")
			w := serve(mux, http.MethodDelete, "/benchmarks/all")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(strings.Contains(w.Body.String(), "api.benchmark_invalidate"), ShouldBeTrue)
		})
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("API errors unwrap to both kind and cause", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)
		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "api.op: bad request: boom")
		So(api.Wrap("api.op", nil), ShouldBeNil)
		So(api.NewKind("api.op", api.ErrBackpressure).Error(), ShouldEqual, "api.op: backpressure")
	})
}
