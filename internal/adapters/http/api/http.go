// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/refbench/internal/adapters/mq/queue"
	"github.com/okian/refbench/internal/domain/comparative"
	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/internal/domain/scoring"
	"github.com/okian/refbench/internal/domain/snapcache"
	"github.com/okian/refbench/pkg/logger"
	"github.com/okian/refbench/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	RefereeDependencies
	PopulationDependencies
	BenchmarkDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	refereeHandler    *RefereeHandler
	populationHandler *PopulationHandler
	benchmarkHandler  *BenchmarkHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		refereeHandler:    NewRefereeHandler(deps),
		populationHandler: NewPopulationHandler(deps),
		benchmarkHandler:  NewBenchmarkHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /referees/{id}/metrics", MetricsMiddleware(s.refereeHandler.HandleGetMetrics, "metrics"))
	mux.HandleFunc("GET /referees/{id}/trend", MetricsMiddleware(s.refereeHandler.HandleGetTrend, "trend"))
	mux.HandleFunc("GET /referees/{id}/rank", MetricsMiddleware(s.refereeHandler.HandleGetRank, "rank"))
	mux.HandleFunc("GET /referees/{id}/peers", MetricsMiddleware(s.refereeHandler.HandleGetPeers, "peers"))
	mux.HandleFunc("GET /referees/{id}/comparison", MetricsMiddleware(s.refereeHandler.HandleGetComparison, "comparison"))
	mux.HandleFunc("POST /referees/{id}/refresh", MetricsMiddleware(s.refereeHandler.HandleRefresh, "refresh"))

	mux.HandleFunc("GET /top", MetricsMiddleware(s.populationHandler.HandleGetTop, "top"))
	mux.HandleFunc("GET /distribution/{metric}", MetricsMiddleware(s.populationHandler.HandleGetDistribution, "distribution"))

	mux.HandleFunc("GET /benchmarks/journals/{id}", MetricsMiddleware(s.benchmarkHandler.HandleGetJournal, "benchmark_journal"))
	mux.HandleFunc("GET /benchmarks/expertise/{area}", MetricsMiddleware(s.benchmarkHandler.HandleGetExpertise, "benchmark_expertise"))
	mux.HandleFunc("DELETE /benchmarks/{category}", MetricsMiddleware(s.benchmarkHandler.HandleInvalidate, "benchmark_invalidate"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps a service error onto its HTTP status.
func writeFailure(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrRefereeNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, snapcache.ErrInvalidDays),
		errors.Is(err, comparative.ErrInvalidLimit),
		errors.Is(err, comparative.ErrUnknownMetric),
		errors.Is(err, comparative.ErrEmptyKey),
		errors.Is(err, scoring.ErrUnknownCategory):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, queue.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		metrics.RecordErrorByComponent("api", "internal")
		logger.Get().Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// pathID extracts a non-blank path value.
func pathID(r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.PathValue(name))
	return v, v != ""
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, WrapKind("query."+name, ErrBadRequest, err)
	}
	return n, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, WrapKind("query."+name, ErrBadRequest, err)
	}
	return b, nil
}
