package api

import (
	"context"
	"net/http"

	"github.com/okian/refbench/internal/domain/model"
)

// BenchmarkDependencies defines the benchmark operations.
type BenchmarkDependencies interface {
	BenchmarkByJournal(ctx context.Context, journalID string) (model.BenchmarkRecord, error)
	BenchmarkByExpertise(ctx context.Context, area string) (model.BenchmarkRecord, error)
	InvalidateBenchmark(ctx context.Context, category string) error
}

// BenchmarkHandler serves /benchmarks/...
type BenchmarkHandler struct {
	deps BenchmarkDependencies
}

// NewBenchmarkHandler creates a new benchmark handler.
func NewBenchmarkHandler(deps BenchmarkDependencies) *BenchmarkHandler {
	return &BenchmarkHandler{deps: deps}
}

// HandleGetJournal handles GET /benchmarks/journals/{id}.
func (h *BenchmarkHandler) HandleGetJournal(w http.ResponseWriter, r *http.Request) {
	const op = "api.benchmark_journal"
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	rec, err := h.deps.BenchmarkByJournal(r.Context(), id)
	if err != nil {
		writeFailure(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleGetExpertise handles GET /benchmarks/expertise/{area}.
func (h *BenchmarkHandler) HandleGetExpertise(w http.ResponseWriter, r *http.Request) {
	const op = "api.benchmark_expertise"
	area, ok := pathID(r, "area")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	rec, err := h.deps.BenchmarkByExpertise(r.Context(), area)
	if err != nil {
		writeFailure(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleInvalidate handles DELETE /benchmarks/{category}. The category
// "all" drops every cached benchmark.
func (h *BenchmarkHandler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	const op = "api.benchmark_invalidate"
	category, ok := pathID(r, "category")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if category == "all" {
		category = ""
	}
	if err := h.deps.InvalidateBenchmark(r.Context(), category); err != nil {
		writeFailure(r.Context(), w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
