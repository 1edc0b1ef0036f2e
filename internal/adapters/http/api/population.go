package api

import (
	"context"
	"net/http"

	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/internal/domain/scoring"
)

const defaultTopLimit = 10

// PopulationDependencies defines the population-wide read operations.
type PopulationDependencies interface {
	TopPerformers(ctx context.Context, limit int, category string) ([]model.TopPerformer, error)
	Distribution(ctx context.Context, metric string) (model.DistributionStats, error)
}

// PopulationHandler serves top lists and score distributions.
type PopulationHandler struct {
	deps PopulationDependencies
}

// NewPopulationHandler creates a new population handler.
func NewPopulationHandler(deps PopulationDependencies) *PopulationHandler {
	return &PopulationHandler{deps: deps}
}

type topResponse struct {
	Category   string               `json:"category"`
	Limit      int                  `json:"limit"`
	Performers []model.TopPerformer `json:"performers"`
}

// HandleGetTop handles GET /top?limit=N&category=C.
func (h *PopulationHandler) HandleGetTop(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_top"
	limit, err := queryInt(r, "limit", defaultTopLimit)
	if err != nil {
		writeFailure(r.Context(), w, op, err)
		return
	}
	category := r.URL.Query().Get("category")
	if category == "" {
		category = string(scoring.Overall)
	}
	top, err := h.deps.TopPerformers(r.Context(), limit, category)
	if err != nil {
		writeFailure(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, topResponse{Category: category, Limit: limit, Performers: top})
}

// HandleGetDistribution handles GET /distribution/{metric}.
func (h *PopulationHandler) HandleGetDistribution(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_distribution"
	metric, ok := pathID(r, "metric")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	dist, err := h.deps.Distribution(r.Context(), metric)
	if err != nil {
		writeFailure(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}
