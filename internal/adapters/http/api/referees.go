package api

import (
	"context"
	"net/http"

	"github.com/okian/refbench/internal/domain/model"
)

const defaultTrendDays = 30

// RefereeDependencies defines the per-referee operations.
type RefereeDependencies interface {
	GetMetrics(ctx context.Context, id string, forceRefresh bool) (model.MetricsSnapshot, error)
	GetTrend(ctx context.Context, id string, days int) (model.TrendResult, error)
	Rank(ctx context.Context, id string) (model.RankResult, error)
	FindPeers(ctx context.Context, id string) ([]string, error)
	PeerComparison(ctx context.Context, id string) (model.PeerComparison, error)
	Refresh(ctx context.Context, id string) (model.RefreshAck, error)
}

// RefereeHandler serves /referees/{id}/...
type RefereeHandler struct {
	deps RefereeDependencies
}

// NewRefereeHandler creates a new referee handler.
func NewRefereeHandler(deps RefereeDependencies) *RefereeHandler {
	return &RefereeHandler{deps: deps}
}

type peersResponse struct {
	RefereeID string   `json:"referee_id"`
	Peers     []string `json:"peers"`
}

// HandleGetMetrics handles GET /referees/{id}/metrics[?force_refresh=true].
func (h *RefereeHandler) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_metrics"
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	force, err := queryBool(r, "force_refresh")
	if err != nil {
		writeFailure(r.Context(), w, op, err)
		return
	}
	snap, err := h.deps.GetMetrics(r.Context(), id, force)
	if err != nil {
		writeFailure(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleGetTrend handles GET /referees/{id}/trend?days=N.
func (h *RefereeHandler) HandleGetTrend(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_trend"
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	days, err := queryInt(r, "days", defaultTrendDays)
	if err != nil {
		writeFailure(r.Context(), w, op, err)
		return
	}
	trend, err := h.deps.GetTrend(r.Context(), id, days)
	if err != nil {
		writeFailure(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

// HandleGetRank handles GET /referees/{id}/rank.
func (h *RefereeHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	rank, err := h.deps.Rank(r.Context(), id)
	if err != nil {
		writeFailure(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rank)
}

// HandleGetPeers handles GET /referees/{id}/peers.
func (h *RefereeHandler) HandleGetPeers(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_peers"
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	peers, err := h.deps.FindPeers(r.Context(), id)
	if err != nil {
		writeFailure(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, peersResponse{RefereeID: id, Peers: peers})
}

// HandleGetComparison handles GET /referees/{id}/comparison.
func (h *RefereeHandler) HandleGetComparison(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_comparison"
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	cmp, err := h.deps.PeerComparison(r.Context(), id)
	if err != nil {
		writeFailure(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// HandleRefresh handles POST /referees/{id}/refresh. A queued request
// answers 202; a referee already in flight answers 200.
func (h *RefereeHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh"
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	ack, err := h.deps.Refresh(r.Context(), id)
	if err != nil {
		writeFailure(r.Context(), w, op, err)
		return
	}
	status := http.StatusAccepted
	if ack.Status == model.RefreshPending {
		status = http.StatusOK
	}
	writeJSON(w, status, ack)
}
