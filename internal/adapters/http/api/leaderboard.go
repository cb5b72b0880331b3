package api

import (
	"context"
	"net/http"

	service "github.com/okian/catador/internal/app"
	"github.com/okian/catador/internal/domain/model"
)

// LeaderboardDependencies defines the solution and results operations.
type LeaderboardDependencies interface {
	SetSolution(ctx context.Context, eventID model.EventID, assignments map[model.TagID]model.CardID) (*model.SessionProgress, error)
	Reveal(ctx context.Context, eventID model.EventID) (*service.Leaderboard, error)
	GetLeaderboard(ctx context.Context, eventID model.EventID) (*service.Leaderboard, error)
}

// LeaderboardHandler handles solution, reveal and leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
	responder
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, r responder) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps, responder: r}
}

// solutionRequest is the body of PUT /events/{eventID}/solution. Without
// assignments the solution is derived from the tag bindings.
type solutionRequest struct {
	Assignments map[model.TagID]model.CardID `json:"assignments,omitempty"`
}

// HandleSetSolution handles PUT /events/{eventID}/solution requests.
func (h *LeaderboardHandler) HandleSetSolution(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_solution"
	var req solutionRequest
	if err := decode(r, op, &req); err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	sol, err := h.deps.SetSolution(r.Context(), eventID(r), req.Assignments)
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sol)
}

// HandleReveal handles POST /events/{eventID}/reveal requests.
func (h *LeaderboardHandler) HandleReveal(w http.ResponseWriter, r *http.Request) {
	const op = "api.reveal"
	board, err := h.deps.Reveal(r.Context(), eventID(r))
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// HandleGetLeaderboard handles GET /events/{eventID}/leaderboard requests.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	board, err := h.deps.GetLeaderboard(r.Context(), eventID(r))
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}
