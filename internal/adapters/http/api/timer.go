package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/catador/internal/domain/model"
)

// TimerDependencies defines the host countdown controls.
type TimerDependencies interface {
	StartTimer(ctx context.Context, eventID model.EventID, d time.Duration) (model.TimerSnapshot, error)
	PauseTimer(ctx context.Context, eventID model.EventID) (model.TimerSnapshot, error)
	ResumeTimer(ctx context.Context, eventID model.EventID) (model.TimerSnapshot, error)
	ExtendTimer(ctx context.Context, eventID model.EventID, d time.Duration) (model.TimerSnapshot, error)
	StopTimer(ctx context.Context, eventID model.EventID) (model.TimerSnapshot, error)
	TimerState(ctx context.Context, eventID model.EventID) (model.TimerSnapshot, error)
}

// TimerHandler handles timer requests.
type TimerHandler struct {
	deps TimerDependencies
	responder
}

// NewTimerHandler creates a new timer handler.
func NewTimerHandler(deps TimerDependencies, r responder) *TimerHandler {
	return &TimerHandler{deps: deps, responder: r}
}

type minutesRequest struct {
	Minutes float64 `json:"minutes"`
}

// HandleState handles GET /events/{eventID}/timer requests.
func (h *TimerHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "api.timer_state", h.deps.TimerState)
}

// HandleStart handles POST /events/{eventID}/timer/start requests.
func (h *TimerHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.withMinutes(w, r, "api.timer_start", h.deps.StartTimer)
}

// HandlePause handles POST /events/{eventID}/timer/pause requests.
func (h *TimerHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "api.timer_pause", h.deps.PauseTimer)
}

// HandleResume handles POST /events/{eventID}/timer/resume requests.
func (h *TimerHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "api.timer_resume", h.deps.ResumeTimer)
}

// HandleExtend handles POST /events/{eventID}/timer/extend requests.
func (h *TimerHandler) HandleExtend(w http.ResponseWriter, r *http.Request) {
	h.withMinutes(w, r, "api.timer_extend", h.deps.ExtendTimer)
}

// HandleStop handles POST /events/{eventID}/timer/stop requests.
func (h *TimerHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "api.timer_stop", h.deps.StopTimer)
}

func (h *TimerHandler) respond(w http.ResponseWriter, r *http.Request, op string,
	fn func(context.Context, model.EventID) (model.TimerSnapshot, error),
) {
	snap, err := fn(r.Context(), eventID(r))
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *TimerHandler) withMinutes(w http.ResponseWriter, r *http.Request, op string,
	fn func(context.Context, model.EventID, time.Duration) (model.TimerSnapshot, error),
) {
	var req minutesRequest
	if err := decode(r, op, &req); err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	d, err := minutes(op, req.Minutes)
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	snap, err := fn(r.Context(), eventID(r), d)
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
