package api

import (
	"context"
	"net/http"

	service "github.com/okian/catador/internal/app"
	"github.com/okian/catador/internal/domain/model"
)

// SessionDependencies defines the participant session operations.
type SessionDependencies interface {
	NewSession(ctx context.Context, eventID model.EventID) (model.SessionID, error)
	GetSessionState(ctx context.Context, eventID model.EventID, sessionID model.SessionID) (service.SessionView, error)
	SubmitNameSelection(ctx context.Context, eventID model.EventID, sessionID model.SessionID, name string) (service.SessionView, error)
	AssignCard(ctx context.Context, eventID model.EventID, sessionID model.SessionID, tag model.TagID, card model.CardID) (service.SessionView, error)
	UnassignCard(ctx context.Context, eventID model.EventID, sessionID model.SessionID, tag model.TagID) (service.SessionView, error)
	RateTag(ctx context.Context, eventID model.EventID, sessionID model.SessionID, tag model.TagID, rating int) (service.SessionView, error)
	ReorderTags(ctx context.Context, eventID model.EventID, sessionID model.SessionID, order []model.TagID) (service.SessionView, error)
	Finalize(ctx context.Context, eventID model.EventID, sessionID model.SessionID) (service.SessionView, error)
	NameAvailable(ctx context.Context, eventID model.EventID, name string, excluding model.SessionID) (bool, error)
}

// SessionsHandler handles participant session requests.
type SessionsHandler struct {
	deps SessionDependencies
	responder
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies, r responder) *SessionsHandler {
	return &SessionsHandler{deps: deps, responder: r}
}

type (
	sessionResponse struct {
		SessionID model.SessionID `json:"sessionId"`
	}
	nameRequest struct {
		Name string `json:"name"`
	}
	nameResponse struct {
		Name      string `json:"name"`
		Available bool   `json:"available"`
	}
	assignRequest struct {
		CardID model.CardID `json:"cardId"`
	}
	rateRequest struct {
		Rating int `json:"rating"`
	}
	orderRequest struct {
		Order []model.TagID `json:"order"`
	}
)

// HandleCreate handles POST /events/{eventID}/sessions requests.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_session"
	id, err := h.deps.NewSession(r.Context(), eventID(r))
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: id})
}

// HandleGet handles GET /events/{eventID}/sessions/{sessionID} requests.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_session"
	h.view(w, r, op)(h.deps.GetSessionState(r.Context(), eventID(r), sessionID(r)))
}

// HandleSelectName handles POST /events/{eventID}/sessions/{sessionID}/name.
func (h *SessionsHandler) HandleSelectName(w http.ResponseWriter, r *http.Request) {
	const op = "api.select_name"
	var req nameRequest
	if err := decode(r, op, &req); err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	h.view(w, r, op)(h.deps.SubmitNameSelection(r.Context(), eventID(r), sessionID(r), req.Name))
}

// HandleAssign handles PUT /events/{eventID}/sessions/{sessionID}/assignments/{tagID}.
func (h *SessionsHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	const op = "api.assign_card"
	var req assignRequest
	if err := decode(r, op, &req); err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	h.view(w, r, op)(h.deps.AssignCard(r.Context(), eventID(r), sessionID(r), tagID(r), req.CardID))
}

// HandleUnassign handles DELETE /events/{eventID}/sessions/{sessionID}/assignments/{tagID}.
func (h *SessionsHandler) HandleUnassign(w http.ResponseWriter, r *http.Request) {
	const op = "api.unassign_card"
	h.view(w, r, op)(h.deps.UnassignCard(r.Context(), eventID(r), sessionID(r), tagID(r)))
}

// HandleRate handles PUT /events/{eventID}/sessions/{sessionID}/ratings/{tagID}.
func (h *SessionsHandler) HandleRate(w http.ResponseWriter, r *http.Request) {
	const op = "api.rate_tag"
	var req rateRequest
	if err := decode(r, op, &req); err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	h.view(w, r, op)(h.deps.RateTag(r.Context(), eventID(r), sessionID(r), tagID(r), req.Rating))
}

// HandleReorder handles PUT /events/{eventID}/sessions/{sessionID}/order.
func (h *SessionsHandler) HandleReorder(w http.ResponseWriter, r *http.Request) {
	const op = "api.reorder_tags"
	var req orderRequest
	if err := decode(r, op, &req); err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	h.view(w, r, op)(h.deps.ReorderTags(r.Context(), eventID(r), sessionID(r), req.Order))
}

// HandleFinalize handles POST /events/{eventID}/sessions/{sessionID}/finalize.
func (h *SessionsHandler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	const op = "api.finalize"
	h.view(w, r, op)(h.deps.Finalize(r.Context(), eventID(r), sessionID(r)))
}

// HandleNameAvailable handles GET /events/{eventID}/names/{name}?exclude=.
func (h *SessionsHandler) HandleNameAvailable(w http.ResponseWriter, r *http.Request) {
	const op = "api.name_available"
	name := r.PathValue("name")
	exclude := model.SessionID(r.URL.Query().Get("exclude"))
	ok, err := h.deps.NameAvailable(r.Context(), eventID(r), name, exclude)
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, nameResponse{Name: name, Available: ok})
}

// view returns a writer for the result of a session operation.
func (h *SessionsHandler) view(w http.ResponseWriter, r *http.Request, op string) func(service.SessionView, error) {
	return func(v service.SessionView, err error) {
		if err != nil {
			h.fail(r.Context(), w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func tagID(r *http.Request) model.TagID {
	return model.TagID(r.PathValue("tagID"))
}
