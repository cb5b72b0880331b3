package api

import (
	"context"
	"net/http"

	"github.com/okian/catador/internal/domain/model"
)

// EventDependencies defines the interface for event operations.
type EventDependencies interface {
	CreateEvent(ctx context.Context, name, date string) (*model.Event, error)
	GetEvent(ctx context.Context, id model.EventID) (*model.Event, error)
	GetEventByPIN(ctx context.Context, pin string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]*model.Event, error)
	DeleteEvent(ctx context.Context, id model.EventID) error
	Deck() []model.Card
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
	responder
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies, r responder) *EventsHandler {
	return &EventsHandler{deps: deps, responder: r}
}

// createEventRequest is the body of POST /events.
type createEventRequest struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

// HandleCreate handles POST /events requests.
func (h *EventsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_event"
	var req createEventRequest
	if err := decode(r, op, &req); err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	e, err := h.deps.CreateEvent(r.Context(), req.Name, req.Date)
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// HandleList handles GET /events requests.
func (h *EventsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_events"
	events, err := h.deps.ListEvents(r.Context())
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleGet handles GET /events/{eventID} requests.
func (h *EventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_event"
	e, err := h.deps.GetEvent(r.Context(), eventID(r))
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleGetByPIN handles GET /pins/{pin} requests.
func (h *EventsHandler) HandleGetByPIN(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_event_by_pin"
	e, err := h.deps.GetEventByPIN(r.Context(), r.PathValue("pin"))
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleDelete handles DELETE /events/{eventID} requests.
func (h *EventsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_event"
	if err := h.deps.DeleteEvent(r.Context(), eventID(r)); err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeck handles GET /deck requests.
func (h *EventsHandler) HandleDeck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Deck())
}
