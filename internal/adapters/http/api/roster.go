package api

import (
	"context"
	"net/http"

	"github.com/okian/catador/internal/domain/model"
)

// RosterDependencies defines the host setup operations: tag bindings and
// the participant roster.
type RosterDependencies interface {
	AddTag(ctx context.Context, eventID model.EventID, tagID model.TagID, tagName string, cardID model.CardID) (model.TagDefinition, error)
	ListTags(ctx context.Context, eventID model.EventID) ([]model.TagDefinition, error)
	RemoveTag(ctx context.Context, eventID model.EventID, tagID model.TagID) error
	AddParticipant(ctx context.Context, eventID model.EventID, name string) (model.Participant, error)
	ListParticipants(ctx context.Context, eventID model.EventID) ([]model.Participant, error)
	RemoveParticipant(ctx context.Context, eventID model.EventID, id model.ParticipantID) error
}

// RosterHandler handles tag and participant requests.
type RosterHandler struct {
	deps RosterDependencies
	responder
}

// NewRosterHandler creates a new roster handler.
func NewRosterHandler(deps RosterDependencies, r responder) *RosterHandler {
	return &RosterHandler{deps: deps, responder: r}
}

type addTagRequest struct {
	TagID   model.TagID  `json:"tagId"`
	TagName string       `json:"tagName"`
	CardID  model.CardID `json:"cardId"`
}

type addParticipantRequest struct {
	Name string `json:"name"`
}

// HandleAddTag handles POST /events/{eventID}/tags requests.
func (h *RosterHandler) HandleAddTag(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_tag"
	var req addTagRequest
	if err := decode(r, op, &req); err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	tag, err := h.deps.AddTag(r.Context(), eventID(r), req.TagID, req.TagName, req.CardID)
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

// HandleListTags handles GET /events/{eventID}/tags requests.
func (h *RosterHandler) HandleListTags(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_tags"
	tags, err := h.deps.ListTags(r.Context(), eventID(r))
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// HandleRemoveTag handles DELETE /events/{eventID}/tags/{tagID} requests.
func (h *RosterHandler) HandleRemoveTag(w http.ResponseWriter, r *http.Request) {
	const op = "api.remove_tag"
	if err := h.deps.RemoveTag(r.Context(), eventID(r), model.TagID(r.PathValue("tagID"))); err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddParticipant handles POST /events/{eventID}/participants requests.
func (h *RosterHandler) HandleAddParticipant(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_participant"
	var req addParticipantRequest
	if err := decode(r, op, &req); err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	p, err := h.deps.AddParticipant(r.Context(), eventID(r), req.Name)
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleListParticipants handles GET /events/{eventID}/participants requests.
func (h *RosterHandler) HandleListParticipants(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_participants"
	list, err := h.deps.ListParticipants(r.Context(), eventID(r))
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleRemoveParticipant handles DELETE /events/{eventID}/participants/{participantID}.
func (h *RosterHandler) HandleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	const op = "api.remove_participant"
	id := model.ParticipantID(r.PathValue("participantID"))
	if err := h.deps.RemoveParticipant(r.Context(), eventID(r), id); err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
