package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
)

const (
	pinAttempts      = 16
	maxEventName     = 80
	maxTagName       = 60
	eventDateLayout  = time.DateOnly
	pinDigits        = 5
	pinSpace         = 100000
	maxTagIDLength   = 32
	maxEventsPerList = 500
)

// CreateEvent creates an event with a fresh 5-digit PIN.
func (s *Service) CreateEvent(ctx context.Context, name, date string) (*model.Event, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	name = strings.Join(strings.Fields(name), " ")
	if name == "" || utf8.RuneCountInString(name) > maxEventName {
		return nil, fmt.Errorf("%w: event name must be 1..%d characters", model.ErrInvalidInput, maxEventName)
	}
	date = strings.TrimSpace(date)
	if date != "" {
		if _, err := time.Parse(eventDateLayout, date); err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", model.ErrInvalidInput)
		}
	}

	for attempt := 0; attempt < pinAttempts; attempt++ {
		e := &model.Event{
			ID:        model.EventID(uuid.NewString()),
			Name:      name,
			Date:      date,
			PIN:       fmt.Sprintf("%0*d", pinDigits, rand.IntN(pinSpace)),
			Active:    true,
			CreatedAt: s.now(),
		}
		err := s.store.CreateEvent(ctx, e)
		if errors.Is(err, model.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, storeError("create event", err)
		}
		s.logger.Info(ctx, "event created",
			logger.String("event_id", string(e.ID)),
			logger.String("pin", e.PIN),
		)
		return e, nil
	}
	return nil, fmt.Errorf("create event: no free pin after %d attempts: %w", pinAttempts, model.ErrConflict)
}

// GetEvent returns an event with its timer brought up to date.
func (s *Service) GetEvent(ctx context.Context, id model.EventID) (*model.Event, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	if _, err := s.timers.State(ctx, id); err != nil {
		return nil, err
	}
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, storeError("get event", err)
	}
	return e, nil
}

// GetEventByPIN resolves the public lookup code of an event.
func (s *Service) GetEventByPIN(ctx context.Context, pin string) (*model.Event, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	e, err := s.store.GetEventByPIN(ctx, strings.TrimSpace(pin))
	if err != nil {
		return nil, storeError("get event by pin", err)
	}
	return s.GetEvent(ctx, e.ID)
}

// ListEvents returns events newest first.
func (s *Service) ListEvents(ctx context.Context) ([]*model.Event, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, storeError("list events", err)
	}
	if len(events) > maxEventsPerList {
		events = events[:maxEventsPerList]
	}
	return events, nil
}

// DeleteEvent removes an event with everything attached to it.
func (s *Service) DeleteEvent(ctx context.Context, id model.EventID) error {
	if err := s.running(); err != nil {
		return err
	}
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return storeError("delete event", err)
	}
	s.timers.Forget(id)
	s.forgetMachines(id)
	s.logger.Info(ctx, "event deleted", logger.String("event_id", string(id)))
	return nil
}

// Deck returns the Spanish deck cards can be bound from.
func (s *Service) Deck() []model.Card {
	return model.SpanishDeck()
}

// AddTag binds a wine label to a card. Tags are locked once the timer has
// been started.
func (s *Service) AddTag(ctx context.Context, eventID model.EventID, tagID model.TagID, tagName string, cardID model.CardID) (model.TagDefinition, error) {
	if err := s.running(); err != nil {
		return model.TagDefinition{}, err
	}
	if _, err := s.editableTags(ctx, eventID); err != nil {
		return model.TagDefinition{}, err
	}
	tagID = model.TagID(strings.TrimSpace(string(tagID)))
	if tagID == "" || len(tagID) > maxTagIDLength {
		return model.TagDefinition{}, fmt.Errorf("%w: tag id must be 1..%d characters", model.ErrInvalidInput, maxTagIDLength)
	}
	tagName = strings.Join(strings.Fields(tagName), " ")
	if tagName == "" {
		tagName = string(tagID)
	}
	if utf8.RuneCountInString(tagName) > maxTagName {
		return model.TagDefinition{}, fmt.Errorf("%w: tag name longer than %d characters", model.ErrInvalidInput, maxTagName)
	}
	card, ok := model.LookupCard(cardID)
	if !ok {
		return model.TagDefinition{}, fmt.Errorf("%w: %s", model.ErrUnknownCard, cardID)
	}

	tag := model.TagDefinition{
		ID:       uuid.NewString(),
		EventID:  eventID,
		TagID:    tagID,
		TagName:  tagName,
		CardID:   card.ID,
		CardName: card.Name,
	}
	if err := s.store.AddTag(ctx, tag); err != nil {
		return model.TagDefinition{}, storeError("add tag", err)
	}
	return tag, nil
}

// ListTags returns the event's tag definitions ordered by tag id.
func (s *Service) ListTags(ctx context.Context, eventID model.EventID) ([]model.TagDefinition, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, storeError("get event", err)
	}
	tags, err := s.store.ListTags(ctx, eventID)
	if err != nil {
		return nil, storeError("list tags", err)
	}
	return tags, nil
}

// RemoveTag deletes a tag definition while tags are still editable.
func (s *Service) RemoveTag(ctx context.Context, eventID model.EventID, tagID model.TagID) error {
	if err := s.running(); err != nil {
		return err
	}
	if _, err := s.editableTags(ctx, eventID); err != nil {
		return err
	}
	held, err := s.tagAssigned(ctx, eventID, tagID)
	if err != nil {
		return err
	}
	if held {
		return fmt.Errorf("%w: %s holds a card", model.ErrTagsLocked, tagID)
	}
	if err := s.store.DeleteTag(ctx, eventID, tagID); err != nil {
		return storeError("delete tag", err)
	}
	return nil
}

// tagAssigned reports whether any participant session holds a card on tag.
// A cached machine wins over the stored record since its autosave may still
// be queued.
// The host solution is ignored; Reveal refuses a solution that no longer
// matches the tag set.
func (s *Service) tagAssigned(ctx context.Context, eventID model.EventID, tag model.TagID) (bool, error) {
	stored, err := s.store.ListProgress(ctx, eventID)
	if err != nil {
		return false, storeError("list progress", err)
	}
	records := make(map[model.SessionID]*model.SessionProgress, len(stored))
	for _, p := range stored {
		records[p.SessionID] = p
	}
	for _, m := range s.eventMachines(eventID) {
		if p := m.Snapshot().Progress; p != nil {
			records[p.SessionID] = p
		}
	}
	for _, p := range records {
		if p.IsHost() {
			continue
		}
		if _, ok := p.Assignments[tag]; ok {
			return true, nil
		}
	}
	return false, nil
}

// editableTags loads the event and checks its tags may still change.
func (s *Service) editableTags(ctx context.Context, eventID model.EventID) (*model.Event, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, storeError("get event", err)
	}
	switch {
	case e.Finalized:
		return nil, model.ErrEventFinalized
	case e.Timer.Locked():
		return nil, model.ErrTagsLocked
	}
	return e, nil
}

// AddParticipant adds a name to the event roster. A roster makes ratings
// mandatory on manual finalize.
func (s *Service) AddParticipant(ctx context.Context, eventID model.EventID, name string) (model.Participant, error) {
	if err := s.running(); err != nil {
		return model.Participant{}, err
	}
	clean, err := model.CleanName(name)
	if err != nil {
		return model.Participant{}, err
	}
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return model.Participant{}, storeError("get event", err)
	}
	if e.Finalized {
		return model.Participant{}, model.ErrEventFinalized
	}
	p := model.Participant{ID: model.ParticipantID(uuid.NewString()), EventID: eventID, Name: clean}
	if err := s.store.AddParticipant(ctx, p); err != nil {
		return model.Participant{}, storeError("add participant", err)
	}
	return p, nil
}

// ListParticipants returns the roster ordered by name.
func (s *Service) ListParticipants(ctx context.Context, eventID model.EventID) ([]model.Participant, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, storeError("get event", err)
	}
	list, err := s.store.ListParticipants(ctx, eventID)
	if err != nil {
		return nil, storeError("list participants", err)
	}
	return list, nil
}

// RemoveParticipant deletes a roster entry.
func (s *Service) RemoveParticipant(ctx context.Context, eventID model.EventID, id model.ParticipantID) error {
	if err := s.running(); err != nil {
		return err
	}
	if err := s.store.DeleteParticipant(ctx, eventID, id); err != nil {
		return storeError("delete participant", err)
	}
	return nil
}

// SetSolution stores the host solution. With no assignments given it is
// derived from the tag bindings; otherwise every tag must be mapped to a
// distinct deck card.
func (s *Service) SetSolution(ctx context.Context, eventID model.EventID, assignments map[model.TagID]model.CardID) (*model.SessionProgress, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, storeError("get event", err)
	}
	if e.Finalized {
		return nil, model.ErrEventFinalized
	}
	tags, err := s.store.ListTags(ctx, eventID)
	if err != nil {
		return nil, storeError("list tags", err)
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: event has no tags", model.ErrIncompleteAssignments)
	}

	sol := model.NewSessionProgress(eventID, model.HostSessionID)
	sol.ParticipantName = string(model.HostSessionID)
	if len(assignments) == 0 {
		for _, t := range tags {
			sol.Assignments[t.TagID] = t.CardID
		}
	} else if err := fillSolution(sol, tags, assignments); err != nil {
		return nil, err
	}
	now := s.now()
	for _, t := range tags {
		sol.AssignmentTimestamps[t.TagID] = now
		sol.PreferenceOrder = append(sol.PreferenceOrder, t.TagID)
	}
	sol.Finalized = true
	sol.UpdatedAt = now
	if err := s.store.SaveSolution(ctx, sol); err != nil {
		return nil, storeError("save solution", err)
	}
	s.logger.Info(ctx, "solution saved",
		logger.String("event_id", string(eventID)),
		logger.Int("tags", len(sol.Assignments)),
	)
	return s.store.GetProgress(ctx, eventID, model.HostSessionID)
}

func fillSolution(sol *model.SessionProgress, tags []model.TagDefinition, assignments map[model.TagID]model.CardID) error {
	known := make(map[model.TagID]bool, len(tags))
	for _, t := range tags {
		known[t.TagID] = true
	}
	used := make(map[model.CardID]model.TagID, len(assignments))
	for tag, cardID := range assignments {
		if !known[tag] {
			return fmt.Errorf("%w: %s", model.ErrUnknownTag, tag)
		}
		card, ok := model.LookupCard(cardID)
		if !ok {
			return fmt.Errorf("%w: %s", model.ErrUnknownCard, cardID)
		}
		if other, dup := used[card.ID]; dup {
			return fmt.Errorf("%w: %s on %s and %s", model.ErrCardInUse, card.ID, other, tag)
		}
		used[card.ID] = tag
		sol.Assignments[tag] = card.ID
	}
	for _, t := range tags {
		if _, ok := sol.Assignments[t.TagID]; !ok {
			return fmt.Errorf("%w: %s", model.ErrIncompleteAssignments, t.TagID)
		}
	}
	return nil
}

// Reveal marks the event finalized so results can be scored. It requires
// the host solution and is idempotent.
func (s *Service) Reveal(ctx context.Context, eventID model.EventID) (*Leaderboard, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	if _, err := s.timers.State(ctx, eventID); err != nil {
		return nil, err
	}
	sol, err := s.store.GetProgress(ctx, eventID, model.HostSessionID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return nil, model.ErrSolutionMissing
	case err != nil:
		return nil, storeError("get solution", err)
	case !sol.Finalized:
		return nil, model.ErrSolutionMissing
	}
	tags, err := s.store.ListTags(ctx, eventID)
	if err != nil {
		return nil, storeError("list tags", err)
	}
	if !coversTags(sol, tags) {
		return nil, fmt.Errorf("%w: solution does not match the current tags", model.ErrSolutionMissing)
	}
	changed, err := s.store.MarkEventFinalized(ctx, eventID)
	if err != nil {
		return nil, storeError("reveal", err)
	}
	if changed {
		s.logger.Info(ctx, "results revealed", logger.String("event_id", string(eventID)))
	}
	return s.GetLeaderboard(ctx, eventID)
}

// coversTags reports whether sol assigns exactly the given tags.
func coversTags(sol *model.SessionProgress, tags []model.TagDefinition) bool {
	if len(sol.Assignments) != len(tags) {
		return false
	}
	for _, t := range tags {
		if _, ok := sol.Assignments[t.TagID]; !ok {
			return false
		}
	}
	return true
}

// storeError keeps domain errors and marks everything else unavailable.
func storeError(op string, err error) error {
	for _, known := range []error{
		model.ErrNotFound, model.ErrConflict, model.ErrStoreUnavailable, model.ErrInvalidInput,
		model.ErrNameTaken, model.ErrSessionFinalized,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
}
