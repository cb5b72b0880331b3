package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/internal/domain/scoring"
	"github.com/okian/catador/internal/domain/session"
)

// SessionView is what a participant client renders: the explicit state,
// the saved progress, the countdown and, once revealed, the score.
type SessionView struct {
	EventID   model.EventID            `json:"eventId"`
	SessionID model.SessionID          `json:"sessionId"`
	State     session.State            `json:"state"`
	Progress  *model.SessionProgress   `json:"progress,omitempty"`
	Timer     model.TimerSnapshot      `json:"timer"`
	Revealed  bool                     `json:"revealed"`
	Score     *scoring.ParticipantScore `json:"score,omitempty"`
}

// NewSession returns a fresh opaque session token for the event. Clients
// keep it to reconnect.
func (s *Service) NewSession(ctx context.Context, eventID model.EventID) (model.SessionID, error) {
	if err := s.running(); err != nil {
		return "", err
	}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return "", storeError("get event", err)
	}
	return model.SessionID(uuid.NewString()), nil
}

// GetSessionState rehydrates a session from its last saved progress.
func (s *Service) GetSessionState(ctx context.Context, eventID model.EventID, sessionID model.SessionID) (SessionView, error) {
	m, e, snap, err := s.open(ctx, eventID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	return s.view(ctx, m, e, snap), nil
}

// SubmitNameSelection reserves a display name for the session. Once the
// countdown expired no new names are accepted.
func (s *Service) SubmitNameSelection(ctx context.Context, eventID model.EventID, sessionID model.SessionID, name string) (SessionView, error) {
	m, e, snap, err := s.open(ctx, eventID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if snap.Status == model.TimerExpired && m.State() == session.StateSelectingName {
		return SessionView{}, model.ErrTimerExpired
	}
	if err := writable(e); err != nil {
		return SessionView{}, err
	}
	if err := m.SelectName(ctx, name); err != nil {
		return SessionView{}, err
	}
	m = s.remember(m)
	return s.view(ctx, m, e, snap), nil
}

// AssignCard binds a card to a tag in the session.
func (s *Service) AssignCard(ctx context.Context, eventID model.EventID, sessionID model.SessionID, tag model.TagID, card model.CardID) (SessionView, error) {
	return s.mutate(ctx, eventID, sessionID, func(m *session.Machine) error {
		return m.Assign(ctx, tag, card)
	})
}

// UnassignCard clears a tag in the session.
func (s *Service) UnassignCard(ctx context.Context, eventID model.EventID, sessionID model.SessionID, tag model.TagID) (SessionView, error) {
	return s.mutate(ctx, eventID, sessionID, func(m *session.Machine) error {
		return m.Unassign(ctx, tag)
	})
}

// RateTag sets the 1..5 star rating of a tag.
func (s *Service) RateTag(ctx context.Context, eventID model.EventID, sessionID model.SessionID, tag model.TagID, rating int) (SessionView, error) {
	return s.mutate(ctx, eventID, sessionID, func(m *session.Machine) error {
		return m.Rate(ctx, tag, rating)
	})
}

// ReorderTags replaces the session's preference ranking.
func (s *Service) ReorderTags(ctx context.Context, eventID model.EventID, sessionID model.SessionID, order []model.TagID) (SessionView, error) {
	return s.mutate(ctx, eventID, sessionID, func(m *session.Machine) error {
		return m.Reorder(ctx, order)
	})
}

// Finalize submits the session.
func (s *Service) Finalize(ctx context.Context, eventID model.EventID, sessionID model.SessionID) (SessionView, error) {
	return s.mutate(ctx, eventID, sessionID, func(m *session.Machine) error {
		return m.Finalize(ctx)
	})
}

// NameAvailable reports whether name can be reserved by the session
// excluding. Invalid names are reported as errors.
func (s *Service) NameAvailable(ctx context.Context, eventID model.EventID, name string, excluding model.SessionID) (bool, error) {
	if err := s.running(); err != nil {
		return false, err
	}
	if _, err := model.CleanName(name); err != nil {
		return false, err
	}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return false, storeError("get event", err)
	}
	taken, err := s.registry.IsNameTaken(ctx, eventID, name, excluding)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

func (s *Service) mutate(ctx context.Context, eventID model.EventID, sessionID model.SessionID, fn func(m *session.Machine) error) (SessionView, error) {
	m, e, snap, err := s.open(ctx, eventID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if err := writable(e); err != nil {
		return SessionView{}, err
	}
	if err := fn(m); err != nil {
		return SessionView{}, err
	}
	if m.Snapshot().Progress != nil {
		m = s.remember(m)
	}
	return s.view(ctx, m, e, snap), nil
}

// open brings the timer up to date, which may force-finalize the session,
// and returns the session machine with its event.
func (s *Service) open(ctx context.Context, eventID model.EventID, sessionID model.SessionID) (*session.Machine, *model.Event, model.TimerSnapshot, error) {
	if err := s.running(); err != nil {
		return nil, nil, model.TimerSnapshot{}, err
	}
	if err := validSessionID(sessionID); err != nil {
		return nil, nil, model.TimerSnapshot{}, err
	}
	snap, err := s.timers.State(ctx, eventID)
	if err != nil {
		return nil, nil, model.TimerSnapshot{}, err
	}
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, nil, model.TimerSnapshot{}, storeError("get event", err)
	}
	m, err := s.machine(ctx, eventID, sessionID)
	if err != nil {
		return nil, nil, model.TimerSnapshot{}, err
	}
	return m, e, snap, nil
}

// writable rejects changes once results are revealed.
func writable(e *model.Event) error {
	if e.Finalized {
		return model.ErrEventFinalized
	}
	return nil
}

func (s *Service) view(ctx context.Context, m *session.Machine, e *model.Event, snap model.TimerSnapshot) SessionView {
	ss := m.Snapshot()
	v := SessionView{
		EventID:   m.EventID(),
		SessionID: m.SessionID(),
		State:     ss.State,
		Progress:  ss.Progress,
		Timer:     snap,
		Revealed:  e.Finalized,
	}
	if !e.Finalized || ss.State != session.StateFinalized {
		return v
	}
	board, err := s.GetLeaderboard(ctx, e.ID)
	if err != nil || board.Status != StatusReady {
		return v
	}
	for _, group := range [][]RankedParticipant{board.Participants.Podium, board.Participants.Rest} {
		for _, r := range group {
			if r.Item.SessionID == m.SessionID() {
				score := r.Item
				v.Score = &score
				return v
			}
		}
	}
	return v
}
