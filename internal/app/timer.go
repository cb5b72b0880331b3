package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/internal/domain/session"
	"github.com/okian/catador/pkg/logger"
)

// StartTimer starts the event countdown. Starting requires at least one tag.
func (s *Service) StartTimer(ctx context.Context, eventID model.EventID, d time.Duration) (model.TimerSnapshot, error) {
	if err := s.running(); err != nil {
		return model.TimerSnapshot{}, err
	}
	tags, err := s.store.ListTags(ctx, eventID)
	if err != nil {
		return model.TimerSnapshot{}, storeError("list tags", err)
	}
	if len(tags) == 0 {
		if _, err := s.store.GetEvent(ctx, eventID); err != nil {
			return model.TimerSnapshot{}, storeError("get event", err)
		}
		return model.TimerSnapshot{}, fmt.Errorf("%w: event has no tags", model.ErrInvalidInput)
	}
	return s.timers.Start(ctx, eventID, d)
}

// PauseTimer freezes the countdown.
func (s *Service) PauseTimer(ctx context.Context, eventID model.EventID) (model.TimerSnapshot, error) {
	if err := s.running(); err != nil {
		return model.TimerSnapshot{}, err
	}
	return s.timers.Pause(ctx, eventID)
}

// ResumeTimer continues a paused countdown.
func (s *Service) ResumeTimer(ctx context.Context, eventID model.EventID) (model.TimerSnapshot, error) {
	if err := s.running(); err != nil {
		return model.TimerSnapshot{}, err
	}
	return s.timers.Resume(ctx, eventID)
}

// ExtendTimer adds d to a running countdown; otherwise nothing changes.
func (s *Service) ExtendTimer(ctx context.Context, eventID model.EventID, d time.Duration) (model.TimerSnapshot, error) {
	if err := s.running(); err != nil {
		return model.TimerSnapshot{}, err
	}
	return s.timers.Extend(ctx, eventID, d)
}

// StopTimer clears the countdown.
func (s *Service) StopTimer(ctx context.Context, eventID model.EventID) (model.TimerSnapshot, error) {
	if err := s.running(); err != nil {
		return model.TimerSnapshot{}, err
	}
	return s.timers.Stop(ctx, eventID)
}

// TimerState returns the current countdown, expiring it when due.
func (s *Service) TimerState(ctx context.Context, eventID model.EventID) (model.TimerSnapshot, error) {
	if err := s.running(); err != nil {
		return model.TimerSnapshot{}, err
	}
	return s.timers.State(ctx, eventID)
}

// SubscribeTimer streams the countdown until ctx is done.
func (s *Service) SubscribeTimer(ctx context.Context, eventID model.EventID) (<-chan model.TimerSnapshot, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.timers.Subscribe(ctx, eventID)
}

// ExpireSession is the per-client expiry path: a client whose countdown
// reached zero asks for its own session to be finalized. It is a no-op
// unless the timer really expired and the session is still open.
func (s *Service) ExpireSession(ctx context.Context, eventID model.EventID, sessionID model.SessionID) (bool, error) {
	if err := s.running(); err != nil {
		return false, err
	}
	snap, err := s.timers.State(ctx, eventID)
	if err != nil {
		return false, err
	}
	if snap.Status != model.TimerExpired {
		return false, nil
	}
	m, err := s.machine(ctx, eventID, sessionID)
	if err != nil {
		return false, err
	}
	return m.Force(ctx)
}

// forceOpenSessions is the timer expiry handler: every session of the event
// that is not finalized yet is finalized with its current cards. Cached
// machines are forced through so that unsaved changes are kept.
func (s *Service) forceOpenSessions(ctx context.Context, eventID model.EventID) error {
	records, err := s.store.ListProgress(ctx, eventID)
	if err != nil {
		return storeError("list progress", err)
	}
	var (
		errs   []error
		forced int
	)
	for _, p := range records {
		if p.IsHost() || p.Finalized {
			continue
		}
		var done bool
		if m := s.cachedMachine(eventID, p.SessionID); m != nil {
			if err = m.Refresh(ctx); err == nil {
				done, err = m.Force(ctx)
			}
		} else {
			_, done, err = session.ForceFinalize(ctx, s.store, p, s.now())
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if done {
			forced++
		}
	}
	s.logger.Info(ctx, "open sessions finalized on expiry",
		logger.String("event_id", string(eventID)),
		logger.Int("forced", forced),
		logger.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}
