package service

import (
	"context"
	"errors"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/internal/domain/ranking"
	"github.com/okian/catador/internal/domain/scoring"
	"github.com/okian/catador/pkg/logger"
	"github.com/okian/catador/pkg/metrics"
)

// Leaderboard statuses.
const (
	StatusPending = "pending"
	StatusReady   = "ready"
)

// Reasons a leaderboard is still pending.
const (
	ReasonNotRevealed     = "not_revealed"
	ReasonSolutionMissing = "solution_missing"
)

// RankedParticipant is one row of the participant board.
type RankedParticipant = ranking.Ranked[scoring.ParticipantScore]

// RankedTag is one row of the tag board.
type RankedTag = ranking.Ranked[scoring.TagMerit]

// Leaderboard is the revealed outcome of an event: participants ranked by
// accuracy and tags ranked by the stars they collected.
type Leaderboard struct {
	EventID      model.EventID                           `json:"eventId"`
	Status       string                                  `json:"status"`
	Reason       string                                  `json:"reason,omitempty"`
	Submitted    int                                     `json:"submitted"`
	Participants ranking.Board[scoring.ParticipantScore] `json:"participants"`
	Tags         ranking.Board[scoring.TagMerit]         `json:"tags"`
}

func pending(eventID model.EventID, reason string) *Leaderboard {
	return &Leaderboard{
		EventID:      eventID,
		Status:       StatusPending,
		Reason:       reason,
		Participants: ranking.Split[scoring.ParticipantScore](nil),
		Tags:         ranking.Split[scoring.TagMerit](nil),
	}
}

// GetLeaderboard scores the event. Until the host reveals the results, or
// while no solution exists, the board is pending rather than an error.
func (s *Service) GetLeaderboard(ctx context.Context, eventID model.EventID) (*Leaderboard, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, storeError("get event", err)
	}
	if !e.Finalized {
		metrics.RecordScoringRun(StatusPending)
		return pending(eventID, ReasonNotRevealed), nil
	}

	records, err := s.store.ListProgress(ctx, eventID)
	if err != nil {
		return nil, storeError("list progress", err)
	}
	tags, err := s.store.ListTags(ctx, eventID)
	if err != nil {
		return nil, storeError("list tags", err)
	}
	in := scoring.Input{TimerStartedAt: e.Timer.BonusAnchor(), Tags: tags}
	for _, p := range records {
		if p.IsHost() {
			in.Solution = p
			continue
		}
		in.Sessions = append(in.Sessions, p)
	}

	start := s.clock.Now()
	res, err := s.scorer.Compute(in)
	metrics.RecordScoringLatency(float64(s.clock.Since(start).Microseconds()) / 1000)
	switch {
	case errors.Is(err, scoring.ErrSolutionMissing):
		metrics.RecordScoringRun(StatusPending)
		return pending(eventID, ReasonSolutionMissing), nil
	case err != nil:
		metrics.RecordScoringRun("error")
		s.logger.Error(ctx, "scoring failed", logger.String("event_id", string(eventID)), logger.Error(err))
		return nil, err
	}
	metrics.RecordScoringRun(StatusReady)

	return &Leaderboard{
		EventID:      eventID,
		Status:       StatusReady,
		Submitted:    len(res.Participants),
		Participants: ranking.Build(res.Participants),
		Tags:         ranking.Build(res.Tags),
	}, nil
}
