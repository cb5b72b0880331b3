// Package scoring computes participant accuracy scores and per-tag merit from
// finalized progress records and the host solution.
//
// Compute is a pure function of its input: records are visited in sorted
// order so repeated runs over the same data give identical results.
package scoring

import (
	"cmp"
	"slices"
	"time"

	"github.com/okian/catador/internal/domain/model"
)

// Default scoring constants.
const (
	defaultBasePoints    = 100
	defaultPointsPerStar = 50
)

// DefaultBonusTiers are the speed bonuses for correct assignments.
var DefaultBonusTiers = []BonusTier{
	{Within: 15 * time.Minute, Points: 25},
	{Within: 25 * time.Minute, Points: 10},
}

// Input holds everything a scoring run depends on.
type Input struct {
	Solution       *model.SessionProgress
	TimerStartedAt *time.Time
	Tags           []model.TagDefinition
	Sessions       []*model.SessionProgress
}

// TagOutcome is the accuracy breakdown of one assignment.
type TagOutcome struct {
	TagID    model.TagID  `json:"tagId"`
	Assigned model.CardID `json:"assigned"`
	Expected model.CardID `json:"expected,omitempty"`
	Correct  bool         `json:"correct"`
	Base     int          `json:"base"`
	Bonus    int          `json:"bonus"`
	Rating   int          `json:"rating,omitempty"`
}

// ParticipantScore is one session's accuracy total.
type ParticipantScore struct {
	SessionID model.SessionID `json:"sessionId"`
	Name      string          `json:"name"`
	Total     int             `json:"total"`
	Correct   int             `json:"correct"`
	Forced    bool            `json:"forced,omitempty"`
	Outcomes  []TagOutcome    `json:"outcomes"`
}

func (p ParticipantScore) RankScore() int   { return p.Total }
func (p ParticipantScore) RankName() string { return p.Name }
func (p ParticipantScore) RankID() string   { return string(p.SessionID) }

// TagMerit is the star-weighted appreciation attributed to a solution tag.
type TagMerit struct {
	TagID        model.TagID  `json:"tagId"`
	TagName      string       `json:"tagName"`
	CardID       model.CardID `json:"cardId"`
	Points       int          `json:"points"`
	Ratings      []int        `json:"ratings"`
	AverageStars float64      `json:"averageStars"`
}

func (t TagMerit) RankScore() int   { return t.Points }
func (t TagMerit) RankName() string { return t.TagName }
func (t TagMerit) RankID() string   { return string(t.TagID) }

// Result is the full outcome of a scoring run.
type Result struct {
	Participants []ParticipantScore `json:"participants"`
	Tags         []TagMerit         `json:"tags"`
}

// Scorer computes results from a scoring input.
type Scorer interface {
	Compute(in Input) (Result, error)
}

// Engine implements Scorer.
type Engine struct {
	basePoints    int
	pointsPerStar int
	tiers         []BonusTier
}

// NewEngine creates a scoring engine with the standard rules.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		basePoints:    defaultBasePoints,
		pointsPerStar: defaultPointsPerStar,
		tiers:         DefaultBonusTiers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute scores every finalized participant session against the solution.
// It returns ErrSolutionMissing when the host solution is absent or not
// finalized; callers treat that as "results pending".
func (e *Engine) Compute(in Input) (Result, error) {
	if in.Solution == nil || !in.Solution.Finalized {
		return Result{}, ErrSolutionMissing
	}

	sessions := make([]*model.SessionProgress, 0, len(in.Sessions))
	for _, s := range in.Sessions {
		if s == nil || s.IsHost() || !s.Finalized {
			continue
		}
		sessions = append(sessions, s)
	}
	slices.SortFunc(sessions, func(a, b *model.SessionProgress) int {
		return cmp.Compare(a.SessionID, b.SessionID)
	})

	byCard := make(map[model.CardID]model.TagID, len(in.Solution.Assignments))
	for tag, card := range in.Solution.Assignments {
		byCard[card] = tag
	}
	names := make(map[model.TagID]string, len(in.Tags))
	for _, t := range in.Tags {
		names[t.TagID] = t.TagName
	}

	merits := map[model.TagID]*TagMerit{}
	res := Result{Participants: make([]ParticipantScore, 0, len(sessions))}
	for _, s := range sessions {
		ps := ParticipantScore{
			SessionID: s.SessionID,
			Name:      s.ParticipantName,
			Forced:    s.Forced,
			Outcomes:  []TagOutcome{},
		}
		for _, tag := range sortedTags(s.Assignments) {
			card := s.Assignments[tag]
			out := e.outcome(in, s, tag, card)
			ps.Outcomes = append(ps.Outcomes, out)
			ps.Total += out.Base + out.Bonus
			if out.Correct {
				ps.Correct++
			}

			target, ok := byCard[card]
			if !ok {
				continue
			}
			m := merits[target]
			if m == nil {
				m = &TagMerit{TagID: target, TagName: names[target], CardID: card, Ratings: []int{}}
				if m.TagName == "" {
					m.TagName = string(target)
				}
				merits[target] = m
			}
			m.Points += e.pointsPerStar * out.Rating
			m.Ratings = append(m.Ratings, out.Rating)
		}
		res.Participants = append(res.Participants, ps)
	}

	res.Tags = make([]TagMerit, 0, len(merits))
	for _, m := range merits {
		if m.Points <= 0 {
			continue
		}
		sum := 0
		for _, r := range m.Ratings {
			sum += r
		}
		m.AverageStars = float64(sum) / float64(len(m.Ratings))
		res.Tags = append(res.Tags, *m)
	}
	slices.SortFunc(res.Tags, func(a, b TagMerit) int { return cmp.Compare(a.TagID, b.TagID) })
	return res, nil
}

// outcome scores a single assignment. The effective rating is floored at 1
// so an unrated or force-backfilled assignment still counts once.
func (e *Engine) outcome(in Input, s *model.SessionProgress, tag model.TagID, card model.CardID) TagOutcome {
	expected := in.Solution.Assignments[tag]
	out := TagOutcome{
		TagID:    tag,
		Assigned: card,
		Expected: expected,
		Correct:  expected != "" && expected == card,
		Rating:   max(s.Ratings[tag], model.MinRating),
	}
	if !out.Correct {
		return out
	}
	out.Base = e.basePoints
	if in.TimerStartedAt == nil {
		return out
	}
	at, ok := s.AssignmentTimestamps[tag]
	if !ok || at.IsZero() {
		return out
	}
	elapsed := at.Sub(*in.TimerStartedAt)
	for _, tier := range e.tiers {
		if elapsed <= tier.Within {
			out.Bonus = tier.Points
			break
		}
	}
	return out
}

func sortedTags(m map[model.TagID]model.CardID) []model.TagID {
	tags := make([]model.TagID, 0, len(m))
	for t := range m {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return tags
}
