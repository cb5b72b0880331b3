// Package model contains domain models passed between layers.
package model

import "time"

// Identifier types. They are distinct so a tag id can never be stored where a
// card id is expected.
type (
	EventID       string
	TagID         string
	CardID        string
	SessionID     string
	ParticipantID string
)

// HostSessionID is the reserved session id under which the host solution is
// stored alongside participant progress.
const HostSessionID SessionID = "HOST"

// Event is a tasting party owned by a host.
type Event struct {
	ID        EventID    `json:"id"`
	Name      string     `json:"name"`
	Date      string     `json:"date"`
	PIN       string     `json:"pin"`
	Active    bool       `json:"active"`
	Finalized bool       `json:"finalized"`
	Timer     TimerState `json:"timer"`
	CreatedAt time.Time  `json:"createdAt"`
}

// TimerState is the single authoritative countdown of an event.
type TimerState struct {
	Active          bool           `json:"active"`
	StartedAt       *time.Time     `json:"startedAt,omitempty"`
	ExpiresAt       *time.Time     `json:"expiresAt,omitempty"`
	PausedRemaining *time.Duration `json:"pausedRemaining,omitempty"`
	// FirstStartedAt is the first start of the countdown. Stop and restart
	// keep it; it locks the tags and anchors the speed bonus.
	FirstStartedAt *time.Time `json:"firstStartedAt,omitempty"`
}

// Timer status values derived by TimerState.Status.
const (
	TimerIdle    = "idle"
	TimerRunning = "running"
	TimerPaused  = "paused"
	TimerExpired = "expired"
)

// Started reports whether the countdown has been started and not stopped.
func (t TimerState) Started() bool { return t.StartedAt != nil }

// Locked reports whether the countdown was ever started. Tags of a locked
// event never change again.
func (t TimerState) Locked() bool { return t.FirstStartedAt != nil }

// BonusAnchor returns the instant assignment speed is measured from.
func (t TimerState) BonusAnchor() *time.Time {
	if t.FirstStartedAt != nil {
		return t.FirstStartedAt
	}
	return t.StartedAt
}

// Paused reports whether the countdown is paused with time left to resume.
func (t TimerState) Paused() bool { return !t.Active && t.PausedRemaining != nil }

// Expired reports whether the countdown reached zero. An active timer whose
// deadline passed counts as expired even before anyone marked it inactive.
func (t TimerState) Expired(now time.Time) bool {
	if t.ExpiresAt == nil || t.PausedRemaining != nil {
		return false
	}
	if t.Active {
		return !now.Before(*t.ExpiresAt)
	}
	return t.StartedAt != nil
}

// Remaining returns the time left on the countdown, never negative.
func (t TimerState) Remaining(now time.Time) time.Duration {
	switch {
	case t.PausedRemaining != nil && !t.Active:
		return *t.PausedRemaining
	case t.Active && t.ExpiresAt != nil:
		if d := t.ExpiresAt.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// Status summarises the timer for clients.
func (t TimerState) Status(now time.Time) string {
	switch {
	case t.Paused():
		return TimerPaused
	case t.Expired(now):
		return TimerExpired
	case t.Active:
		return TimerRunning
	default:
		return TimerIdle
	}
}

// Clone returns a deep copy.
func (t TimerState) Clone() TimerState {
	out := TimerState{Active: t.Active}
	if t.StartedAt != nil {
		v := *t.StartedAt
		out.StartedAt = &v
	}
	if t.ExpiresAt != nil {
		v := *t.ExpiresAt
		out.ExpiresAt = &v
	}
	if t.PausedRemaining != nil {
		v := *t.PausedRemaining
		out.PausedRemaining = &v
	}
	if t.FirstStartedAt != nil {
		v := *t.FirstStartedAt
		out.FirstStartedAt = &v
	}
	return out
}

// TagDefinition binds an anonymised wine label to the card that identifies it.
type TagDefinition struct {
	ID       string  `json:"id"`
	EventID  EventID `json:"eventId"`
	TagID    TagID   `json:"tagId"`
	TagName  string  `json:"tagName"`
	CardID   CardID  `json:"cardId"`
	CardName string  `json:"cardName"`
}

// Participant is a roster entry created by the host.
type Participant struct {
	ID      ParticipantID `json:"id"`
	EventID EventID       `json:"eventId"`
	Name    string        `json:"name"`
}

// TimerSnapshot is what timer streams deliver: the authoritative state plus
// the server clock, so clients can correct their local drift.
type TimerSnapshot struct {
	EventID     EventID    `json:"eventId"`
	Timer       TimerState `json:"timer"`
	Status      string     `json:"status"`
	RemainingMs int64      `json:"remainingMs"`
	ServerTime  time.Time  `json:"serverTime"`
}

// Snapshot derives a TimerSnapshot at now.
func (t TimerState) Snapshot(eventID EventID, now time.Time) TimerSnapshot {
	return TimerSnapshot{
		EventID:     eventID,
		Timer:       t.Clone(),
		Status:      t.Status(now),
		RemainingMs: t.Remaining(now).Milliseconds(),
		ServerTime:  now,
	}
}
