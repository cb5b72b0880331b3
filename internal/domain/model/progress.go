package model

import (
	"slices"
	"time"
)

// Rating bounds accepted from participants.
const (
	MinRating = 1
	MaxRating = 5
)

// SessionProgress is one participant's persisted work for one event. The host
// solution is stored in the same shape under HostSessionID.
type SessionProgress struct {
	SessionID            SessionID           `json:"sessionId"`
	EventID              EventID             `json:"eventId"`
	ParticipantName      string              `json:"participantName"`
	Assignments          map[TagID]CardID    `json:"assignments"`
	AssignmentTimestamps map[TagID]time.Time `json:"assignmentTimestamps"`
	PreferenceOrder      []TagID             `json:"preferenceOrder"`
	Ratings              map[TagID]int       `json:"ratings"`
	Finalized            bool                `json:"finalized"`
	// Forced marks a finalization performed by timer expiry.
	Forced    bool      `json:"forced,omitempty"`
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSessionProgress returns an empty progress record.
func NewSessionProgress(eventID EventID, sessionID SessionID) *SessionProgress {
	return &SessionProgress{
		SessionID:            sessionID,
		EventID:              eventID,
		Assignments:          map[TagID]CardID{},
		AssignmentTimestamps: map[TagID]time.Time{},
		Ratings:              map[TagID]int{},
	}
}

// IsHost reports whether the record is the host solution.
func (p *SessionProgress) IsHost() bool { return p.SessionID == HostSessionID }

// NormalizedName is the reservation key derived from the display name.
func (p *SessionProgress) NormalizedName() string { return NormalizeName(p.ParticipantName) }

// CardHolder returns the tag currently holding card.
func (p *SessionProgress) CardHolder(card CardID) (TagID, bool) {
	for tag, c := range p.Assignments {
		if c == card {
			return tag, true
		}
	}
	return "", false
}

// Clone returns a deep copy safe to hand to another goroutine.
func (p *SessionProgress) Clone() *SessionProgress {
	if p == nil {
		return nil
	}
	out := *p
	out.Assignments = make(map[TagID]CardID, len(p.Assignments))
	for k, v := range p.Assignments {
		out.Assignments[k] = v
	}
	out.AssignmentTimestamps = make(map[TagID]time.Time, len(p.AssignmentTimestamps))
	for k, v := range p.AssignmentTimestamps {
		out.AssignmentTimestamps[k] = v
	}
	out.Ratings = make(map[TagID]int, len(p.Ratings))
	for k, v := range p.Ratings {
		out.Ratings[k] = v
	}
	out.PreferenceOrder = slices.Clone(p.PreferenceOrder)
	return &out
}

// EnsureMaps replaces nil maps, which appear after decoding sparse records.
func (p *SessionProgress) EnsureMaps() {
	if p.Assignments == nil {
		p.Assignments = map[TagID]CardID{}
	}
	if p.AssignmentTimestamps == nil {
		p.AssignmentTimestamps = map[TagID]time.Time{}
	}
	if p.Ratings == nil {
		p.Ratings = map[TagID]int{}
	}
}

// HasWork reports whether anything beyond the name was saved.
func (p *SessionProgress) HasWork() bool {
	return len(p.Assignments) > 0 || len(p.Ratings) > 0 || len(p.PreferenceOrder) > 0
}
