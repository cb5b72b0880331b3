// Package repository persists events, tag definitions, rosters and session
// progress. It is the only layer that talks to the backing store.
package repository

import (
	"context"
	"time"

	"github.com/okian/catador/internal/domain/model"
)

// EventStore persists events and their timer.
type EventStore interface {
	// CreateEvent inserts a new event. Returns ErrConflict when the PIN is in use.
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id model.EventID) (*model.Event, error)
	GetEventByPIN(ctx context.Context, pin string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]*model.Event, error)
	// SaveTimer overwrites the timer fields of an event.
	SaveTimer(ctx context.Context, id model.EventID, t model.TimerState) error
	// ExpireTimer marks a running timer inactive if it still expires at
	// expiresAt. Returns false when another writer changed it first.
	ExpireTimer(ctx context.Context, id model.EventID, expiresAt time.Time) (bool, error)
	// MarkEventFinalized sets the terminal finalized flag. Returns false when
	// it was already set.
	MarkEventFinalized(ctx context.Context, id model.EventID) (bool, error)
	// DeleteEvent removes the event with its tags, roster and progress.
	DeleteEvent(ctx context.Context, id model.EventID) error
}

// TagStore persists tag definitions.
type TagStore interface {
	// AddTag returns ErrConflict when the tag id or card is already bound.
	AddTag(ctx context.Context, t model.TagDefinition) error
	ListTags(ctx context.Context, eventID model.EventID) ([]model.TagDefinition, error)
	DeleteTag(ctx context.Context, eventID model.EventID, tagID model.TagID) error
}

// ParticipantStore persists the host roster.
type ParticipantStore interface {
	// AddParticipant returns ErrConflict when the normalized name is listed.
	AddParticipant(ctx context.Context, p model.Participant) error
	ListParticipants(ctx context.Context, eventID model.EventID) ([]model.Participant, error)
	DeleteParticipant(ctx context.Context, eventID model.EventID, id model.ParticipantID) error
	CountParticipants(ctx context.Context, eventID model.EventID) (int, error)
}

// ProgressStore persists session progress, including the host solution.
type ProgressStore interface {
	// GetProgress returns ErrNotFound when the session never saved anything.
	GetProgress(ctx context.Context, eventID model.EventID, sessionID model.SessionID) (*model.SessionProgress, error)
	// ListProgress returns every record of the event, host solution included,
	// ordered by session id.
	ListProgress(ctx context.Context, eventID model.EventID) ([]*model.SessionProgress, error)
	// IsNameTaken reports whether a non-finalized session other than
	// excluding holds name.
	IsNameTaken(ctx context.Context, eventID model.EventID, name string, excluding model.SessionID) (bool, error)
	// ReserveName atomically binds name to the session, creating the record
	// if needed. Returns ErrNameTaken when another non-finalized session of
	// the event holds the same normalized name and ErrSessionFinalized when
	// the session is already finalized.
	ReserveName(ctx context.Context, eventID model.EventID, sessionID model.SessionID, name string) (*model.SessionProgress, error)
	// SaveProgress writes assignments, order and ratings when p.Revision is
	// newer than the stored one and the record is not finalized. The display
	// name is never changed here. Returns whether the write was applied.
	SaveProgress(ctx context.Context, p *model.SessionProgress) (bool, error)
	// FinalizeProgress writes p and flips finalized under the same
	// conditions as SaveProgress. Returns whether this call finalized it.
	FinalizeProgress(ctx context.Context, p *model.SessionProgress) (bool, error)
	// SaveSolution upserts the host solution record.
	SaveSolution(ctx context.Context, p *model.SessionProgress) error
}

// Store bundles every persistence concern.
type Store interface {
	EventStore
	TagStore
	ParticipantStore
	ProgressStore
	Close() error
}
