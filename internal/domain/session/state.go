// Package session implements the per-participant progress state machine:
// SelectingName, then AssigningAndRating, then Finalized.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/catador/internal/domain/model"
)

// State is the explicit phase of a session.
type State string

// Session states.
const (
	StateSelectingName State = "selecting_name"
	StateAssigning     State = "assigning_and_rating"
	StateFinalized     State = "finalized"
)

// Snapshot is a consistent copy of a machine.
type Snapshot struct {
	State    State                  `json:"state"`
	Progress *model.SessionProgress `json:"progress,omitempty"`
}

// Store is the persistence a machine reads and finalizes through.
type Store interface {
	GetProgress(ctx context.Context, eventID model.EventID, sessionID model.SessionID) (*model.SessionProgress, error)
	SaveProgress(ctx context.Context, p *model.SessionProgress) (bool, error)
	FinalizeProgress(ctx context.Context, p *model.SessionProgress) (bool, error)
	ListTags(ctx context.Context, eventID model.EventID) ([]model.TagDefinition, error)
	CountParticipants(ctx context.Context, eventID model.EventID) (int, error)
}

// Reserver binds a display name to a session.
type Reserver interface {
	Reserve(ctx context.Context, eventID model.EventID, name string, sessionID model.SessionID) (*model.SessionProgress, error)
}

// Saver persists progress without blocking the caller. Failures are the
// saver's to log; the next mutation carries the full record again.
type Saver interface {
	Save(ctx context.Context, p *model.SessionProgress)
}

// stateOf derives the resume state of a persisted record.
func stateOf(p *model.SessionProgress) State {
	switch {
	case p == nil:
		return StateSelectingName
	case p.Finalized:
		return StateFinalized
	default:
		return StateAssigning
	}
}

// storeError keeps domain errors and marks everything else unavailable.
func storeError(op string, err error) error {
	for _, known := range []error{
		model.ErrNotFound, model.ErrSessionFinalized, model.ErrStoreUnavailable,
		model.ErrInvalidInput, model.ErrNameTaken, model.ErrConflict,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
}
