// Package reservation guards display-name uniqueness among the open sessions
// of an event. The store performs the reservation as one conditional write,
// so the check below is advisory and the write is authoritative.
package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
	"github.com/okian/catador/pkg/metrics"
)

// Store is the persistence the registry needs.
type Store interface {
	IsNameTaken(ctx context.Context, eventID model.EventID, name string, excluding model.SessionID) (bool, error)
	ReserveName(ctx context.Context, eventID model.EventID, sessionID model.SessionID, name string) (*model.SessionProgress, error)
}

// Registry implements name reservation for sessions.
type Registry struct {
	store  Store
	logger logger.Logger
}

// NewRegistry creates a registry over store.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{store: store}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Named("reservation")
	}
	return r
}

// IsNameTaken reports whether another open session of the event holds name.
// Invalid names are never taken.
func (r *Registry) IsNameTaken(ctx context.Context, eventID model.EventID, name string, excluding model.SessionID) (bool, error) {
	clean, err := model.CleanName(name)
	if err != nil {
		return false, nil
	}
	taken, err := r.store.IsNameTaken(ctx, eventID, clean, excluding)
	if err != nil {
		return false, storeError("is name taken", err)
	}
	return taken, nil
}

// Reserve binds name to sessionID and returns the resulting progress record.
// It fails with ErrInvalidName, ErrNameTaken or ErrSessionFinalized; on any
// failure the session keeps whatever it held before.
func (r *Registry) Reserve(ctx context.Context, eventID model.EventID, name string, sessionID model.SessionID) (*model.SessionProgress, error) {
	clean, err := model.CleanName(name)
	if err != nil {
		metrics.RecordNameReservation("invalid")
		return nil, err
	}
	if sessionID == "" || sessionID == model.HostSessionID {
		metrics.RecordNameReservation("invalid")
		return nil, fmt.Errorf("%w: session id %q", model.ErrInvalidInput, sessionID)
	}

	p, err := r.store.ReserveName(ctx, eventID, sessionID, clean)
	switch {
	case errors.Is(err, model.ErrNameTaken):
		metrics.RecordNameReservation("taken")
		r.logger.Debug(ctx, "name taken",
			logger.String("event_id", string(eventID)),
			logger.String("session_id", string(sessionID)),
			logger.String("name", clean),
		)
		return nil, err
	case err != nil:
		metrics.RecordNameReservation("error")
		return nil, storeError("reserve name", err)
	}
	metrics.RecordNameReservation("reserved")
	r.logger.Info(ctx, "name reserved",
		logger.String("event_id", string(eventID)),
		logger.String("session_id", string(sessionID)),
		logger.String("name", clean),
	)
	return p, nil
}

// storeError passes domain errors through and marks the rest unavailable.
func storeError(op string, err error) error {
	for _, known := range []error{
		model.ErrNotFound, model.ErrSessionFinalized, model.ErrStoreUnavailable, model.ErrInvalidInput,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
}
