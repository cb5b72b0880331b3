package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/catador/internal/app"
	"github.com/okian/catador/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// WrapKind annotates err with op and kind; both stay matchable.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// classify maps an error to its HTTP status and stable error code. More
// specific kinds are checked before the kinds they wrap.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrNameTaken):
		return http.StatusConflict, "name_taken"
	case errors.Is(err, model.ErrCardInUse):
		return http.StatusBadRequest, "card_in_use"
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, model.ErrIncompleteAssignments):
		return http.StatusUnprocessableEntity, "incomplete_assignments"
	case errors.Is(err, model.ErrMissingRatings):
		return http.StatusUnprocessableEntity, "missing_ratings"
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_ready"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrSessionFinalized):
		return http.StatusConflict, "session_finalized"
	case errors.Is(err, model.ErrEventFinalized):
		return http.StatusConflict, "event_finalized"
	case errors.Is(err, model.ErrTagsLocked):
		return http.StatusConflict, "tags_locked"
	case errors.Is(err, model.ErrSolutionMissing):
		return http.StatusConflict, "solution_missing"
	case errors.Is(err, model.ErrTimerActive):
		return http.StatusConflict, "timer_active"
	case errors.Is(err, model.ErrTimerNotActive):
		return http.StatusConflict, "timer_not_active"
	case errors.Is(err, model.ErrTimerNotPaused):
		return http.StatusConflict, "timer_not_paused"
	case errors.Is(err, model.ErrTimerExpired):
		return http.StatusConflict, "timer_expired"
	case errors.Is(err, model.ErrWrongState):
		return http.StatusConflict, "wrong_state"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
