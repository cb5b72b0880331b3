package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds shared by every layer. Callers match with errors.Is.
var (
	ErrNameTaken             = errors.New("name taken")
	ErrInvalidInput          = errors.New("invalid input")
	ErrIncompleteAssignments = errors.New("incomplete assignments")
	ErrMissingRatings        = errors.New("missing ratings")
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrSolutionMissing       = errors.New("solution missing")

	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrSessionFinalized = errors.New("session finalized")
	ErrWrongState       = errors.New("operation not allowed in current state")
	ErrTagsLocked       = errors.New("tags locked once the timer started")
	ErrEventFinalized   = errors.New("event results already revealed")
	ErrTimerActive      = errors.New("timer already active")
	ErrTimerNotActive   = errors.New("timer not active")
	ErrTimerNotPaused   = errors.New("timer not paused")
)

// Input validation kinds. Each also matches ErrInvalidInput.
var (
	ErrInvalidName     = fmt.Errorf("%w: name", ErrInvalidInput)
	ErrInvalidRating   = fmt.Errorf("%w: rating", ErrInvalidInput)
	ErrInvalidDuration = fmt.Errorf("%w: duration", ErrInvalidInput)
	ErrUnknownTag      = fmt.Errorf("%w: unknown tag", ErrInvalidInput)
	ErrUnknownCard     = fmt.Errorf("%w: unknown card", ErrInvalidInput)
	ErrCardInUse       = fmt.Errorf("%w: card already assigned to another tag", ErrInvalidInput)
)

// ErrTimerExpired rejects work that must happen before the countdown ends.
var ErrTimerExpired = fmt.Errorf("%w: timer expired", ErrWrongState)
