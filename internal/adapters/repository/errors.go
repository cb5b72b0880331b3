package repository

import "github.com/okian/catador/internal/domain/model"

// Sentinel kinds surfaced by stores. They alias the domain kinds so callers
// can match either.
var (
	ErrNotFound         = model.ErrNotFound
	ErrConflict         = model.ErrConflict
	ErrNameTaken        = model.ErrNameTaken
	ErrSessionFinalized = model.ErrSessionFinalized
	ErrUnavailable      = model.ErrStoreUnavailable
)
