package scoring

import "github.com/okian/catador/internal/domain/model"

// ErrSolutionMissing is returned when no finalized host solution exists.
var ErrSolutionMissing = model.ErrSolutionMissing
