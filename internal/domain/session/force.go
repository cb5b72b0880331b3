package session

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/metrics"
)

// forceAttempts bounds the compare-and-set loop of ForceFinalize.
const forceAttempts = 3

// Backfill sets rating 0 on every assigned tag without a rating. Scoring
// later floors these to 1, so forced assignments still reach the tag podium.
func Backfill(p *model.SessionProgress) {
	p.EnsureMaps()
	for tag := range p.Assignments {
		if _, ok := p.Ratings[tag]; !ok {
			p.Ratings[tag] = 0
		}
	}
}

// ForceFinalize finalizes base on timer expiry, keeping its cards and
// backfilling ratings. It is safe to call from any number of places at
// once: the store applies at most one finalization, and a session that is
// already finalized is returned unchanged with done=false.
func ForceFinalize(ctx context.Context, store Store, base *model.SessionProgress, now time.Time) (p *model.SessionProgress, done bool, err error) {
	cur := base
	for attempt := 0; attempt < forceAttempts; attempt++ {
		if cur.Finalized {
			metrics.RecordForcedFinalization("noop")
			return cur, false, nil
		}
		next := cur.Clone()
		Backfill(next)
		next.Forced = true
		next.Revision = cur.Revision + 1
		next.UpdatedAt = now
		ok, err := store.FinalizeProgress(ctx, next)
		if err != nil {
			metrics.RecordForcedFinalization("failed")
			return nil, false, storeError("force finalize", err)
		}
		if ok {
			next.Finalized = true
			metrics.RecordForcedFinalization("finalized")
			return next, true, nil
		}
		if cur, err = store.GetProgress(ctx, base.EventID, base.SessionID); err != nil {
			metrics.RecordForcedFinalization("failed")
			return nil, false, storeError("force finalize", err)
		}
	}
	metrics.RecordForcedFinalization("failed")
	return nil, false, fmt.Errorf("force finalize %s: %w", base.SessionID, model.ErrConflict)
}
