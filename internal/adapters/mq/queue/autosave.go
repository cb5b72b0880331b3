package queue

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
	"github.com/okian/catador/pkg/metrics"
)

// Autosaver is the fire-and-forget persistence front used by session state
// machines. A rejected request is only logged: the next mutation carries the
// full record again.
type Autosaver struct {
	queue  Queue
	clock  clockwork.Clock
	logger logger.Logger
}

// NewAutosaver wraps q.
func NewAutosaver(q Queue, opts ...AutosaverOption) *Autosaver {
	a := &Autosaver{queue: q, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Named("autosave")
	}
	return a
}

// Save enqueues a snapshot of p.
func (a *Autosaver) Save(ctx context.Context, p *model.SessionProgress) {
	if a.queue.Enqueue(ctx, Request{Progress: p.Clone(), EnqueuedAt: a.clock.Now()}) {
		return
	}
	metrics.RecordAutosave("dropped")
	a.logger.Warn(ctx, "autosave dropped",
		logger.String("event_id", string(p.EventID)),
		logger.String("session_id", string(p.SessionID)),
		logger.Int64("revision", p.Revision),
	)
}
