package timer

import (
	"context"
	"errors"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
	"github.com/okian/catador/pkg/metrics"
)

// Subscribe streams snapshots of id's timer: the current one immediately,
// then every change and a periodic resync so clients can correct drift.
// The stream ends and the channel closes when ctx is done or the event is
// deleted.
func (c *Coordinator) Subscribe(ctx context.Context, id model.EventID) (<-chan model.TimerSnapshot, error) {
	updates, unsubscribe := c.bus.Subscribe(id)
	first, err := c.State(ctx, id)
	if err != nil {
		unsubscribe()
		return nil, err
	}

	out := make(chan model.TimerSnapshot, 1)
	out <- first
	metrics.AddTimerSubscribers(1)

	go func() {
		defer close(out)
		defer metrics.AddTimerSubscribers(-1)
		defer unsubscribe()

		ticker := c.clock.NewTicker(c.resync)
		defer ticker.Stop()

		for {
			var next model.TimerSnapshot
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-updates:
				if !ok {
					return
				}
				next = snap
			case <-ticker.Chan():
				snap, err := c.State(ctx, id)
				switch {
				case errors.Is(err, model.ErrNotFound):
					return
				case err != nil:
					c.logger.Warn(ctx, "timer resync failed", logger.String("event_id", string(id)), logger.Error(err))
					continue
				}
				next = snap
			}
			select {
			case out <- next:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
