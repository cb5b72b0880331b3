package timer

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
)

// armed is one pending server-side expiry.
type armed struct {
	timer     clockwork.Timer
	expiresAt time.Time
	done      chan struct{}
}

// Restore arms a scheduler entry for every running countdown in the store
// and expires those whose deadline passed while nobody was watching.
func (c *Coordinator) Restore(ctx context.Context) error {
	events, err := c.store.ListEvents(ctx)
	if err != nil {
		return storeError("list events", err)
	}
	restored := 0
	for _, e := range events {
		if !e.Timer.Active || e.Timer.ExpiresAt == nil {
			continue
		}
		if due(e.Timer, c.now()) {
			if _, err := c.State(ctx, e.ID); err != nil {
				c.logger.Warn(ctx, "expire on restore failed", logger.String("event_id", string(e.ID)), logger.Error(err))
			}
			continue
		}
		c.schedule(e.ID, e.Timer)
		restored++
	}
	c.logger.Info(ctx, "timers restored", logger.Int("armed", restored))
	return nil
}

// Close stops every pending expiry and waits for running ones.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	for id, a := range c.armed {
		stopTimer(a)
		delete(c.armed, id)
	}
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// schedule arms or disarms the expiry of id to match t.
func (c *Coordinator) schedule(id model.EventID, t model.TimerState) {
	if !t.Active || t.ExpiresAt == nil {
		c.disarm(id)
		return
	}
	c.arm(id, *t.ExpiresAt)
}

func (c *Coordinator) arm(id model.EventID, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if a, ok := c.armed[id]; ok {
		if a.expiresAt.Equal(expiresAt) {
			return
		}
		stopTimer(a)
	}
	a := &armed{
		timer:     c.clock.NewTimer(expiresAt.Sub(c.clock.Now())),
		expiresAt: expiresAt,
		done:      make(chan struct{}),
	}
	c.armed[id] = a
	c.wg.Add(1)
	go c.wait(id, a)
}

func (c *Coordinator) wait(id model.EventID, a *armed) {
	defer c.wg.Done()
	select {
	case <-a.timer.Chan():
	case <-a.done:
		return
	case <-c.ctx.Done():
		return
	}

	c.mu.Lock()
	if c.armed[id] == a {
		delete(c.armed, id)
	}
	c.mu.Unlock()

	if _, err := c.State(c.ctx, id); err != nil {
		c.logger.Error(c.ctx, "scheduled expiry failed",
			logger.String("event_id", string(id)),
			logger.Time("expires_at", a.expiresAt),
			logger.Error(err),
		)
	}
}

func (c *Coordinator) disarm(id model.EventID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.armed[id]; ok {
		stopTimer(a)
		delete(c.armed, id)
	}
}

// stopTimer cancels a pending expiry. Callers hold mu.
func stopTimer(a *armed) {
	a.timer.Stop()
	close(a.done)
}
