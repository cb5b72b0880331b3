// Package timer owns the single countdown of each event: host commands,
// server-side expiry and the snapshot streams clients count down from.
package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/catador/internal/domain/dedupe"
	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
	"github.com/okian/catador/pkg/metrics"
)

const (
	defaultResyncInterval = 60 * time.Second
	defaultMaxDuration    = 24 * time.Hour
)

// Store is the event persistence the coordinator needs.
type Store interface {
	GetEvent(ctx context.Context, id model.EventID) (*model.Event, error)
	ListEvents(ctx context.Context) ([]*model.Event, error)
	SaveTimer(ctx context.Context, id model.EventID, t model.TimerState) error
	ExpireTimer(ctx context.Context, id model.EventID, expiresAt time.Time) (bool, error)
}

// Broadcaster fans timer snapshots out to subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, snap model.TimerSnapshot)
	Subscribe(eventID model.EventID) (<-chan model.TimerSnapshot, func())
}

// ExpiryHandler runs when an event's countdown reaches zero. It must be
// idempotent; a returned error lets a later check run it again.
type ExpiryHandler func(ctx context.Context, eventID model.EventID) error

// Coordinator applies timer commands and expires countdowns. Commands on one
// event are serialized; the store is the source of truth.
type Coordinator struct {
	store       Store
	bus         Broadcaster
	clock       clockwork.Clock
	logger      logger.Logger
	dedupe      dedupe.Deduper
	onExpire    ExpiryHandler
	resync      time.Duration
	maxDuration time.Duration

	mu     sync.Mutex
	locks  map[model.EventID]*sync.Mutex
	armed  map[model.EventID]*armed
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCoordinator creates a coordinator over store publishing to bus.
func NewCoordinator(store Store, bus Broadcaster, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		bus:         bus,
		clock:       clockwork.NewRealClock(),
		resync:      defaultResyncInterval,
		maxDuration: defaultMaxDuration,
		locks:       make(map[model.EventID]*sync.Mutex),
		armed:       make(map[model.EventID]*armed),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Named("timer")
	}
	if c.dedupe == nil {
		c.dedupe = dedupe.NewInMemoryDeduper()
	}
	if c.onExpire == nil {
		c.onExpire = func(context.Context, model.EventID) error { return nil }
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Start begins a countdown of d. It fails with ErrTimerActive while one runs.
func (c *Coordinator) Start(ctx context.Context, id model.EventID, d time.Duration) (model.TimerSnapshot, error) {
	if err := c.validDuration(d); err != nil {
		return model.TimerSnapshot{}, err
	}
	return c.command(ctx, id, "start", func(t *model.TimerState, now time.Time) (bool, error) {
		if t.Active {
			return false, model.ErrTimerActive
		}
		expires := now.Add(d)
		first := t.FirstStartedAt
		if first == nil {
			first = &now
		}
		*t = model.TimerState{Active: true, StartedAt: &now, ExpiresAt: &expires, FirstStartedAt: first}
		return true, nil
	})
}

// Pause freezes the remaining time. startedAt is kept.
func (c *Coordinator) Pause(ctx context.Context, id model.EventID) (model.TimerSnapshot, error) {
	return c.command(ctx, id, "pause", func(t *model.TimerState, now time.Time) (bool, error) {
		if !t.Active || t.ExpiresAt == nil {
			return false, model.ErrTimerNotActive
		}
		remaining := t.ExpiresAt.Sub(now)
		t.Active = false
		t.PausedRemaining = &remaining
		return true, nil
	})
}

// Resume restarts a paused countdown with the time it had left.
func (c *Coordinator) Resume(ctx context.Context, id model.EventID) (model.TimerSnapshot, error) {
	return c.command(ctx, id, "resume", func(t *model.TimerState, now time.Time) (bool, error) {
		if !t.Paused() {
			return false, model.ErrTimerNotPaused
		}
		expires := now.Add(*t.PausedRemaining)
		t.Active = true
		t.ExpiresAt = &expires
		t.PausedRemaining = nil
		return true, nil
	})
}

// Extend pushes the deadline of a running countdown by d. On an inactive
// timer it changes nothing.
func (c *Coordinator) Extend(ctx context.Context, id model.EventID, d time.Duration) (model.TimerSnapshot, error) {
	if err := c.validDuration(d); err != nil {
		return model.TimerSnapshot{}, err
	}
	return c.command(ctx, id, "extend", func(t *model.TimerState, _ time.Time) (bool, error) {
		if !t.Active || t.ExpiresAt == nil {
			return false, nil
		}
		expires := t.ExpiresAt.Add(d)
		t.ExpiresAt = &expires
		return true, nil
	})
}

// Stop clears the countdown entirely.
func (c *Coordinator) Stop(ctx context.Context, id model.EventID) (model.TimerSnapshot, error) {
	return c.command(ctx, id, "stop", func(t *model.TimerState, _ time.Time) (bool, error) {
		cleared := model.TimerState{FirstStartedAt: t.FirstStartedAt}
		if *t == cleared {
			return false, nil
		}
		*t = cleared
		return true, nil
	})
}

// State returns the current snapshot, expiring the countdown first when its
// deadline has passed.
func (c *Coordinator) State(ctx context.Context, id model.EventID) (model.TimerSnapshot, error) {
	unlock := c.lock(id)
	defer unlock()
	e, err := c.current(ctx, id)
	if err != nil {
		return model.TimerSnapshot{}, err
	}
	return e.Timer.Snapshot(id, c.now()), nil
}

// command loads the event, lets fn change its timer and persists, re-arms
// and publishes the result when fn reports a change.
func (c *Coordinator) command(ctx context.Context, id model.EventID, name string, fn func(t *model.TimerState, now time.Time) (bool, error)) (model.TimerSnapshot, error) {
	unlock := c.lock(id)
	defer unlock()

	e, err := c.current(ctx, id)
	if err != nil {
		metrics.RecordTimerCommand(name, "error")
		return model.TimerSnapshot{}, err
	}
	if e.Finalized {
		metrics.RecordTimerCommand(name, "rejected")
		return model.TimerSnapshot{}, model.ErrEventFinalized
	}
	now := c.now()
	next := e.Timer.Clone()
	changed, err := fn(&next, now)
	if err != nil {
		metrics.RecordTimerCommand(name, "rejected")
		return model.TimerSnapshot{}, err
	}
	snap := next.Snapshot(id, now)
	if !changed {
		metrics.RecordTimerCommand(name, "noop")
		return snap, nil
	}
	if err := c.store.SaveTimer(ctx, id, next); err != nil {
		metrics.RecordTimerCommand(name, "error")
		return model.TimerSnapshot{}, storeError("save timer", err)
	}
	c.schedule(id, next)
	c.bus.Publish(ctx, snap)
	metrics.RecordTimerCommand(name, "ok")
	c.logger.Info(ctx, "timer "+name,
		logger.String("event_id", string(id)),
		logger.String("status", snap.Status),
		logger.Int64("remaining_ms", snap.RemainingMs),
	)
	return snap, nil
}

// current loads the event and applies a lazy expiry. Callers hold the event lock.
func (c *Coordinator) current(ctx context.Context, id model.EventID) (*model.Event, error) {
	e, err := c.store.GetEvent(ctx, id)
	if err != nil {
		return nil, storeError("get event", err)
	}
	switch {
	case due(e.Timer, c.now()):
	case e.Timer.ExpiresAt != nil && expiredAt(e.Timer, *e.Timer.ExpiresAt):
		// Expired earlier; reruns the handler if it has not succeeded here.
		return e, c.expire(ctx, id, *e.Timer.ExpiresAt)
	default:
		return e, nil
	}
	if err := c.expire(ctx, id, *e.Timer.ExpiresAt); err != nil {
		return nil, err
	}
	if e, err = c.store.GetEvent(ctx, id); err != nil {
		return nil, storeError("get event", err)
	}
	return e, nil
}

// expire marks the countdown ending at expiresAt inactive and runs the
// expiry handler once per deadline. Callers hold the event lock.
func (c *Coordinator) expire(ctx context.Context, id model.EventID, expiresAt time.Time) error {
	key := fmt.Sprintf("%s/%d", id, expiresAt.UnixMilli())
	if c.dedupe.SeenAndRecord(ctx, key) {
		return nil
	}
	ok, err := c.store.ExpireTimer(ctx, id, expiresAt)
	if err != nil {
		c.dedupe.Unrecord(ctx, key)
		return storeError("expire timer", err)
	}
	e, err := c.store.GetEvent(ctx, id)
	if err != nil {
		c.dedupe.Unrecord(ctx, key)
		return storeError("get event", err)
	}
	if !ok && !expiredAt(e.Timer, expiresAt) {
		// The host changed the countdown first.
		return nil
	}
	c.disarm(id)
	metrics.RecordTimerExpiry()
	c.logger.Info(ctx, "timer expired",
		logger.String("event_id", string(id)),
		logger.Time("expires_at", expiresAt),
		logger.Bool("marked", ok),
	)
	c.bus.Publish(ctx, e.Timer.Snapshot(id, c.now()))

	if err := c.onExpire(ctx, id); err != nil {
		c.dedupe.Unrecord(ctx, key)
		c.logger.Error(ctx, "expiry handler failed", logger.String("event_id", string(id)), logger.Error(err))
		return fmt.Errorf("expire %s: %w", id, err)
	}
	return nil
}

// Forget drops the scheduler state of a deleted event.
func (c *Coordinator) Forget(id model.EventID) {
	c.disarm(id)
	c.mu.Lock()
	delete(c.locks, id)
	c.mu.Unlock()
}

func (c *Coordinator) lock(id model.EventID) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	c.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (c *Coordinator) validDuration(d time.Duration) error {
	if d <= 0 || d > c.maxDuration {
		return fmt.Errorf("%w: %s", model.ErrInvalidDuration, d)
	}
	return nil
}

func (c *Coordinator) now() time.Time {
	return c.clock.Now().UTC().Truncate(time.Millisecond)
}

// due reports whether a running countdown passed its deadline.
func due(t model.TimerState, now time.Time) bool {
	return t.Active && t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// expiredAt reports whether t is the stopped remains of the countdown that
// ended at expiresAt.
func expiredAt(t model.TimerState, expiresAt time.Time) bool {
	return !t.Active && t.StartedAt != nil && t.PausedRemaining == nil &&
		t.ExpiresAt != nil && t.ExpiresAt.UnixMilli() == expiresAt.UnixMilli()
}

func storeError(op string, err error) error {
	if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
}
