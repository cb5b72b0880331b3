package timer_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/catador/internal/adapters/mq/broadcast"
	"github.com/okian/catador/internal/adapters/repository"
	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/internal/domain/timer"
	"github.com/okian/catador/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

var start = time.Date(2026, 5, 2, 21, 0, 0, 0, time.UTC)

type expiryRecorder struct {
	calls atomic.Int32
	fail  atomic.Bool
	fired chan model.EventID
}

func newRecorder() *expiryRecorder {
	return &expiryRecorder{fired: make(chan model.EventID, 16)}
}

func (r *expiryRecorder) handle(_ context.Context, id model.EventID) error {
	r.calls.Add(1)
	if r.fail.Load() {
		return errors.New("store down")
	}
	r.fired <- id
	return nil
}

func (r *expiryRecorder) wait() bool {
	select {
	case <-r.fired:
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

type fixture struct {
	store *repository.MemoryStore
	clock *clockwork.FakeClock
	rec   *expiryRecorder
	co    *timer.Coordinator
}

func newFixture(ctx context.Context) fixture {
	clock := clockwork.NewFakeClockAt(start)
	store := repository.NewMemoryStore(repository.WithClock(clock))
	So(store.CreateEvent(ctx, &model.Event{ID: "ev1", Name: "Cata", PIN: "12345", CreatedAt: start}), ShouldBeNil)
	rec := newRecorder()
	co := timer.NewCoordinator(store, broadcast.NewHub(),
		timer.WithClock(clock),
		timer.WithExpiryHandler(rec.handle),
	)
	return fixture{store: store, clock: clock, rec: rec, co: co}
}

func TestCommands(t *testing.T) {
	ctx := context.Background()

	Convey("Given an event with an idle timer", t, func() {
		f := newFixture(ctx)
		defer f.co.Close()

		Convey("Then pause, resume and extend have nothing to act on", func() {
			_, err := f.co.Pause(ctx, "ev1")
			So(errors.Is(err, model.ErrTimerNotActive), ShouldBeTrue)
			_, err = f.co.Resume(ctx, "ev1")
			So(errors.Is(err, model.ErrTimerNotPaused), ShouldBeTrue)

			snap, err := f.co.Extend(ctx, "ev1", 5*time.Minute)
			So(err, ShouldBeNil)
			So(snap.Status, ShouldEqual, model.TimerIdle)
			e, _ := f.store.GetEvent(ctx, "ev1")
			So(e.Timer, ShouldResemble, model.TimerState{})
			So(e.Timer.Locked(), ShouldBeFalse)
		})

		Convey("Then durations are validated", func() {
			_, err := f.co.Start(ctx, "ev1", 0)
			So(errors.Is(err, model.ErrInvalidDuration), ShouldBeTrue)
			_, err = f.co.Start(ctx, "ev1", 48*time.Hour)
			So(errors.Is(err, model.ErrInvalidDuration), ShouldBeTrue)
		})

		Convey("Then unknown events are reported", func() {
			_, err := f.co.Start(ctx, "missing", time.Minute)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the countdown starts", func() {
			snap, err := f.co.Start(ctx, "ev1", 10*time.Minute)
			So(err, ShouldBeNil)

			Convey("Then it runs from now", func() {
				So(snap.Status, ShouldEqual, model.TimerRunning)
				So(snap.RemainingMs, ShouldEqual, (10 * time.Minute).Milliseconds())
				So(snap.Timer.StartedAt.Equal(start), ShouldBeTrue)
				So(snap.Timer.ExpiresAt.Equal(start.Add(10*time.Minute)), ShouldBeTrue)

				_, err := f.co.Start(ctx, "ev1", time.Minute)
				So(errors.Is(err, model.ErrTimerActive), ShouldBeTrue)
			})

			Convey("Then extending moves the deadline by exactly the amount", func() {
				snap, err := f.co.Extend(ctx, "ev1", 5*time.Minute)
				So(err, ShouldBeNil)
				So(snap.Timer.ExpiresAt.Equal(start.Add(15*time.Minute)), ShouldBeTrue)
				e, _ := f.store.GetEvent(ctx, "ev1")
				So(e.Timer.ExpiresAt.Equal(start.Add(15*time.Minute)), ShouldBeTrue)
			})

			Convey("Then pause followed by resume keeps the deadline", func() {
				f.clock.Advance(2 * time.Minute)
				paused, err := f.co.Pause(ctx, "ev1")
				So(err, ShouldBeNil)
				So(paused.Status, ShouldEqual, model.TimerPaused)
				So(*paused.Timer.PausedRemaining, ShouldEqual, 8*time.Minute)
				So(paused.Timer.StartedAt.Equal(start), ShouldBeTrue)

				_, err = f.co.Extend(ctx, "ev1", time.Minute)
				So(err, ShouldBeNil)

				resumed, err := f.co.Resume(ctx, "ev1")
				So(err, ShouldBeNil)
				So(resumed.Status, ShouldEqual, model.TimerRunning)
				So(resumed.Timer.ExpiresAt.Equal(start.Add(10*time.Minute)), ShouldBeTrue)
				So(resumed.Timer.PausedRemaining, ShouldBeNil)
			})

			Convey("Then stop clears it but remembers the first start", func() {
				snap, err := f.co.Stop(ctx, "ev1")
				So(err, ShouldBeNil)
				So(snap.Status, ShouldEqual, model.TimerIdle)
				e, _ := f.store.GetEvent(ctx, "ev1")
				So(e.Timer.Active, ShouldBeFalse)
				So(e.Timer.StartedAt, ShouldBeNil)
				So(e.Timer.ExpiresAt, ShouldBeNil)
				So(e.Timer.PausedRemaining, ShouldBeNil)
				So(e.Timer.Locked(), ShouldBeTrue)
				So(e.Timer.FirstStartedAt.Equal(start), ShouldBeTrue)

				again, err := f.co.Stop(ctx, "ev1")
				So(err, ShouldBeNil)
				So(again.Status, ShouldEqual, model.TimerIdle)
			})

			Convey("Then a restart keeps the first start", func() {
				_, err := f.co.Stop(ctx, "ev1")
				So(err, ShouldBeNil)
				f.clock.Advance(20 * time.Minute)
				snap, err := f.co.Start(ctx, "ev1", 10*time.Minute)
				So(err, ShouldBeNil)
				So(snap.Timer.StartedAt.Equal(start.Add(20*time.Minute)), ShouldBeTrue)
				So(snap.Timer.FirstStartedAt.Equal(start), ShouldBeTrue)
				So(snap.Timer.BonusAnchor().Equal(start), ShouldBeTrue)
			})
		})

		Convey("When results were revealed", func() {
			_, err := f.store.MarkEventFinalized(ctx, "ev1")
			So(err, ShouldBeNil)
			_, err = f.co.Start(ctx, "ev1", time.Minute)
			So(errors.Is(err, model.ErrEventFinalized), ShouldBeTrue)
		})
	})
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running countdown", t, func() {
		f := newFixture(ctx)
		defer f.co.Close()
		_, err := f.co.Start(ctx, "ev1", time.Minute)
		So(err, ShouldBeNil)

		Convey("When its deadline passes", func() {
			f.clock.Advance(time.Minute)
			So(f.rec.wait(), ShouldBeTrue)

			Convey("Then the timer stops but keeps its bounds", func() {
				e, _ := f.store.GetEvent(ctx, "ev1")
				So(e.Timer.Active, ShouldBeFalse)
				So(e.Timer.StartedAt.Equal(start), ShouldBeTrue)
				So(e.Timer.ExpiresAt.Equal(start.Add(time.Minute)), ShouldBeTrue)

				snap, err := f.co.State(ctx, "ev1")
				So(err, ShouldBeNil)
				So(snap.Status, ShouldEqual, model.TimerExpired)
				So(snap.RemainingMs, ShouldEqual, 0)
			})

			Convey("Then the handler ran once", func() {
				for i := 0; i < 3; i++ {
					_, _ = f.co.State(ctx, "ev1")
				}
				So(f.rec.calls.Load(), ShouldEqual, 1)
			})

			Convey("Then a new countdown can start", func() {
				snap, err := f.co.Start(ctx, "ev1", time.Minute)
				So(err, ShouldBeNil)
				So(snap.Status, ShouldEqual, model.TimerRunning)
			})
		})

		Convey("When it is paused before the deadline", func() {
			_, err := f.co.Pause(ctx, "ev1")
			So(err, ShouldBeNil)
			f.clock.Advance(5 * time.Minute)

			Convey("Then nothing expires", func() {
				snap, err := f.co.State(ctx, "ev1")
				So(err, ShouldBeNil)
				So(snap.Status, ShouldEqual, model.TimerPaused)
				So(f.rec.calls.Load(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a deadline that passed with no scheduler armed", t, func() {
		f := newFixture(ctx)
		defer f.co.Close()
		started := start.Add(-10 * time.Minute)
		expires := start.Add(-time.Second)
		So(f.store.SaveTimer(ctx, "ev1", model.TimerState{Active: true, StartedAt: &started, ExpiresAt: &expires}), ShouldBeNil)

		Convey("When many readers check it at once", func() {
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = f.co.State(ctx, "ev1")
				}()
			}
			wg.Wait()

			Convey("Then it expires exactly once", func() {
				So(f.rec.calls.Load(), ShouldEqual, 1)
				e, _ := f.store.GetEvent(ctx, "ev1")
				So(e.Timer.Active, ShouldBeFalse)
			})
		})

		Convey("When the handler fails", func() {
			f.rec.fail.Store(true)
			_, err := f.co.State(ctx, "ev1")
			So(err, ShouldNotBeNil)

			Convey("Then the next check runs it again", func() {
				f.rec.fail.Store(false)
				snap, err := f.co.State(ctx, "ev1")
				So(err, ShouldBeNil)
				So(snap.Status, ShouldEqual, model.TimerExpired)
				So(f.rec.calls.Load(), ShouldEqual, 2)

				_, err = f.co.State(ctx, "ev1")
				So(err, ShouldBeNil)
				So(f.rec.calls.Load(), ShouldEqual, 2)
			})
		})
	})
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a countdown persisted by an earlier process", t, func() {
		f := newFixture(ctx)
		defer f.co.Close()
		started := start
		expires := start.Add(5 * time.Minute)
		So(f.store.SaveTimer(ctx, "ev1", model.TimerState{Active: true, StartedAt: &started, ExpiresAt: &expires}), ShouldBeNil)

		Convey("When the coordinator restores and the deadline passes", func() {
			So(f.co.Restore(ctx), ShouldBeNil)
			f.clock.Advance(5 * time.Minute)

			Convey("Then the scheduler expires it", func() {
				So(f.rec.wait(), ShouldBeTrue)
				So(f.rec.calls.Load(), ShouldEqual, 1)
			})
		})
	})
}

func TestSubscribe(t *testing.T) {
	Convey("Given a subscriber to an idle timer", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f := newFixture(ctx)
		defer f.co.Close()

		stream, err := f.co.Subscribe(ctx, "ev1")
		So(err, ShouldBeNil)
		first := <-stream
		So(first.Status, ShouldEqual, model.TimerIdle)

		Convey("When nothing changes for a resync interval", func() {
			So(f.clock.BlockUntilContext(ctx, 1), ShouldBeNil)
			f.clock.Advance(60 * time.Second)

			Convey("Then a fresh snapshot with the server time arrives", func() {
				snap := <-stream
				So(snap.ServerTime.Equal(start.Add(60*time.Second)), ShouldBeTrue)
			})
		})

		Convey("When the host starts the countdown", func() {
			_, err := f.co.Start(ctx, "ev1", 3*time.Minute)
			So(err, ShouldBeNil)

			Convey("Then the change is pushed", func() {
				snap := <-stream
				So(snap.Status, ShouldEqual, model.TimerRunning)
				So(snap.RemainingMs, ShouldEqual, (3 * time.Minute).Milliseconds())
			})
		})

		Convey("When the subscriber goes away", func() {
			cancel()

			Convey("Then the stream closes", func() {
				for range stream {
				}
				So(true, ShouldBeTrue)
			})
		})
	})

	Convey("Given an unknown event", t, func() {
		ctx := context.Background()
		f := newFixture(ctx)
		defer f.co.Close()
		_, err := f.co.Subscribe(ctx, "missing")
		So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
	})
}
