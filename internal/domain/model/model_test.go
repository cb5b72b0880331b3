package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/catador/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSpanishDeck(t *testing.T) {
	Convey("Given the Spanish deck", t, func() {
		deck := model.SpanishDeck()

		Convey("Then it should hold 40 distinct cards", func() {
			So(len(deck), ShouldEqual, 40)
			seen := map[model.CardID]bool{}
			for _, c := range deck {
				So(seen[c.ID], ShouldBeFalse)
				seen[c.ID] = true
			}
		})

		Convey("Then figures should carry their Spanish names", func() {
			c, ok := model.LookupCard("OROS-1")
			So(ok, ShouldBeTrue)
			So(c.Name, ShouldEqual, "As de Oros")
			c, ok = model.LookupCard("bastos-12")
			So(ok, ShouldBeTrue)
			So(c.Name, ShouldEqual, "Rey de Bastos")
		})

		Convey("Then eights and nines should not exist", func() {
			_, ok := model.LookupCard("copas-8")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestNames(t *testing.T) {
	Convey("Given display names", t, func() {
		So(model.NormalizeName("  Ana   María "), ShouldEqual, "ana maría")

		clean, err := model.CleanName("  Ana \t María ")
		So(err, ShouldBeNil)
		So(clean, ShouldEqual, "Ana María")

		_, err = model.CleanName("   ")
		So(errors.Is(err, model.ErrInvalidName), ShouldBeTrue)
		So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)

		_, err = model.CleanName("host")
		So(errors.Is(err, model.ErrInvalidName), ShouldBeTrue)
	})

	Convey("Given ratings", t, func() {
		So(model.ValidateRating(1), ShouldBeNil)
		So(model.ValidateRating(5), ShouldBeNil)
		So(errors.Is(model.ValidateRating(0), model.ErrInvalidRating), ShouldBeTrue)
		So(errors.Is(model.ValidateRating(6), model.ErrInvalidInput), ShouldBeTrue)
	})
}

func TestTimerState(t *testing.T) {
	Convey("Given timer states", t, func() {
		now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
		started := now.Add(-10 * time.Minute)
		expires := now.Add(20 * time.Minute)

		Convey("When the timer is running", func() {
			ts := model.TimerState{Active: true, StartedAt: &started, ExpiresAt: &expires}
			So(ts.Status(now), ShouldEqual, model.TimerRunning)
			So(ts.Remaining(now), ShouldEqual, 20*time.Minute)
			So(ts.Expired(now), ShouldBeFalse)
			So(ts.Expired(expires), ShouldBeTrue)
			So(ts.Remaining(expires.Add(time.Minute)), ShouldEqual, 0)
		})

		Convey("When the timer is paused", func() {
			left := 5 * time.Minute
			ts := model.TimerState{StartedAt: &started, ExpiresAt: &expires, PausedRemaining: &left}
			So(ts.Status(now), ShouldEqual, model.TimerPaused)
			So(ts.Remaining(now.Add(time.Hour)), ShouldEqual, left)
			So(ts.Expired(now.Add(time.Hour)), ShouldBeFalse)
		})

		Convey("When the timer ran out and was marked inactive", func() {
			ts := model.TimerState{StartedAt: &started, ExpiresAt: &expires}
			So(ts.Status(now), ShouldEqual, model.TimerExpired)
		})

		Convey("When the timer was never started", func() {
			So(model.TimerState{}.Status(now), ShouldEqual, model.TimerIdle)
		})

		Convey("When cloning", func() {
			first := started.Add(-time.Hour)
			ts := model.TimerState{Active: true, StartedAt: &started, ExpiresAt: &expires, FirstStartedAt: &first}
			c := ts.Clone()
			*c.ExpiresAt = c.ExpiresAt.Add(time.Hour)
			*c.FirstStartedAt = c.FirstStartedAt.Add(time.Hour)
			So(ts.ExpiresAt.Equal(expires), ShouldBeTrue)
			So(ts.FirstStartedAt.Equal(first), ShouldBeTrue)
		})

		Convey("When the timer was stopped after a start", func() {
			ts := model.TimerState{FirstStartedAt: &started}
			So(ts.Status(now), ShouldEqual, model.TimerIdle)
			So(ts.Started(), ShouldBeFalse)
			So(ts.Locked(), ShouldBeTrue)
			So(ts.BonusAnchor().Equal(started), ShouldBeTrue)
		})

		Convey("When only the current start is known", func() {
			ts := model.TimerState{Active: true, StartedAt: &started, ExpiresAt: &expires}
			So(ts.Locked(), ShouldBeFalse)
			So(ts.BonusAnchor().Equal(started), ShouldBeTrue)
			So(model.TimerState{}.BonusAnchor(), ShouldBeNil)
		})
	})
}

func TestSessionProgressClone(t *testing.T) {
	Convey("Given a progress record", t, func() {
		p := model.NewSessionProgress("ev", "s1")
		p.Assignments["t1"] = "oros-1"
		p.Ratings["t1"] = 4
		p.PreferenceOrder = []model.TagID{"t1"}

		c := p.Clone()
		c.Assignments["t2"] = "oros-2"
		c.PreferenceOrder[0] = "t9"

		So(len(p.Assignments), ShouldEqual, 1)
		So(p.PreferenceOrder[0], ShouldEqual, model.TagID("t1"))
		holder, ok := p.CardHolder("oros-1")
		So(ok, ShouldBeTrue)
		So(holder, ShouldEqual, model.TagID("t1"))
		So(p.HasWork(), ShouldBeTrue)
	})
}
