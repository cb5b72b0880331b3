package broadcast

import (
	"context"
	"testing"

	"github.com/okian/catador/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func snapshot(id model.EventID, remaining int64) model.TimerSnapshot {
	return model.TimerSnapshot{EventID: id, Status: model.TimerRunning, RemainingMs: remaining}
}

func TestHub(t *testing.T) {
	ctx := context.Background()

	Convey("Given a hub with subscribers on two events", t, func() {
		hub := NewHub(WithBufferSize(2))
		a1, cancelA1 := hub.Subscribe("a")
		a2, cancelA2 := hub.Subscribe("a")
		b, cancelB := hub.Subscribe("b")
		defer cancelA2()
		defer cancelB()

		Convey("When a snapshot is published for one event", func() {
			hub.Publish(ctx, snapshot("a", 1000))

			Convey("Then only that event's subscribers receive it", func() {
				So((<-a1).RemainingMs, ShouldEqual, 1000)
				So((<-a2).RemainingMs, ShouldEqual, 1000)
				So(len(b), ShouldEqual, 0)
			})
		})

		Convey("When a subscriber falls behind", func() {
			for i := int64(1); i <= 5; i++ {
				hub.Publish(ctx, snapshot("a", i))
			}

			Convey("Then it keeps the newest snapshots", func() {
				So((<-a1).RemainingMs, ShouldEqual, 4)
				So((<-a1).RemainingMs, ShouldEqual, 5)
			})
		})

		Convey("When a subscriber cancels", func() {
			cancelA1()
			cancelA1()

			Convey("Then its channel is closed and it is no longer counted", func() {
				_, open := <-a1
				So(open, ShouldBeFalse)
				So(hub.Subscribers("a"), ShouldEqual, 1)
				So(func() { hub.Publish(ctx, snapshot("a", 1)) }, ShouldNotPanic)
			})
		})
	})
}
