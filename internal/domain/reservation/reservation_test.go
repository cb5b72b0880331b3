package reservation_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/okian/catador/internal/adapters/repository"
	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/internal/domain/reservation"
	"github.com/okian/catador/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

type brokenStore struct{}

func (brokenStore) IsNameTaken(context.Context, model.EventID, string, model.SessionID) (bool, error) {
	return false, errors.New("connection reset")
}

func (brokenStore) ReserveName(context.Context, model.EventID, model.SessionID, string) (*model.SessionProgress, error) {
	return nil, errors.New("connection reset")
}

func newStore(ctx context.Context) *repository.MemoryStore {
	store := repository.NewMemoryStore()
	_ = store.CreateEvent(ctx, &model.Event{ID: "ev1", Name: "Cata", PIN: "12345", CreatedAt: time.Now()})
	return store
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	Convey("Given a registry over an event", t, func() {
		reg := reservation.NewRegistry(newStore(ctx))

		Convey("When a session reserves a name", func() {
			p, err := reg.Reserve(ctx, "ev1", "  Ana   María ", "s1")

			Convey("Then whitespace is tidied and the name is held", func() {
				So(err, ShouldBeNil)
				So(p.ParticipantName, ShouldEqual, "Ana María")
				taken, err := reg.IsNameTaken(ctx, "ev1", "ana maría", "s2")
				So(err, ShouldBeNil)
				So(taken, ShouldBeTrue)
			})

			Convey("Then another session gets NameTaken", func() {
				_, err := reg.Reserve(ctx, "ev1", "ANA MARÍA", "s2")
				So(errors.Is(err, model.ErrNameTaken), ShouldBeTrue)
			})

			Convey("Then the holder is not blocked by itself", func() {
				taken, _ := reg.IsNameTaken(ctx, "ev1", "Ana María", "s1")
				So(taken, ShouldBeFalse)
				_, err := reg.Reserve(ctx, "ev1", "Ana María", "s1")
				So(err, ShouldBeNil)
			})
		})

		Convey("When the name is invalid", func() {
			for _, name := range []string{"", "   ", "host", "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopq"} {
				_, err := reg.Reserve(ctx, "ev1", name, "s1")
				So(errors.Is(err, model.ErrInvalidName), ShouldBeTrue)
				So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
			}

			Convey("Then it is never reported as taken", func() {
				taken, err := reg.IsNameTaken(ctx, "ev1", "", "s1")
				So(err, ShouldBeNil)
				So(taken, ShouldBeFalse)
			})
		})

		Convey("When the session id is the host sentinel", func() {
			_, err := reg.Reserve(ctx, "ev1", "Ana", model.HostSessionID)
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When many sessions race for one name", func() {
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins []model.SessionID
			)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(id model.SessionID) {
					defer wg.Done()
					if _, err := reg.Reserve(ctx, "ev1", "Lucía", id); err == nil {
						mu.Lock()
						wins = append(wins, id)
						mu.Unlock()
					}
				}(model.SessionID(fmt.Sprintf("s%02d", i)))
			}
			wg.Wait()

			Convey("Then exactly one holds it", func() {
				So(len(wins), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a failing store", t, func() {
		reg := reservation.NewRegistry(brokenStore{})

		Convey("Then failures surface as StoreUnavailable", func() {
			_, err := reg.Reserve(ctx, "ev1", "Ana", "s1")
			So(errors.Is(err, model.ErrStoreUnavailable), ShouldBeTrue)
			_, err = reg.IsNameTaken(ctx, "ev1", "Ana", "s1")
			So(errors.Is(err, model.ErrStoreUnavailable), ShouldBeTrue)
		})
	})
}
