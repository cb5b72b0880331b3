package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

var epoch = time.Date(2026, 5, 2, 21, 0, 0, 0, time.UTC)

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		s := NewMemoryStore(WithClock(clockwork.NewFakeClockAt(epoch)))
		defer s.Close()
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catador.db")
		s, err := OpenSQL(context.Background(), DriverSQLite, path, WithClock(clockwork.NewFakeClockAt(epoch)))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		defer s.Close()
		fn(t, s)
	})
}

func seedEvent(t *testing.T, s Store, id model.EventID, pin string) *model.Event {
	t.Helper()
	e := &model.Event{ID: id, Name: "Cata " + string(id), Date: "2026-05-02", PIN: pin, Active: true, CreatedAt: epoch}
	if err := s.CreateEvent(context.Background(), e); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return e
}

func TestStore_Events(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedEvent(t, s, "ev1", "1111")

		if err := s.CreateEvent(ctx, &model.Event{ID: "ev2", Name: "dup", PIN: "1111", CreatedAt: epoch}); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict on duplicate pin, got %v", err)
		}

		got, err := s.GetEventByPIN(ctx, "1111")
		if err != nil {
			t.Fatalf("get by pin: %v", err)
		}
		if got.ID != "ev1" || !got.Active || got.Finalized {
			t.Errorf("unexpected event %+v", got)
		}
		if _, err := s.GetEvent(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		later := &model.Event{ID: "ev0", Name: "later", PIN: "2222", CreatedAt: epoch.Add(time.Hour)}
		if err := s.CreateEvent(ctx, later); err != nil {
			t.Fatalf("create: %v", err)
		}
		list, err := s.ListEvents(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 2 || list[0].ID != "ev0" {
			t.Errorf("expected newest first, got %v", list)
		}

		ok, err := s.MarkEventFinalized(ctx, "ev1")
		if err != nil || !ok {
			t.Fatalf("finalize event: %v %v", ok, err)
		}
		ok, err = s.MarkEventFinalized(ctx, "ev1")
		if err != nil || ok {
			t.Errorf("second finalize should be a no-op, got %v %v", ok, err)
		}
		if _, err := s.MarkEventFinalized(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStore_Timer(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedEvent(t, s, "ev1", "1111")

		started := epoch
		expires := epoch.Add(30 * time.Minute)
		if err := s.SaveTimer(ctx, "ev1", model.TimerState{Active: true, StartedAt: &started, ExpiresAt: &expires}); err != nil {
			t.Fatalf("save timer: %v", err)
		}

		ok, err := s.ExpireTimer(ctx, "ev1", epoch.Add(10*time.Minute))
		if err != nil || ok {
			t.Errorf("expire with stale deadline should not apply, got %v %v", ok, err)
		}
		ok, err = s.ExpireTimer(ctx, "ev1", expires)
		if err != nil || !ok {
			t.Fatalf("expire: %v %v", ok, err)
		}
		ok, _ = s.ExpireTimer(ctx, "ev1", expires)
		if ok {
			t.Error("expire should apply once")
		}

		e, err := s.GetEvent(ctx, "ev1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if e.Timer.Active || e.Timer.StartedAt == nil || !e.Timer.StartedAt.Equal(started) {
			t.Errorf("unexpected timer %+v", e.Timer)
		}
		if !e.Timer.Expired(expires) {
			t.Error("timer should report expired")
		}

		remaining := 12 * time.Minute
		if err := s.SaveTimer(ctx, "ev1", model.TimerState{StartedAt: &started, ExpiresAt: &expires, PausedRemaining: &remaining}); err != nil {
			t.Fatalf("save paused: %v", err)
		}
		e, _ = s.GetEvent(ctx, "ev1")
		if e.Timer.PausedRemaining == nil || *e.Timer.PausedRemaining != remaining {
			t.Errorf("paused remaining not persisted: %+v", e.Timer)
		}

		if err := s.SaveTimer(ctx, "ev1", model.TimerState{FirstStartedAt: &started}); err != nil {
			t.Fatalf("save stopped: %v", err)
		}
		e, _ = s.GetEvent(ctx, "ev1")
		if e.Timer.StartedAt != nil || e.Timer.ExpiresAt != nil || !e.Timer.Locked() || !e.Timer.FirstStartedAt.Equal(started) {
			t.Errorf("stopped timer should keep only its first start: %+v", e.Timer)
		}
		if err := s.SaveTimer(ctx, "missing", model.TimerState{}); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStore_TagsAndRoster(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedEvent(t, s, "ev1", "1111")

		tags := []model.TagDefinition{
			{ID: "t2", EventID: "ev1", TagID: "tag2", TagName: "Rioja", CardID: "copas-2", CardName: "Dos de Copas"},
			{ID: "t1", EventID: "ev1", TagID: "tag1", TagName: "Albariño", CardID: "oros-1", CardName: "As de Oros"},
		}
		for _, tag := range tags {
			if err := s.AddTag(ctx, tag); err != nil {
				t.Fatalf("add tag: %v", err)
			}
		}
		dup := model.TagDefinition{ID: "t3", EventID: "ev1", TagID: "tag3", TagName: "x", CardID: "oros-1", CardName: "As de Oros"}
		if err := s.AddTag(ctx, dup); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict for reused card, got %v", err)
		}
		list, err := s.ListTags(ctx, "ev1")
		if err != nil || len(list) != 2 || list[0].TagID != "tag1" {
			t.Fatalf("unexpected tags %v %v", list, err)
		}
		if err := s.DeleteTag(ctx, "ev1", "tag2"); err != nil {
			t.Fatalf("delete tag: %v", err)
		}
		if err := s.DeleteTag(ctx, "ev1", "tag2"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		if err := s.AddParticipant(ctx, model.Participant{ID: "p1", EventID: "ev1", Name: "Ana"}); err != nil {
			t.Fatalf("add participant: %v", err)
		}
		if err := s.AddParticipant(ctx, model.Participant{ID: "p2", EventID: "ev1", Name: "  ANA "}); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
		if err := s.AddParticipant(ctx, model.Participant{ID: "p3", EventID: "ev1", Name: "Bea"}); err != nil {
			t.Fatalf("add participant: %v", err)
		}
		if n, _ := s.CountParticipants(ctx, "ev1"); n != 2 {
			t.Errorf("expected 2 participants, got %d", n)
		}
		if err := s.DeleteParticipant(ctx, "ev1", "p1"); err != nil {
			t.Fatalf("delete participant: %v", err)
		}
		roster, _ := s.ListParticipants(ctx, "ev1")
		if len(roster) != 1 || roster[0].Name != "Bea" {
			t.Errorf("unexpected roster %v", roster)
		}
	})
}

func TestStore_ReserveName(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedEvent(t, s, "ev1", "1111")
		seedEvent(t, s, "ev2", "2222")

		p, err := s.ReserveName(ctx, "ev1", "s1", "María")
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if p.ParticipantName != "María" || p.Revision != 1 {
			t.Errorf("unexpected progress %+v", p)
		}

		if _, err := s.ReserveName(ctx, "ev1", "s2", " maría "); !errors.Is(err, ErrNameTaken) {
			t.Errorf("expected ErrNameTaken, got %v", err)
		}
		if _, err := s.ReserveName(ctx, "ev2", "s2", "María"); err != nil {
			t.Errorf("names are scoped per event: %v", err)
		}

		taken, err := s.IsNameTaken(ctx, "ev1", "MARÍA", "s2")
		if err != nil || !taken {
			t.Errorf("expected name taken, got %v %v", taken, err)
		}
		taken, _ = s.IsNameTaken(ctx, "ev1", "María", "s1")
		if taken {
			t.Error("a session does not conflict with itself")
		}

		// Re-selecting the same name is idempotent; renaming releases the old one.
		if _, err := s.ReserveName(ctx, "ev1", "s1", "María"); err != nil {
			t.Errorf("re-reserve: %v", err)
		}
		p, err = s.ReserveName(ctx, "ev1", "s1", "Mar")
		if err != nil {
			t.Fatalf("rename: %v", err)
		}
		if p.Revision != 3 {
			t.Errorf("expected revision 3, got %d", p.Revision)
		}
		if _, err := s.ReserveName(ctx, "ev1", "s2", "María"); err != nil {
			t.Errorf("released name should be free: %v", err)
		}

		if _, err := s.ReserveName(ctx, "missing", "s1", "Ana"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown event, got %v", err)
		}
	})
}

func TestStore_ReserveNameConcurrent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedEvent(t, s, "ev1", "1111")

		const racers = 8
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			wins  int
			taken int
		)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.ReserveName(ctx, "ev1", model.SessionID(fmt.Sprintf("s%d", i)), "Lucía")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrNameTaken):
					taken++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		if wins != 1 || taken != racers-1 {
			t.Errorf("expected exactly one winner, got wins=%d taken=%d", wins, taken)
		}
	})
}

func TestStore_ProgressWrites(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedEvent(t, s, "ev1", "1111")

		p, err := s.ReserveName(ctx, "ev1", "s1", "Ana")
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}

		next := p.Clone()
		next.Revision = p.Revision + 1
		next.ParticipantName = "ignored"
		next.Assignments["tag1"] = "oros-1"
		next.AssignmentTimestamps["tag1"] = epoch.Add(5 * time.Minute)
		next.PreferenceOrder = []model.TagID{"tag1"}
		next.Ratings["tag1"] = 4
		next.UpdatedAt = epoch.Add(5 * time.Minute)
		ok, err := s.SaveProgress(ctx, next)
		if err != nil || !ok {
			t.Fatalf("save: %v %v", ok, err)
		}

		stale := p.Clone()
		stale.Revision = next.Revision
		stale.Assignments["tag1"] = "bastos-7"
		ok, err = s.SaveProgress(ctx, stale)
		if err != nil || ok {
			t.Errorf("stale write should be dropped, got %v %v", ok, err)
		}

		got, err := s.GetProgress(ctx, "ev1", "s1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.ParticipantName != "Ana" {
			t.Errorf("save must not change the name, got %q", got.ParticipantName)
		}
		if got.Assignments["tag1"] != "oros-1" || got.Ratings["tag1"] != 4 || len(got.PreferenceOrder) != 1 {
			t.Errorf("unexpected progress %+v", got)
		}
		if !got.AssignmentTimestamps["tag1"].Equal(epoch.Add(5 * time.Minute)) {
			t.Errorf("timestamp not preserved: %v", got.AssignmentTimestamps["tag1"])
		}

		fin := got.Clone()
		fin.Revision = got.Revision + 1
		fin.Forced = true
		ok, err = s.FinalizeProgress(ctx, fin)
		if err != nil || !ok {
			t.Fatalf("finalize: %v %v", ok, err)
		}
		again := fin.Clone()
		again.Revision = fin.Revision + 1
		ok, err = s.FinalizeProgress(ctx, again)
		if err != nil || ok {
			t.Errorf("finalize should apply once, got %v %v", ok, err)
		}
		ok, _ = s.SaveProgress(ctx, again)
		if ok {
			t.Error("finalized progress must not change")
		}
		got, _ = s.GetProgress(ctx, "ev1", "s1")
		if !got.Finalized || !got.Forced {
			t.Errorf("expected forced finalization, got %+v", got)
		}

		if _, err := s.ReserveName(ctx, "ev1", "s1", "Otra"); !errors.Is(err, ErrSessionFinalized) {
			t.Errorf("expected ErrSessionFinalized, got %v", err)
		}
		if _, err := s.ReserveName(ctx, "ev1", "s2", "Ana"); err != nil {
			t.Errorf("finalized sessions release their name: %v", err)
		}

		missing := model.NewSessionProgress("ev1", "nobody")
		missing.Revision = 1
		if _, err := s.SaveProgress(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStore_SolutionAndDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedEvent(t, s, "ev1", "1111")

		sol := model.NewSessionProgress("ev1", model.HostSessionID)
		sol.Assignments["tag1"] = "oros-1"
		sol.UpdatedAt = epoch
		if err := s.SaveSolution(ctx, sol); err != nil {
			t.Fatalf("save solution: %v", err)
		}
		sol.Assignments["tag1"] = "copas-2"
		if err := s.SaveSolution(ctx, sol); err != nil {
			t.Fatalf("overwrite solution: %v", err)
		}
		if _, err := s.ReserveName(ctx, "ev1", "s1", "Ana"); err != nil {
			t.Fatalf("reserve: %v", err)
		}

		list, err := s.ListProgress(ctx, "ev1")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 2 || list[0].SessionID != model.HostSessionID {
			t.Fatalf("unexpected progress list %v", list)
		}
		if !list[0].Finalized || list[0].Assignments["tag1"] != "copas-2" {
			t.Errorf("unexpected solution %+v", list[0])
		}

		if err := s.SaveSolution(ctx, &model.SessionProgress{EventID: "missing"}); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		if err := s.DeleteEvent(ctx, "ev1"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.GetProgress(ctx, "ev1", "s1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("progress should go with the event, got %v", err)
		}
		if err := s.DeleteEvent(ctx, "ev1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		// The pin is free again.
		seedEvent(t, s, "ev3", "1111")
	})
}

func TestDialect_Rebind(t *testing.T) {
	pg := dialect{driver: DriverPostgres}
	if got := pg.rebind(`SELECT * FROM t WHERE a = ? AND b = ?`); got != `SELECT * FROM t WHERE a = $1 AND b = $2` {
		t.Errorf("unexpected rebind %q", got)
	}
	lite := dialect{driver: DriverSQLite}
	if got := lite.rebind(`a = ?`); got != `a = ?` {
		t.Errorf("sqlite query should be unchanged, got %q", got)
	}
}

func TestSQLiteDSN(t *testing.T) {
	if got := sqliteDSN("file:x.db?mode=memory"); got != "file:x.db?mode=memory" {
		t.Errorf("explicit DSN should pass through, got %q", got)
	}
	if got := sqliteDSN(""); got == "" {
		t.Error("empty path should default")
	}
}
