package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
	"github.com/okian/catador/pkg/metrics"
)

// SQLStore implements Store on database/sql for SQLite and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	opts    options
	logger  logger.Logger
}

var _ Store = (*SQLStore)(nil)

// OpenSQL opens the database, applies migrations and returns a ready store.
// For SQLite a bare path is expanded into a DSN with foreign keys, WAL and a
// busy timeout enabled.
func OpenSQL(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Named("repository.sql")
	}

	switch driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, unavailable("open", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(o.maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable("ping", err)
	}

	s := &SQLStore{db: db, dialect: dialect{driver: driver}, opts: o, logger: o.logger}
	version, err := migrate(ctx, db, s.dialect)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.logger.Info(ctx, "store ready", logger.String("driver", driver), logger.Int("schema_version", version))
	return s, nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "catador.db"
	}
	if strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", dsn, defaultBusyTimeout)
}

// Close closes the underlying pool.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds())) }()
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds())) }()
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds())) }()
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// execAffected runs a conditional write and reports whether any row changed.
func (s *SQLStore) execAffected(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return false, unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(op, err)
	}
	return n > 0, nil
}

// nullable helpers for millisecond timestamps.

func toMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func durationMillis(d *time.Duration) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: d.Milliseconds(), Valid: true}
}

func millisDuration(v sql.NullInt64) *time.Duration {
	if !v.Valid {
		return nil
	}
	d := time.Duration(v.Int64) * time.Millisecond
	return &d
}

const eventColumns = `id, name, event_date, pin, active, finalized, timer_active,
	timer_started_at, timer_expires_at, timer_paused_remaining_ms, timer_first_started_at, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*model.Event, error) {
	var (
		e                        model.Event
		started, expires, paused sql.NullInt64
		first                    sql.NullInt64
		createdAt                int64
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Date, &e.PIN, &e.Active, &e.Finalized, &e.Timer.Active,
		&started, &expires, &paused, &first, &createdAt); err != nil {
		return nil, err
	}
	e.Timer.StartedAt = fromMillis(started)
	e.Timer.ExpiresAt = fromMillis(expires)
	e.Timer.PausedRemaining = millisDuration(paused)
	e.Timer.FirstStartedAt = fromMillis(first)
	e.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &e, nil
}

// CreateEvent implements EventStore.
func (s *SQLStore) CreateEvent(ctx context.Context, e *model.Event) error {
	const op = "create event"
	_, err := s.exec(ctx, `INSERT INTO events(`+eventColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Name, e.Date, e.PIN, e.Active, e.Finalized, e.Timer.Active,
		toMillis(e.Timer.StartedAt), toMillis(e.Timer.ExpiresAt), durationMillis(e.Timer.PausedRemaining),
		toMillis(e.Timer.FirstStartedAt),
		e.CreatedAt.UnixMilli())
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%s %s: %w", op, e.ID, ErrConflict)
	case err != nil:
		return unavailable(op, err)
	}
	return nil
}

func (s *SQLStore) getEvent(ctx context.Context, where string, arg any) (*model.Event, error) {
	e, err := scanEvent(s.queryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE `+where, arg))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("event %v: %w", arg, ErrNotFound)
	case err != nil:
		return nil, unavailable("get event", err)
	}
	return e, nil
}

// GetEvent implements EventStore.
func (s *SQLStore) GetEvent(ctx context.Context, id model.EventID) (*model.Event, error) {
	return s.getEvent(ctx, `id = ?`, id)
}

// GetEventByPIN implements EventStore.
func (s *SQLStore) GetEventByPIN(ctx context.Context, pin string) (*model.Event, error) {
	return s.getEvent(ctx, `pin = ?`, pin)
}

// ListEvents implements EventStore, newest first.
func (s *SQLStore) ListEvents(ctx context.Context) ([]*model.Event, error) {
	rows, err := s.query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, unavailable("list events", err)
	}
	defer rows.Close()
	out := []*model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, unavailable("list events", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list events", err)
	}
	return out, nil
}

// SaveTimer implements EventStore.
func (s *SQLStore) SaveTimer(ctx context.Context, id model.EventID, t model.TimerState) error {
	ok, err := s.execAffected(ctx, "save timer", `UPDATE events SET timer_active = ?, timer_started_at = ?,
		timer_expires_at = ?, timer_paused_remaining_ms = ?, timer_first_started_at = ? WHERE id = ?`,
		t.Active, toMillis(t.StartedAt), toMillis(t.ExpiresAt), durationMillis(t.PausedRemaining),
		toMillis(t.FirstStartedAt), id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

// ExpireTimer implements EventStore.
func (s *SQLStore) ExpireTimer(ctx context.Context, id model.EventID, expiresAt time.Time) (bool, error) {
	return s.execAffected(ctx, "expire timer", `UPDATE events SET timer_active = FALSE
		WHERE id = ? AND timer_active = TRUE AND timer_expires_at = ?`, id, expiresAt.UnixMilli())
}

// MarkEventFinalized implements EventStore.
func (s *SQLStore) MarkEventFinalized(ctx context.Context, id model.EventID) (bool, error) {
	ok, err := s.execAffected(ctx, "finalize event", `UPDATE events SET finalized = TRUE WHERE id = ? AND finalized = FALSE`, id)
	if err != nil || ok {
		return ok, err
	}
	if _, err := s.GetEvent(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// DeleteEvent implements EventStore. Children are removed explicitly so the
// delete does not depend on the foreign_keys pragma of a caller supplied DSN.
func (s *SQLStore) DeleteEvent(ctx context.Context, id model.EventID) error {
	const op = "delete event"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(op, err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, table := range []string{"session_progress", "participants", "tag_definitions"} {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM `+table+` WHERE event_id = ?`), id); err != nil {
			return unavailable(op, err)
		}
	}
	res, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM events WHERE id = ?`), id)
	if err != nil {
		return unavailable(op, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return unavailable(op, err)
	} else if n == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// AddTag implements TagStore.
func (s *SQLStore) AddTag(ctx context.Context, t model.TagDefinition) error {
	_, err := s.exec(ctx, `INSERT INTO tag_definitions(id, event_id, tag_id, tag_name, card_id, card_name)
		VALUES (?,?,?,?,?,?)`, t.ID, t.EventID, t.TagID, t.TagName, t.CardID, t.CardName)
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("tag %s card %s: %w", t.TagID, t.CardID, ErrConflict)
	case err != nil:
		if _, gerr := s.GetEvent(ctx, t.EventID); errors.Is(gerr, ErrNotFound) {
			return gerr
		}
		return unavailable("add tag", err)
	}
	return nil
}

// ListTags implements TagStore, ordered by tag id.
func (s *SQLStore) ListTags(ctx context.Context, eventID model.EventID) ([]model.TagDefinition, error) {
	rows, err := s.query(ctx, `SELECT id, event_id, tag_id, tag_name, card_id, card_name
		FROM tag_definitions WHERE event_id = ? ORDER BY tag_id`, eventID)
	if err != nil {
		return nil, unavailable("list tags", err)
	}
	defer rows.Close()
	out := []model.TagDefinition{}
	for rows.Next() {
		var t model.TagDefinition
		if err := rows.Scan(&t.ID, &t.EventID, &t.TagID, &t.TagName, &t.CardID, &t.CardName); err != nil {
			return nil, unavailable("list tags", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list tags", err)
	}
	return out, nil
}

// DeleteTag implements TagStore.
func (s *SQLStore) DeleteTag(ctx context.Context, eventID model.EventID, tagID model.TagID) error {
	ok, err := s.execAffected(ctx, "delete tag", `DELETE FROM tag_definitions WHERE event_id = ? AND tag_id = ?`, eventID, tagID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("tag %s: %w", tagID, ErrNotFound)
	}
	return nil
}

// AddParticipant implements ParticipantStore.
func (s *SQLStore) AddParticipant(ctx context.Context, p model.Participant) error {
	_, err := s.exec(ctx, `INSERT INTO participants(id, event_id, name, normalized_name) VALUES (?,?,?,?)`,
		p.ID, p.EventID, p.Name, model.NormalizeName(p.Name))
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("participant %q: %w", p.Name, ErrConflict)
	case err != nil:
		if _, gerr := s.GetEvent(ctx, p.EventID); errors.Is(gerr, ErrNotFound) {
			return gerr
		}
		return unavailable("add participant", err)
	}
	return nil
}

// ListParticipants implements ParticipantStore, ordered by name.
func (s *SQLStore) ListParticipants(ctx context.Context, eventID model.EventID) ([]model.Participant, error) {
	rows, err := s.query(ctx, `SELECT id, event_id, name FROM participants
		WHERE event_id = ? ORDER BY normalized_name, id`, eventID)
	if err != nil {
		return nil, unavailable("list participants", err)
	}
	defer rows.Close()
	out := []model.Participant{}
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ID, &p.EventID, &p.Name); err != nil {
			return nil, unavailable("list participants", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list participants", err)
	}
	return out, nil
}

// DeleteParticipant implements ParticipantStore.
func (s *SQLStore) DeleteParticipant(ctx context.Context, eventID model.EventID, id model.ParticipantID) error {
	ok, err := s.execAffected(ctx, "delete participant", `DELETE FROM participants WHERE event_id = ? AND id = ?`, eventID, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("participant %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountParticipants implements ParticipantStore.
func (s *SQLStore) CountParticipants(ctx context.Context, eventID model.EventID) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM participants WHERE event_id = ?`, eventID).Scan(&n); err != nil {
		return 0, unavailable("count participants", err)
	}
	return n, nil
}
