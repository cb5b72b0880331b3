package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/catador/internal/domain/model"
)

const progressColumns = `event_id, session_id, participant_name, assignments, assignment_timestamps,
	preference_order, ratings, finalized, forced, revision, updated_at`

// progressRow is the column encoding of a SessionProgress.
type progressRow struct {
	assignments, timestamps, order, ratings string
}

func encodeProgress(p *model.SessionProgress) (progressRow, error) {
	var (
		r   progressRow
		err error
		b   []byte
	)
	enc := func(v any, dst *string) {
		if err != nil {
			return
		}
		b, err = json.Marshal(v)
		*dst = string(b)
	}
	p.EnsureMaps()
	order := p.PreferenceOrder
	if order == nil {
		order = []model.TagID{}
	}
	enc(p.Assignments, &r.assignments)
	enc(p.AssignmentTimestamps, &r.timestamps)
	enc(order, &r.order)
	enc(p.Ratings, &r.ratings)
	return r, err
}

func scanProgress(row scanner) (*model.SessionProgress, error) {
	var (
		p         model.SessionProgress
		r         progressRow
		updatedAt int64
	)
	if err := row.Scan(&p.EventID, &p.SessionID, &p.ParticipantName, &r.assignments, &r.timestamps,
		&r.order, &r.ratings, &p.Finalized, &p.Forced, &p.Revision, &updatedAt); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		src string
		dst any
	}{
		{r.assignments, &p.Assignments},
		{r.timestamps, &p.AssignmentTimestamps},
		{r.order, &p.PreferenceOrder},
		{r.ratings, &p.Ratings},
	} {
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return nil, fmt.Errorf("decode progress %s: %w", p.SessionID, err)
		}
	}
	p.EnsureMaps()
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &p, nil
}

// GetProgress implements ProgressStore.
func (s *SQLStore) GetProgress(ctx context.Context, eventID model.EventID, sessionID model.SessionID) (*model.SessionProgress, error) {
	p, err := scanProgress(s.queryRow(ctx, `SELECT `+progressColumns+` FROM session_progress
		WHERE event_id = ? AND session_id = ?`, eventID, sessionID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("progress %s/%s: %w", eventID, sessionID, ErrNotFound)
	case err != nil:
		return nil, unavailable("get progress", err)
	}
	return p, nil
}

// ListProgress implements ProgressStore.
func (s *SQLStore) ListProgress(ctx context.Context, eventID model.EventID) ([]*model.SessionProgress, error) {
	rows, err := s.query(ctx, `SELECT `+progressColumns+` FROM session_progress
		WHERE event_id = ? ORDER BY session_id`, eventID)
	if err != nil {
		return nil, unavailable("list progress", err)
	}
	defer rows.Close()
	out := []*model.SessionProgress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, unavailable("list progress", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list progress", err)
	}
	return out, nil
}

// IsNameTaken implements ProgressStore.
func (s *SQLStore) IsNameTaken(ctx context.Context, eventID model.EventID, name string, excluding model.SessionID) (bool, error) {
	key := model.NormalizeName(name)
	if key == "" {
		return false, nil
	}
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM session_progress
		WHERE event_id = ? AND normalized_name = ? AND session_id <> ? AND session_id <> ? AND finalized = FALSE`,
		eventID, key, excluding, model.HostSessionID).Scan(&n)
	if err != nil {
		return false, unavailable("is name taken", err)
	}
	return n > 0, nil
}

// ReserveName implements ProgressStore. The partial unique index on
// (event_id, normalized_name) over live sessions makes this a single atomic
// conditional write: concurrent callers racing for one name see exactly one
// success.
func (s *SQLStore) ReserveName(ctx context.Context, eventID model.EventID, sessionID model.SessionID, name string) (*model.SessionProgress, error) {
	const op = "reserve name"
	now := s.opts.clock.Now().UTC().UnixMilli()
	ok, err := s.execAffected(ctx, op, `INSERT INTO session_progress(event_id, session_id, participant_name,
			normalized_name, revision, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT (event_id, session_id) DO UPDATE SET
			participant_name = excluded.participant_name,
			normalized_name = excluded.normalized_name,
			revision = session_progress.revision + 1,
			updated_at = excluded.updated_at
		WHERE session_progress.finalized = FALSE`,
		eventID, sessionID, name, model.NormalizeName(name), now)
	switch {
	case err != nil && uniqueViolationOn(err, "session_progress_live_name"):
		return nil, fmt.Errorf("%s %q: %w", op, name, ErrNameTaken)
	case err != nil:
		if _, gerr := s.GetEvent(ctx, eventID); errors.Is(gerr, ErrNotFound) {
			return nil, gerr
		}
		return nil, err
	case !ok:
		return nil, fmt.Errorf("%s %q: %w", op, name, ErrSessionFinalized)
	}
	return s.GetProgress(ctx, eventID, sessionID)
}

// SaveProgress implements ProgressStore.
func (s *SQLStore) SaveProgress(ctx context.Context, p *model.SessionProgress) (bool, error) {
	return s.writeProgress(ctx, "save progress", p, false)
}

// FinalizeProgress implements ProgressStore.
func (s *SQLStore) FinalizeProgress(ctx context.Context, p *model.SessionProgress) (bool, error) {
	return s.writeProgress(ctx, "finalize progress", p, true)
}

func (s *SQLStore) writeProgress(ctx context.Context, op string, p *model.SessionProgress, finalize bool) (bool, error) {
	r, err := encodeProgress(p)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	ok, err := s.execAffected(ctx, op, `UPDATE session_progress SET
			assignments = ?, assignment_timestamps = ?, preference_order = ?, ratings = ?,
			finalized = ?, forced = ?, revision = ?, updated_at = ?
		WHERE event_id = ? AND session_id = ? AND finalized = FALSE AND revision < ?`,
		r.assignments, r.timestamps, r.order, r.ratings,
		finalize, finalize && p.Forced, p.Revision, p.UpdatedAt.UnixMilli(),
		p.EventID, p.SessionID, p.Revision)
	if err != nil || ok {
		return ok, err
	}
	if _, err := s.GetProgress(ctx, p.EventID, p.SessionID); err != nil {
		return false, err
	}
	return false, nil
}

// SaveSolution implements ProgressStore.
func (s *SQLStore) SaveSolution(ctx context.Context, p *model.SessionProgress) error {
	const op = "save solution"
	r, err := encodeProgress(p)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	_, err = s.exec(ctx, `INSERT INTO session_progress(event_id, session_id, participant_name, normalized_name,
			assignments, assignment_timestamps, preference_order, ratings, finalized, forced, revision, updated_at)
		VALUES (?, ?, '', '', ?, ?, ?, ?, TRUE, FALSE, ?, ?)
		ON CONFLICT (event_id, session_id) DO UPDATE SET
			assignments = excluded.assignments,
			assignment_timestamps = excluded.assignment_timestamps,
			preference_order = excluded.preference_order,
			ratings = excluded.ratings,
			finalized = TRUE,
			revision = session_progress.revision + 1,
			updated_at = excluded.updated_at`,
		p.EventID, model.HostSessionID, r.assignments, r.timestamps, r.order, r.ratings,
		max(p.Revision, 1), p.UpdatedAt.UnixMilli())
	if err != nil {
		if _, gerr := s.GetEvent(ctx, p.EventID); errors.Is(gerr, ErrNotFound) {
			return gerr
		}
		return unavailable(op, err)
	}
	return nil
}
