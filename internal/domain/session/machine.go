package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
	"github.com/okian/catador/pkg/metrics"
)

// Machine owns one session's progress. Each mutation replaces the record
// with a new revision and hands it to the saver, so a record given to the
// saver is never modified afterwards.
type Machine struct {
	mu        sync.Mutex
	eventID   model.EventID
	sessionID model.SessionID
	state     State
	progress  *model.SessionProgress

	store    Store
	reserver Reserver
	saver    Saver
	clock    clockwork.Clock
	logger   logger.Logger
}

// New returns a machine for a session that has saved nothing yet.
func New(eventID model.EventID, sessionID model.SessionID, store Store, reserver Reserver, opts ...Option) *Machine {
	m := &Machine{
		eventID:   eventID,
		sessionID: sessionID,
		state:     StateSelectingName,
		store:     store,
		reserver:  reserver,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Named("session")
	}
	m.logger = m.logger.With(
		logger.String("event_id", string(eventID)),
		logger.String("session_id", string(sessionID)),
	)
	if m.saver == nil {
		m.saver = directSaver{store: store, logger: m.logger}
	}
	return m
}

// Load rehydrates a machine from the last persisted record of the session.
func Load(ctx context.Context, eventID model.EventID, sessionID model.SessionID, store Store, reserver Reserver, opts ...Option) (*Machine, error) {
	m := New(eventID, sessionID, store, reserver, opts...)
	p, err := store.GetProgress(ctx, eventID, sessionID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return m, nil
	case err != nil:
		return nil, storeError("load session", err)
	}
	m.progress = p
	m.state = stateOf(p)
	return m, nil
}

// EventID returns the owning event.
func (m *Machine) EventID() model.EventID { return m.eventID }

// SessionID returns the session token.
func (m *Machine) SessionID() model.SessionID { return m.sessionID }

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the state and progress.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, Progress: m.progress.Clone()}
}

// SelectName reserves name for the session and moves it to
// AssigningAndRating. On failure the machine stays where it was.
func (m *Machine) SelectName(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateFinalized:
		return model.ErrSessionFinalized
	case StateAssigning:
		return fmt.Errorf("%w: name already selected", model.ErrWrongState)
	}
	p, err := m.reserver.Reserve(ctx, m.eventID, name, m.sessionID)
	if err != nil {
		return err
	}
	m.adopt(p)
	return nil
}

// Assign binds card to tag. The card must be one of the event's cards and
// not already held by another tag of this session.
func (m *Machine) Assign(ctx context.Context, tag model.TagID, card model.CardID) error {
	tags, err := m.tags(ctx)
	if err != nil {
		return err
	}
	if _, ok := findTag(tags, tag); !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownTag, tag)
	}
	c, ok := model.LookupCard(card)
	if !ok || !slices.ContainsFunc(tags, func(t model.TagDefinition) bool { return t.CardID == c.ID }) {
		return fmt.Errorf("%w: %s", model.ErrUnknownCard, card)
	}

	return m.mutate(ctx, func(p *model.SessionProgress, now time.Time) (bool, error) {
		if holder, held := p.CardHolder(c.ID); held {
			if holder == tag {
				return false, nil
			}
			return false, fmt.Errorf("%w: %s holds %s", model.ErrCardInUse, holder, c.ID)
		}
		p.Assignments[tag] = c.ID
		p.AssignmentTimestamps[tag] = now
		if !slices.Contains(p.PreferenceOrder, tag) {
			p.PreferenceOrder = append(p.PreferenceOrder, tag)
		}
		return true, nil
	})
}

// Unassign clears tag's card together with its rating and rank.
func (m *Machine) Unassign(ctx context.Context, tag model.TagID) error {
	return m.mutate(ctx, func(p *model.SessionProgress, _ time.Time) (bool, error) {
		if _, ok := p.Assignments[tag]; !ok {
			return false, nil
		}
		delete(p.Assignments, tag)
		delete(p.AssignmentTimestamps, tag)
		delete(p.Ratings, tag)
		p.PreferenceOrder = slices.DeleteFunc(p.PreferenceOrder, func(t model.TagID) bool { return t == tag })
		return true, nil
	})
}

// Rate sets the star rating of tag.
func (m *Machine) Rate(ctx context.Context, tag model.TagID, rating int) error {
	if err := model.ValidateRating(rating); err != nil {
		return err
	}
	tags, err := m.tags(ctx)
	if err != nil {
		return err
	}
	if _, ok := findTag(tags, tag); !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownTag, tag)
	}
	return m.mutate(ctx, func(p *model.SessionProgress, _ time.Time) (bool, error) {
		if p.Ratings[tag] == rating {
			return false, nil
		}
		p.Ratings[tag] = rating
		return true, nil
	})
}

// Reorder replaces the preference ranking. Every entry must be an event tag
// and appear once.
func (m *Machine) Reorder(ctx context.Context, order []model.TagID) error {
	tags, err := m.tags(ctx)
	if err != nil {
		return err
	}
	seen := make(map[model.TagID]bool, len(order))
	for _, tag := range order {
		if _, ok := findTag(tags, tag); !ok {
			return fmt.Errorf("%w: %s", model.ErrUnknownTag, tag)
		}
		if seen[tag] {
			return fmt.Errorf("%w: %s ranked twice", model.ErrInvalidInput, tag)
		}
		seen[tag] = true
	}
	return m.mutate(ctx, func(p *model.SessionProgress, _ time.Time) (bool, error) {
		if slices.Equal(p.PreferenceOrder, order) {
			return false, nil
		}
		p.PreferenceOrder = slices.Clone(order)
		return true, nil
	})
}

// Finalize submits the session. Every tag must carry a card and, when the
// event has a roster, every assignment a rating. Finalizing a finalized
// session is a no-op.
func (m *Machine) Finalize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateFinalized:
		return nil
	case StateSelectingName:
		return fmt.Errorf("%w: no name selected", model.ErrWrongState)
	}

	tags, err := m.store.ListTags(ctx, m.eventID)
	if err != nil {
		return storeError("list tags", err)
	}
	if missing := unassigned(m.progress, tags); len(missing) > 0 {
		return fmt.Errorf("%w: %s", model.ErrIncompleteAssignments, joinTags(missing))
	}
	roster, err := m.store.CountParticipants(ctx, m.eventID)
	if err != nil {
		return storeError("count participants", err)
	}
	if roster > 0 {
		if missing := unrated(m.progress, tags); len(missing) > 0 {
			return fmt.Errorf("%w: %s", model.ErrMissingRatings, joinTags(missing))
		}
	}

	rev := m.progress.Revision
	for attempt := 0; attempt < 2; attempt++ {
		next := m.progress.Clone()
		next.Revision = rev + 1
		next.UpdatedAt = m.now()
		next.Forced = false
		ok, err := m.store.FinalizeProgress(ctx, next)
		if err != nil {
			return storeError("finalize", err)
		}
		if ok {
			next.Finalized = true
			m.adopt(next)
			return nil
		}
		stored, err := m.store.GetProgress(ctx, m.eventID, m.sessionID)
		if err != nil {
			return storeError("reload", err)
		}
		if stored.Finalized {
			m.adopt(stored)
			return nil
		}
		rev = stored.Revision
	}
	return fmt.Errorf("finalize %s: %w", m.sessionID, model.ErrConflict)
}

// Force finalizes the session on timer expiry, backfilling missing ratings
// with 0. It reports whether this call performed the finalization.
func (m *Machine) Force(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAssigning {
		return false, nil
	}
	p, done, err := ForceFinalize(ctx, m.store, m.progress, m.now())
	if err != nil {
		return false, err
	}
	m.adopt(p)
	return done, nil
}

// Refresh reloads the persisted record when it moved ahead of the machine,
// e.g. after another process finalized the session.
func (m *Machine) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.store.GetProgress(ctx, m.eventID, m.sessionID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return nil
	case err != nil:
		return storeError("refresh", err)
	}
	if m.progress == nil || p.Finalized || p.Revision > m.progress.Revision {
		m.adopt(p)
	}
	return nil
}

// mutate applies fn to a copy of the progress and, when it reports a change,
// installs the copy as the next revision and autosaves it.
func (m *Machine) mutate(ctx context.Context, fn func(p *model.SessionProgress, now time.Time) (bool, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateFinalized:
		return model.ErrSessionFinalized
	case StateSelectingName:
		return fmt.Errorf("%w: no name selected", model.ErrWrongState)
	}
	next := m.progress.Clone()
	next.EnsureMaps()
	now := m.now()
	changed, err := fn(next, now)
	if err != nil || !changed {
		return err
	}
	next.Revision++
	next.UpdatedAt = now
	m.progress = next
	m.saver.Save(ctx, next)
	return nil
}

// adopt installs p and moves to the state it implies. Callers hold mu.
func (m *Machine) adopt(p *model.SessionProgress) {
	from := m.state
	m.progress = p
	m.state = stateOf(p)
	if from != m.state {
		metrics.RecordSessionTransition(string(from), string(m.state))
		m.logger.Debug(context.Background(), "session transition",
			logger.String("from", string(from)), logger.String("to", string(m.state)))
	}
}

func (m *Machine) tags(ctx context.Context) ([]model.TagDefinition, error) {
	tags, err := m.store.ListTags(ctx, m.eventID)
	if err != nil {
		return nil, storeError("list tags", err)
	}
	return tags, nil
}

func (m *Machine) now() time.Time {
	return m.clock.Now().UTC().Truncate(time.Millisecond)
}

func findTag(tags []model.TagDefinition, id model.TagID) (model.TagDefinition, bool) {
	for _, t := range tags {
		if t.TagID == id {
			return t, true
		}
	}
	return model.TagDefinition{}, false
}

func unassigned(p *model.SessionProgress, tags []model.TagDefinition) []model.TagID {
	var out []model.TagID
	for _, t := range tags {
		if _, ok := p.Assignments[t.TagID]; !ok {
			out = append(out, t.TagID)
		}
	}
	return out
}

func unrated(p *model.SessionProgress, tags []model.TagDefinition) []model.TagID {
	var out []model.TagID
	for _, t := range tags {
		if _, ok := p.Assignments[t.TagID]; ok && p.Ratings[t.TagID] < model.MinRating {
			out = append(out, t.TagID)
		}
	}
	return out
}

func joinTags(tags []model.TagID) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// directSaver writes synchronously and logs failures.
type directSaver struct {
	store  Store
	logger logger.Logger
}

func (d directSaver) Save(ctx context.Context, p *model.SessionProgress) {
	if _, err := d.store.SaveProgress(ctx, p); err != nil {
		d.logger.Warn(ctx, "autosave failed", logger.Int64("revision", p.Revision), logger.Error(err))
	}
}
