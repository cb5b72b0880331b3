package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
)

// MemoryStore is a process-local Store. A single mutex makes every
// conditional write atomic, matching the SQL store's constraints.
type MemoryStore struct {
	mu           sync.RWMutex
	events       map[model.EventID]*model.Event
	pins         map[string]model.EventID
	tags         map[model.EventID][]model.TagDefinition
	participants map[model.EventID][]model.Participant
	progress     map[model.EventID]map[model.SessionID]*model.SessionProgress

	opts   options
	logger logger.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Named("repository.memory")
	}
	return &MemoryStore{
		events:       map[model.EventID]*model.Event{},
		pins:         map[string]model.EventID{},
		tags:         map[model.EventID][]model.TagDefinition{},
		participants: map[model.EventID][]model.Participant{},
		progress:     map[model.EventID]map[model.SessionID]*model.SessionProgress{},
		opts:         o,
		logger:       o.logger,
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func cloneEvent(e *model.Event) *model.Event {
	out := *e
	out.Timer = e.Timer.Clone()
	return &out
}

// CreateEvent implements EventStore.
func (s *MemoryStore) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return fmt.Errorf("create event %s: %w", e.ID, ErrConflict)
	}
	if _, ok := s.pins[e.PIN]; ok {
		return fmt.Errorf("create event pin %s: %w", e.PIN, ErrConflict)
	}
	s.events[e.ID] = cloneEvent(e)
	s.pins[e.PIN] = e.ID
	return nil
}

// GetEvent implements EventStore.
func (s *MemoryStore) GetEvent(_ context.Context, id model.EventID) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return cloneEvent(e), nil
}

// GetEventByPIN implements EventStore.
func (s *MemoryStore) GetEventByPIN(ctx context.Context, pin string) (*model.Event, error) {
	s.mu.RLock()
	id, ok := s.pins[pin]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("event pin %s: %w", pin, ErrNotFound)
	}
	return s.GetEvent(ctx, id)
}

// ListEvents implements EventStore, newest first.
func (s *MemoryStore) ListEvents(_ context.Context) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, cloneEvent(e))
	}
	slices.SortFunc(out, func(a, b *model.Event) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// SaveTimer implements EventStore.
func (s *MemoryStore) SaveTimer(_ context.Context, id model.EventID, t model.TimerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	e.Timer = t.Clone()
	return nil
}

// ExpireTimer implements EventStore.
func (s *MemoryStore) ExpireTimer(_ context.Context, id model.EventID, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return false, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if !e.Timer.Active || e.Timer.ExpiresAt == nil || e.Timer.ExpiresAt.UnixMilli() != expiresAt.UnixMilli() {
		return false, nil
	}
	e.Timer.Active = false
	return true, nil
}

// MarkEventFinalized implements EventStore.
func (s *MemoryStore) MarkEventFinalized(_ context.Context, id model.EventID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return false, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if e.Finalized {
		return false, nil
	}
	e.Finalized = true
	return true, nil
}

// DeleteEvent implements EventStore.
func (s *MemoryStore) DeleteEvent(_ context.Context, id model.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	delete(s.pins, e.PIN)
	delete(s.events, id)
	delete(s.tags, id)
	delete(s.participants, id)
	delete(s.progress, id)
	return nil
}

// AddTag implements TagStore.
func (s *MemoryStore) AddTag(_ context.Context, t model.TagDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[t.EventID]; !ok {
		return fmt.Errorf("event %s: %w", t.EventID, ErrNotFound)
	}
	for _, existing := range s.tags[t.EventID] {
		if existing.TagID == t.TagID || existing.CardID == t.CardID {
			return fmt.Errorf("tag %s card %s: %w", t.TagID, t.CardID, ErrConflict)
		}
	}
	s.tags[t.EventID] = append(s.tags[t.EventID], t)
	return nil
}

// ListTags implements TagStore, ordered by tag id.
func (s *MemoryStore) ListTags(_ context.Context, eventID model.EventID) ([]model.TagDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.tags[eventID])
	slices.SortFunc(out, func(a, b model.TagDefinition) int { return cmp.Compare(a.TagID, b.TagID) })
	if out == nil {
		out = []model.TagDefinition{}
	}
	return out, nil
}

// DeleteTag implements TagStore.
func (s *MemoryStore) DeleteTag(_ context.Context, eventID model.EventID, tagID model.TagID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := s.tags[eventID]
	i := slices.IndexFunc(tags, func(t model.TagDefinition) bool { return t.TagID == tagID })
	if i < 0 {
		return fmt.Errorf("tag %s: %w", tagID, ErrNotFound)
	}
	s.tags[eventID] = slices.Delete(tags, i, i+1)
	return nil
}

// AddParticipant implements ParticipantStore.
func (s *MemoryStore) AddParticipant(_ context.Context, p model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[p.EventID]; !ok {
		return fmt.Errorf("event %s: %w", p.EventID, ErrNotFound)
	}
	key := model.NormalizeName(p.Name)
	for _, existing := range s.participants[p.EventID] {
		if model.NormalizeName(existing.Name) == key {
			return fmt.Errorf("participant %q: %w", p.Name, ErrConflict)
		}
	}
	s.participants[p.EventID] = append(s.participants[p.EventID], p)
	return nil
}

// ListParticipants implements ParticipantStore, ordered by name.
func (s *MemoryStore) ListParticipants(_ context.Context, eventID model.EventID) ([]model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.participants[eventID])
	slices.SortFunc(out, func(a, b model.Participant) int {
		if c := cmp.Compare(model.NormalizeName(a.Name), model.NormalizeName(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if out == nil {
		out = []model.Participant{}
	}
	return out, nil
}

// DeleteParticipant implements ParticipantStore.
func (s *MemoryStore) DeleteParticipant(_ context.Context, eventID model.EventID, id model.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.participants[eventID]
	i := slices.IndexFunc(list, func(p model.Participant) bool { return p.ID == id })
	if i < 0 {
		return fmt.Errorf("participant %s: %w", id, ErrNotFound)
	}
	s.participants[eventID] = slices.Delete(list, i, i+1)
	return nil
}

// CountParticipants implements ParticipantStore.
func (s *MemoryStore) CountParticipants(_ context.Context, eventID model.EventID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants[eventID]), nil
}

// GetProgress implements ProgressStore.
func (s *MemoryStore) GetProgress(_ context.Context, eventID model.EventID, sessionID model.SessionID) (*model.SessionProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[eventID][sessionID]
	if !ok {
		return nil, fmt.Errorf("progress %s/%s: %w", eventID, sessionID, ErrNotFound)
	}
	return p.Clone(), nil
}

// ListProgress implements ProgressStore.
func (s *MemoryStore) ListProgress(_ context.Context, eventID model.EventID) ([]*model.SessionProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.SessionProgress, 0, len(s.progress[eventID]))
	for _, p := range s.progress[eventID] {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b *model.SessionProgress) int { return cmp.Compare(a.SessionID, b.SessionID) })
	return out, nil
}

// IsNameTaken implements ProgressStore.
func (s *MemoryStore) IsNameTaken(_ context.Context, eventID model.EventID, name string, excluding model.SessionID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nameHolder(eventID, model.NormalizeName(name), excluding) != "", nil
}

// nameHolder must be called with the lock held.
func (s *MemoryStore) nameHolder(eventID model.EventID, key string, excluding model.SessionID) model.SessionID {
	if key == "" {
		return ""
	}
	for id, p := range s.progress[eventID] {
		if id == excluding || p.Finalized || p.IsHost() {
			continue
		}
		if p.NormalizedName() == key {
			return id
		}
	}
	return ""
}

// ReserveName implements ProgressStore.
func (s *MemoryStore) ReserveName(_ context.Context, eventID model.EventID, sessionID model.SessionID, name string) (*model.SessionProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; !ok {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	if holder := s.nameHolder(eventID, model.NormalizeName(name), sessionID); holder != "" {
		return nil, fmt.Errorf("reserve %q: %w", name, ErrNameTaken)
	}
	sessions := s.progress[eventID]
	if sessions == nil {
		sessions = map[model.SessionID]*model.SessionProgress{}
		s.progress[eventID] = sessions
	}
	p, ok := sessions[sessionID]
	if !ok {
		p = model.NewSessionProgress(eventID, sessionID)
		sessions[sessionID] = p
	} else if p.Finalized {
		return nil, fmt.Errorf("reserve %q: %w", name, ErrSessionFinalized)
	}
	p.ParticipantName = name
	p.Revision++
	p.UpdatedAt = s.opts.clock.Now().UTC()
	return p.Clone(), nil
}

// SaveProgress implements ProgressStore.
func (s *MemoryStore) SaveProgress(_ context.Context, p *model.SessionProgress) (bool, error) {
	return s.write(p, false)
}

// FinalizeProgress implements ProgressStore.
func (s *MemoryStore) FinalizeProgress(_ context.Context, p *model.SessionProgress) (bool, error) {
	return s.write(p, true)
}

func (s *MemoryStore) write(p *model.SessionProgress, finalize bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.progress[p.EventID][p.SessionID]
	if !ok {
		return false, fmt.Errorf("progress %s/%s: %w", p.EventID, p.SessionID, ErrNotFound)
	}
	if cur.Finalized || cur.Revision >= p.Revision {
		return false, nil
	}
	next := p.Clone()
	next.ParticipantName = cur.ParticipantName
	next.Finalized = finalize
	next.Forced = finalize && p.Forced
	s.progress[p.EventID][p.SessionID] = next
	return true, nil
}

// SaveSolution implements ProgressStore.
func (s *MemoryStore) SaveSolution(_ context.Context, p *model.SessionProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[p.EventID]; !ok {
		return fmt.Errorf("event %s: %w", p.EventID, ErrNotFound)
	}
	if s.progress[p.EventID] == nil {
		s.progress[p.EventID] = map[model.SessionID]*model.SessionProgress{}
	}
	sol := p.Clone()
	sol.SessionID = model.HostSessionID
	sol.Finalized = true
	sol.Revision = max(p.Revision, 1)
	if cur, ok := s.progress[p.EventID][model.HostSessionID]; ok {
		sol.Revision = cur.Revision + 1
	}
	s.progress[p.EventID][model.HostSessionID] = sol
	return nil
}
