// Package service composes the tasting game: events and their host setup,
// participant sessions, the shared timer and the leaderboard. It implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/catador/internal/adapters/mq/broadcast"
	"github.com/okian/catador/internal/adapters/mq/queue"
	"github.com/okian/catador/internal/adapters/mq/worker"
	"github.com/okian/catador/internal/adapters/repository"
	"github.com/okian/catador/internal/domain/dedupe"
	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/internal/domain/reservation"
	"github.com/okian/catador/internal/domain/scoring"
	"github.com/okian/catador/internal/domain/session"
	"github.com/okian/catador/internal/domain/timer"
	"github.com/okian/catador/pkg/logger"
	"github.com/okian/catador/pkg/metrics"
)

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for the tasting game.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	ownsStore bool
	bus       timer.Broadcaster
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	autosaver *queue.Autosaver
	pool      *worker.Pool
	registry  *reservation.Registry
	timers    *timer.Coordinator
	scorer    scoring.Scorer
	clock     clockwork.Clock

	machinesMu sync.Mutex
	machines   map[machineKey]*session.Machine

	// Configuration
	workerCount    int
	queueSize      int
	dedupeSize     int
	retries        int
	resyncInterval time.Duration
	maxTimer       time.Duration

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

type machineKey struct {
	event   model.EventID
	session model.SessionID
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. The caller keeps ownership and
// closes it. Without one, the service runs on a private memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithBroadcaster sets the fan-out timer snapshots are published to.
func WithBroadcaster(b timer.Broadcaster) Option {
	return func(s *Service) {
		if b != nil {
			s.bus = b
		}
	}
}

// WithClock sets the clock used by sessions, the timer and scoring.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithScorer sets the scoring engine.
func WithScorer(sc scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithWorkerCount sets the number of autosave workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the autosave queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the expiry idempotency set.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithAutosaveRetries sets how often a failed autosave is retried.
func WithAutosaveRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithResyncInterval sets how often timer streams resend the state.
func WithResyncInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.resyncInterval = d
		}
	}
}

// WithMaxTimerDuration caps timer starts and extensions.
func WithMaxTimerDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxTimer = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		clock:          clockwork.NewRealClock(),
		machines:       make(map[machineKey]*session.Machine),
		workerCount:    runtime.NumCPU(),
		queueSize:      4096,
		dedupeSize:     50000,
		retries:        2,
		resyncInterval: 60 * time.Second,
		maxTimer:       24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the components, starts the autosave workers and re-arms
// the timers of running events.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	s.logger.Info(ctx, "starting tasting service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(repository.WithClock(s.clock))
		s.ownsStore = true
		s.logger.Info(ctx, "using memory store")
	}
	if s.bus == nil {
		s.bus = broadcast.NewHub()
	}
	if s.scorer == nil {
		s.scorer = scoring.NewEngine()
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize), queue.WithBufferSize(s.queueSize))
	s.autosaver = queue.NewAutosaver(s.queue, queue.WithAutosaveClock(s.clock))
	s.registry = reservation.NewRegistry(s.store)
	s.timers = timer.NewCoordinator(s.store, s.bus,
		timer.WithClock(s.clock),
		timer.WithDeduper(s.deduper),
		timer.WithExpiryHandler(s.forceOpenSessions),
		timer.WithResyncInterval(s.resyncInterval),
		timer.WithMaxDuration(s.maxTimer),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool = worker.NewPool(s.workerCount, s.queue, s.store,
		worker.WithRetries(s.retries),
		worker.WithClock(s.clock),
	)
	s.pool.Start(runCtx)

	if err := s.timers.Restore(ctx); err != nil {
		s.logger.Warn(ctx, "timer restore failed", logger.Error(err))
	}

	s.started = true
	s.logger.Info(ctx, "tasting service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains pending autosaves and stops the timers.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping tasting service...")

	s.timers.Close()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "autosave drain incomplete", logger.Error(err))
	}
	s.cancel()
	if s.ownsStore {
		_ = s.store.Close()
	}

	s.machinesMu.Lock()
	s.machines = make(map[machineKey]*session.Machine)
	s.machinesMu.Unlock()

	s.started = false
	s.logger.Info(ctx, "tasting service stopped")
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if s.started {
		queueLen := s.queue.Len(context.Background())
		s.machinesMu.Lock()
		stats["sessions"] = len(s.machines)
		s.machinesMu.Unlock()
		stats["queueLength"] = queueLen
		stats["expiryKeys"] = s.deduper.Size()
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}

// Ready reports whether the service accepts requests.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

func (s *Service) running() error {
	if !s.Ready() {
		return ErrNotStarted
	}
	return nil
}

// machine returns the cached state machine of a session, loading it from
// the store on first use. Cached machines are refreshed so that writes from
// other instances are picked up. A session with nothing persisted is not
// cached until a mutation gives it progress, see remember.
func (s *Service) machine(ctx context.Context, eventID model.EventID, sessionID model.SessionID) (*session.Machine, error) {
	if err := validSessionID(sessionID); err != nil {
		return nil, err
	}
	key := machineKey{event: eventID, session: sessionID}

	s.machinesMu.Lock()
	m, ok := s.machines[key]
	s.machinesMu.Unlock()
	if ok {
		if err := m.Refresh(ctx); err != nil {
			return nil, err
		}
		return m, nil
	}

	m, err := session.Load(ctx, eventID, sessionID, s.store, s.registry,
		session.WithSaver(s.autosaver),
		session.WithClock(s.clock),
	)
	if err != nil {
		return nil, err
	}
	if m.Snapshot().Progress == nil {
		return m, nil
	}
	return s.remember(m), nil
}

// remember caches m unless another machine for the session got there first,
// in which case that one is returned.
func (s *Service) remember(m *session.Machine) *session.Machine {
	key := machineKey{event: m.EventID(), session: m.SessionID()}
	s.machinesMu.Lock()
	defer s.machinesMu.Unlock()
	if existing, ok := s.machines[key]; ok {
		return existing
	}
	s.machines[key] = m
	return m
}

// eventMachines returns the cached machines of an event.
func (s *Service) eventMachines(eventID model.EventID) []*session.Machine {
	s.machinesMu.Lock()
	defer s.machinesMu.Unlock()
	var out []*session.Machine
	for key, m := range s.machines {
		if key.event == eventID {
			out = append(out, m)
		}
	}
	return out
}

func (s *Service) cachedMachine(eventID model.EventID, sessionID model.SessionID) *session.Machine {
	s.machinesMu.Lock()
	defer s.machinesMu.Unlock()
	return s.machines[machineKey{event: eventID, session: sessionID}]
}

func (s *Service) forgetMachines(eventID model.EventID) {
	s.machinesMu.Lock()
	defer s.machinesMu.Unlock()
	for key := range s.machines {
		if key.event == eventID {
			delete(s.machines, key)
		}
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

func validSessionID(id model.SessionID) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty session id", model.ErrInvalidInput)
	case id == model.HostSessionID:
		return fmt.Errorf("%w: reserved session id", model.ErrInvalidInput)
	case len(id) > 128:
		return fmt.Errorf("%w: session id too long", model.ErrInvalidInput)
	}
	return nil
}
