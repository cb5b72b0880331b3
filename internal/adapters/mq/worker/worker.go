// Package worker drains the autosave queue into the progress store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/catador/internal/adapters/mq/queue"
	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
	"github.com/okian/catador/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 4
	defaultRetries      = 2
	defaultRetryBackoff = 100 * time.Millisecond
	poolShutdownTimeout = 30 * time.Second
)

// Saver persists progress snapshots. It reports false for stale or
// finalized targets.
type Saver interface {
	SaveProgress(ctx context.Context, p *model.SessionProgress) (bool, error)
}

// Queue defines how workers receive requests.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Request
}

// Worker persists autosave requests.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after the request in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	saver   Saver
	name    string
	retries int
	backoff time.Duration
	clock   clockwork.Clock

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker.
func NewInMemoryWorker(q Queue, saver Saver, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		saver:    saver,
		name:     "worker",
		retries:  defaultRetries,
		backoff:  defaultRetryBackoff,
		clock:    clockwork.NewRealClock(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Named("autosave." + w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	requests := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case r, ok := <-requests:
			if !ok {
				return
			}
			if err := w.process(ctx, r); err != nil {
				w.logger.Warn(ctx, "autosave failed",
					logger.String("event_id", string(r.Progress.EventID)),
					logger.String("session_id", string(r.Progress.SessionID)),
					logger.Int64("revision", r.Progress.Revision),
					logger.Error(err),
				)
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process writes one request, retrying transient store failures.
func (w *InMemoryWorker) process(ctx context.Context, r queue.Request) error {
	start := w.clock.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(w.clock.Since(start).Milliseconds()))
	}()

	var err error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.clock.After(w.backoff * time.Duration(attempt)):
			}
		}
		var saved bool
		saved, err = w.saver.SaveProgress(ctx, r.Progress)
		switch {
		case err == nil && saved:
			metrics.RecordAutosave("saved")
			return nil
		case err == nil:
			metrics.RecordAutosave("stale")
			return nil
		case errors.Is(err, model.ErrNotFound):
			// The event was deleted or the record never existed.
			metrics.RecordAutosave("failed")
			return err
		}
	}
	metrics.RecordAutosave("failed")
	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("worker", "save_failed")
	return fmt.Errorf("after %d attempts: %w", w.retries+1, err)
}

// Pool runs a set of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	wg      sync.WaitGroup
	logger  logger.Logger
}

// NewPool creates a worker pool. Options apply to every worker.
func NewPool(workerCount int, q Queue, saver Saver, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Named("autosave.pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(q, saver, append(opts, WithName("worker-"+strconv.Itoa(i)))...)
	}
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
}

// Shutdown closes the queue and waits for workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	select {
	case <-drained:
		metrics.UpdateWorkerActiveCount(0)
		return nil
	case <-shutdownCtx.Done():
		p.logger.Warn(ctx, "autosave pool shutdown timed out", logger.Int("workers", len(p.workers)))
		for _, w := range p.workers {
			_ = w.Shutdown(shutdownCtx)
		}
		return fmt.Errorf("autosave pool shutdown: %w", shutdownCtx.Err())
	}
}
