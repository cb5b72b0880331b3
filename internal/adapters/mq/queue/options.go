package queue

import (
	"github.com/jonboulle/clockwork"

	"github.com/okian/catador/pkg/logger"
)

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of pending requests.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithBufferSize sets the buffer size of the underlying channel.
func WithBufferSize(size int) Option {
	return func(q *InMemoryQueue) {
		if size > 0 {
			q.bufferSize = size
		}
	}
}

// AutosaverOption configures an Autosaver.
type AutosaverOption func(*Autosaver)

// WithAutosaveClock sets the clock used to stamp requests.
func WithAutosaveClock(c clockwork.Clock) AutosaverOption {
	return func(a *Autosaver) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithAutosaveLogger sets a custom logger.
func WithAutosaveLogger(l logger.Logger) AutosaverOption {
	return func(a *Autosaver) {
		if l != nil {
			a.logger = l
		}
	}
}
