package timer

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/catador/internal/domain/dedupe"
	"github.com/okian/catador/pkg/logger"
)

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock commands and the scheduler read.
func WithClock(c clockwork.Clock) Option {
	return func(co *Coordinator) {
		if c != nil {
			co.clock = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(co *Coordinator) {
		if l != nil {
			co.logger = l
		}
	}
}

// WithDeduper sets the idempotency set guarding expiry handling.
func WithDeduper(d dedupe.Deduper) Option {
	return func(co *Coordinator) {
		if d != nil {
			co.dedupe = d
		}
	}
}

// WithExpiryHandler sets the function run once per expired countdown.
func WithExpiryHandler(h ExpiryHandler) Option {
	return func(co *Coordinator) {
		if h != nil {
			co.onExpire = h
		}
	}
}

// WithResyncInterval sets how often subscribers get a fresh snapshot even
// when nothing changed.
func WithResyncInterval(d time.Duration) Option {
	return func(co *Coordinator) {
		if d > 0 {
			co.resync = d
		}
	}
}

// WithMaxDuration caps start and extend durations.
func WithMaxDuration(d time.Duration) Option {
	return func(co *Coordinator) {
		if d > 0 {
			co.maxDuration = d
		}
	}
}
