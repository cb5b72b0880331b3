package repository

import (
	"github.com/jonboulle/clockwork"

	"github.com/okian/catador/pkg/logger"
)

// Default SQL pool settings.
const (
	defaultMaxOpenConns = 8
	defaultBusyTimeout  = 5000 // ms
)

type options struct {
	clock        clockwork.Clock
	logger       logger.Logger
	maxOpenConns int
}

func defaultOptions() options {
	return options{
		clock:        clockwork.NewRealClock(),
		maxOpenConns: defaultMaxOpenConns,
	}
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithClock sets the clock used to stamp records.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxOpenConns bounds the SQL connection pool. SQLite always uses one.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}
