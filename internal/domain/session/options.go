package session

import (
	"github.com/jonboulle/clockwork"

	"github.com/okian/catador/pkg/logger"
)

// Option configures a Machine.
type Option func(*Machine)

// WithSaver routes autosaves through s instead of writing synchronously.
func WithSaver(s Saver) Option {
	return func(m *Machine) {
		if s != nil {
			m.saver = s
		}
	}
}

// WithClock sets the clock used to stamp assignments.
func WithClock(c clockwork.Clock) Option {
	return func(m *Machine) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}
