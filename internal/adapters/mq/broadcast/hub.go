// Package broadcast fans timer snapshots out to the subscribers of one
// process: websocket streams and in-process watchers.
package broadcast

import (
	"context"
	"sync"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/metrics"
)

// defaultBufferSize is the per-subscriber backlog.
const defaultBufferSize = 8

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithBufferSize sets the per-subscriber backlog.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

type subscriber struct {
	ch   chan model.TimerSnapshot
	once sync.Once
}

// Hub delivers snapshots to every subscriber of an event. A slow
// subscriber loses its oldest pending snapshot, never the newest.
type Hub struct {
	mu         sync.RWMutex
	subs       map[model.EventID]map[*subscriber]struct{}
	bufferSize int
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:       make(map[model.EventID]map[*subscriber]struct{}),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish delivers snap to the subscribers of snap.EventID without blocking.
func (h *Hub) Publish(_ context.Context, snap model.TimerSnapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[snap.EventID] {
		for {
			select {
			case s.ch <- snap:
			default:
				select {
				case <-s.ch:
				default:
				}
				continue
			}
			break
		}
	}
	metrics.RecordBroadcast("local")
}

// Subscribe registers a subscriber for eventID. The returned function
// unsubscribes and closes the channel; calling it twice is safe.
func (h *Hub) Subscribe(eventID model.EventID) (<-chan model.TimerSnapshot, func()) {
	s := &subscriber{ch: make(chan model.TimerSnapshot, h.bufferSize)}
	h.mu.Lock()
	if h.subs[eventID] == nil {
		h.subs[eventID] = make(map[*subscriber]struct{})
	}
	h.subs[eventID][s] = struct{}{}
	h.mu.Unlock()

	return s.ch, func() {
		s.once.Do(func() {
			h.mu.Lock()
			delete(h.subs[eventID], s)
			if len(h.subs[eventID]) == 0 {
				delete(h.subs, eventID)
			}
			h.mu.Unlock()
			close(s.ch)
		})
	}
}

// Subscribers returns the number of subscribers of eventID.
func (h *Hub) Subscribers(eventID model.EventID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[eventID])
}
