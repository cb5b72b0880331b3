// Package ws serves the shared countdown over websockets. Each connection
// receives the current timer snapshot, every change the host makes and a
// periodic resync carrying the server time.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
)

// Dependencies required by the stream handler.
type Dependencies interface {
	SubscribeTimer(ctx context.Context, eventID model.EventID) (<-chan model.TimerSnapshot, error)
	ExpireSession(ctx context.Context, eventID model.EventID, sessionID model.SessionID) (bool, error)
}

// Config holds websocket connection limits.
type Config struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	CheckOrigin    func(r *http.Request) bool
}

// DefaultConfig returns the default connection limits.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1024,
		CheckOrigin:    func(*http.Request) bool { return true },
	}
}

// Option applies a configuration option to the Handler.
type Option func(*Handler)

// WithConfig replaces the connection limits. Zero fields keep defaults.
func WithConfig(cfg Config) Option {
	return func(h *Handler) {
		if cfg.WriteTimeout > 0 {
			h.config.WriteTimeout = cfg.WriteTimeout
		}
		if cfg.ReadTimeout > 0 {
			h.config.ReadTimeout = cfg.ReadTimeout
		}
		if cfg.PingInterval > 0 {
			h.config.PingInterval = cfg.PingInterval
		}
		if cfg.MaxMessageSize > 0 {
			h.config.MaxMessageSize = cfg.MaxMessageSize
		}
		if cfg.CheckOrigin != nil {
			h.config.CheckOrigin = cfg.CheckOrigin
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// Handler upgrades GET /events/{eventID}/timer/stream requests. With
// ?session= the connection also finalizes that session once the countdown
// reaches zero.
type Handler struct {
	deps     Dependencies
	config   Config
	upgrader websocket.Upgrader
	logger   logger.Logger
	active   atomic.Int64
}

// NewHandler creates a stream handler.
func NewHandler(deps Dependencies, opts ...Option) *Handler {
	h := &Handler{deps: deps, config: DefaultConfig()}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Named("ws")
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.config.CheckOrigin,
	}
	return h
}

// Active returns the number of open stream connections.
func (h *Handler) Active() int64 { return h.active.Load() }

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeHTTP streams the event countdown until the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	eventID := model.EventID(r.PathValue("eventID"))
	sessionID := model.SessionID(r.URL.Query().Get("session"))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream, err := h.deps.SubscribeTimer(ctx, eventID)
	if err != nil {
		status, code := http.StatusServiceUnavailable, "unavailable"
		if errors.Is(err, model.ErrNotFound) {
			status, code = http.StatusNotFound, "not_found"
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Message: err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(ctx, "websocket upgrade failed", logger.String("event_id", string(eventID)), logger.Error(err))
		return
	}
	defer conn.Close()

	h.active.Add(1)
	defer h.active.Add(-1)
	h.logger.Debug(ctx, "timer stream opened",
		logger.String("event_id", string(eventID)),
		logger.String("session_id", string(sessionID)),
	)

	go h.readPump(conn, cancel)
	h.writePump(ctx, conn, stream, eventID, sessionID)
}

// writePump forwards snapshots and keeps the connection alive with pings.
func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, stream <-chan model.TimerSnapshot, eventID model.EventID, sessionID model.SessionID) {
	ping := time.NewTicker(h.config.PingInterval)
	defer ping.Stop()

	expired := false
	for {
		select {
		case snap, ok := <-stream:
			_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				h.logger.Debug(ctx, "timer stream write failed", logger.Error(err))
				return
			}
			if sessionID != "" && !expired && snap.Status == model.TimerExpired {
				expired = true
				h.expire(ctx, eventID, sessionID)
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(h.config.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	}
}

func (h *Handler) expire(ctx context.Context, eventID model.EventID, sessionID model.SessionID) {
	done, err := h.deps.ExpireSession(ctx, eventID, sessionID)
	if err != nil {
		h.logger.Warn(ctx, "session expiry failed",
			logger.String("event_id", string(eventID)),
			logger.String("session_id", string(sessionID)),
			logger.Error(err),
		)
		return
	}
	if done {
		h.logger.Info(ctx, "session finalized on client expiry",
			logger.String("event_id", string(eventID)),
			logger.String("session_id", string(sessionID)),
		)
	}
}
