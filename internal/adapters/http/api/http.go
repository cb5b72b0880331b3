// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/cors"

	service "github.com/okian/catador/internal/app"
	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
)

const maxBodyBytes = 64 << 10

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	RosterDependencies
	TimerDependencies
	SessionDependencies
	LeaderboardDependencies
	StatsProvider
	ReadinessProvider
}

// Server wires HTTP routes for the tasting API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	eventsHandler      *EventsHandler
	rosterHandler      *RosterHandler
	timerHandler       *TimerHandler
	sessionsHandler    *SessionsHandler
	leaderboardHandler *LeaderboardHandler

	corsOrigins []string
	stats       map[string]func() any
	logger      logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithCORSOrigins sets the origins allowed by the CORS wrapper.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithStat adds a named value to the /stats response.
func WithStat(name string, fn func() any) Option {
	return func(s *Server) {
		if name == "" || fn == nil {
			return
		}
		if s.stats == nil {
			s.stats = make(map[string]func() any)
		}
		s.stats[name] = fn
	}
}

// WithLogger sets the logger used for server side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{corsOrigins: []string{"*"}}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	r := responder{logger: s.logger}
	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(deps, s.stats)
	s.eventsHandler = NewEventsHandler(deps, r)
	s.rosterHandler = NewRosterHandler(deps, r)
	s.timerHandler = NewTimerHandler(deps, r)
	s.sessionsHandler = NewSessionsHandler(deps, r)
	s.leaderboardHandler = NewLeaderboardHandler(deps, r)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	handle := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	handle("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	handle("GET /stats", "stats", s.statsHandler.HandleStats)
	handle("GET /deck", "deck", s.eventsHandler.HandleDeck)

	e := s.eventsHandler
	handle("POST /events", "events", e.HandleCreate)
	handle("GET /events", "events", e.HandleList)
	handle("GET /events/{eventID}", "event", e.HandleGet)
	handle("DELETE /events/{eventID}", "event", e.HandleDelete)
	handle("GET /pins/{pin}", "pin", e.HandleGetByPIN)

	ro := s.rosterHandler
	handle("POST /events/{eventID}/tags", "tags", ro.HandleAddTag)
	handle("GET /events/{eventID}/tags", "tags", ro.HandleListTags)
	handle("DELETE /events/{eventID}/tags/{tagID}", "tag", ro.HandleRemoveTag)
	handle("POST /events/{eventID}/participants", "participants", ro.HandleAddParticipant)
	handle("GET /events/{eventID}/participants", "participants", ro.HandleListParticipants)
	handle("DELETE /events/{eventID}/participants/{participantID}", "participant", ro.HandleRemoveParticipant)

	t := s.timerHandler
	handle("GET /events/{eventID}/timer", "timer", t.HandleState)
	handle("POST /events/{eventID}/timer/start", "timer_start", t.HandleStart)
	handle("POST /events/{eventID}/timer/pause", "timer_pause", t.HandlePause)
	handle("POST /events/{eventID}/timer/resume", "timer_resume", t.HandleResume)
	handle("POST /events/{eventID}/timer/extend", "timer_extend", t.HandleExtend)
	handle("POST /events/{eventID}/timer/stop", "timer_stop", t.HandleStop)

	l := s.leaderboardHandler
	handle("PUT /events/{eventID}/solution", "solution", l.HandleSetSolution)
	handle("POST /events/{eventID}/reveal", "reveal", l.HandleReveal)
	handle("GET /events/{eventID}/leaderboard", "leaderboard", l.HandleGetLeaderboard)

	ss := s.sessionsHandler
	handle("GET /events/{eventID}/names/{name}", "names", ss.HandleNameAvailable)
	handle("POST /events/{eventID}/sessions", "sessions", ss.HandleCreate)
	handle("GET /events/{eventID}/sessions/{sessionID}", "session", ss.HandleGet)
	handle("POST /events/{eventID}/sessions/{sessionID}/name", "session_name", ss.HandleSelectName)
	handle("PUT /events/{eventID}/sessions/{sessionID}/assignments/{tagID}", "session_assign", ss.HandleAssign)
	handle("DELETE /events/{eventID}/sessions/{sessionID}/assignments/{tagID}", "session_unassign", ss.HandleUnassign)
	handle("PUT /events/{eventID}/sessions/{sessionID}/ratings/{tagID}", "session_rate", ss.HandleRate)
	handle("PUT /events/{eventID}/sessions/{sessionID}/order", "session_order", ss.HandleReorder)
	handle("POST /events/{eventID}/sessions/{sessionID}/finalize", "session_finalize", ss.HandleFinalize)
}

// Handler returns mux wrapped with the configured CORS policy.
func (s *Server) Handler(mux *http.ServeMux) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}).Handler(mux)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// responder turns domain errors into error responses and logs the ones the
// client cannot fix.
type responder struct {
	logger logger.Logger
}

func (r responder) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		r.logger.Error(ctx, "request failed",
			logger.String("op", op),
			logger.Int("status", status),
			logger.Error(err),
		)
		if status == http.StatusInternalServerError {
			err = nil
		}
	}
	writeError(w, status, code, err)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, op string, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

func eventID(r *http.Request) model.EventID {
	return model.EventID(r.PathValue("eventID"))
}

func sessionID(r *http.Request) model.SessionID {
	return model.SessionID(r.PathValue("sessionID"))
}

func minutes(op string, m float64) (time.Duration, error) {
	if m <= 0 {
		return 0, fmt.Errorf("%s: minutes must be positive: %w", op, model.ErrInvalidDuration)
	}
	return time.Duration(m * float64(time.Minute)), nil
}

// Compile-time check that the service satisfies the handler dependencies.
var _ Dependencies = (*service.Service)(nil)
