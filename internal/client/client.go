// Package client is a typed client for the catador HTTP API. It is shared by
// the host CLI and the party simulator.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	service "github.com/okian/catador/internal/app"
	"github.com/okian/catador/internal/domain/model"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx response decoded from the API error body.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// HasCode reports whether err is an APIError carrying code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client calls one catador server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// New creates a client for baseURL, e.g. "http://localhost:9080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "http_error"
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}

func eventPath(id model.EventID, parts ...string) string {
	var b strings.Builder
	b.WriteString("/events/")
	b.WriteString(url.PathEscape(string(id)))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

func sessionPath(eventID model.EventID, sessionID model.SessionID, parts ...string) string {
	return eventPath(eventID, append([]string{"sessions", string(sessionID)}, parts...)...)
}

// Health returns nil when the server reports ready.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Deck lists the Spanish deck.
func (c *Client) Deck(ctx context.Context) ([]model.Card, error) {
	var cards []model.Card
	err := c.do(ctx, http.MethodGet, "/deck", nil, &cards)
	return cards, err
}

// CreateEvent creates a tasting event.
func (c *Client) CreateEvent(ctx context.Context, name, date string) (*model.Event, error) {
	var e model.Event
	body := map[string]string{"name": name, "date": date}
	if err := c.do(ctx, http.MethodPost, "/events", body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEvent fetches an event by id.
func (c *Client) GetEvent(ctx context.Context, id model.EventID) (*model.Event, error) {
	var e model.Event
	if err := c.do(ctx, http.MethodGet, eventPath(id), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// EventByPIN resolves the PIN participants type to join.
func (c *Client) EventByPIN(ctx context.Context, pin string) (*model.Event, error) {
	var e model.Event
	if err := c.do(ctx, http.MethodGet, "/pins/"+url.PathEscape(pin), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEvents lists every event.
func (c *Client) ListEvents(ctx context.Context) ([]*model.Event, error) {
	var events []*model.Event
	err := c.do(ctx, http.MethodGet, "/events", nil, &events)
	return events, err
}

// DeleteEvent removes an event and everything recorded under it.
func (c *Client) DeleteEvent(ctx context.Context, id model.EventID) error {
	return c.do(ctx, http.MethodDelete, eventPath(id), nil, nil)
}

// AddTag binds a wine label to a card.
func (c *Client) AddTag(ctx context.Context, eventID model.EventID, tagID model.TagID, tagName string, cardID model.CardID) (model.TagDefinition, error) {
	var t model.TagDefinition
	body := map[string]string{"tagId": string(tagID), "tagName": tagName, "cardId": string(cardID)}
	err := c.do(ctx, http.MethodPost, eventPath(eventID, "tags"), body, &t)
	return t, err
}

// ListTags lists the tag definitions of an event.
func (c *Client) ListTags(ctx context.Context, eventID model.EventID) ([]model.TagDefinition, error) {
	var tags []model.TagDefinition
	err := c.do(ctx, http.MethodGet, eventPath(eventID, "tags"), nil, &tags)
	return tags, err
}

// RemoveTag deletes a tag definition.
func (c *Client) RemoveTag(ctx context.Context, eventID model.EventID, tagID model.TagID) error {
	return c.do(ctx, http.MethodDelete, eventPath(eventID, "tags", string(tagID)), nil, nil)
}

// AddParticipant adds a roster entry.
func (c *Client) AddParticipant(ctx context.Context, eventID model.EventID, name string) (model.Participant, error) {
	var p model.Participant
	err := c.do(ctx, http.MethodPost, eventPath(eventID, "participants"), map[string]string{"name": name}, &p)
	return p, err
}

// ListParticipants lists the roster.
func (c *Client) ListParticipants(ctx context.Context, eventID model.EventID) ([]model.Participant, error) {
	var list []model.Participant
	err := c.do(ctx, http.MethodGet, eventPath(eventID, "participants"), nil, &list)
	return list, err
}

// RemoveParticipant deletes a roster entry.
func (c *Client) RemoveParticipant(ctx context.Context, eventID model.EventID, id model.ParticipantID) error {
	return c.do(ctx, http.MethodDelete, eventPath(eventID, "participants", string(id)), nil, nil)
}

// TimerState returns the current countdown.
func (c *Client) TimerState(ctx context.Context, eventID model.EventID) (model.TimerSnapshot, error) {
	var snap model.TimerSnapshot
	err := c.do(ctx, http.MethodGet, eventPath(eventID, "timer"), nil, &snap)
	return snap, err
}

// StartTimer starts a countdown of d.
func (c *Client) StartTimer(ctx context.Context, eventID model.EventID, d time.Duration) (model.TimerSnapshot, error) {
	return c.timerCommand(ctx, eventID, "start", d)
}

// PauseTimer pauses the countdown.
func (c *Client) PauseTimer(ctx context.Context, eventID model.EventID) (model.TimerSnapshot, error) {
	return c.timerCommand(ctx, eventID, "pause", 0)
}

// ResumeTimer resumes a paused countdown.
func (c *Client) ResumeTimer(ctx context.Context, eventID model.EventID) (model.TimerSnapshot, error) {
	return c.timerCommand(ctx, eventID, "resume", 0)
}

// ExtendTimer adds d to the running or paused countdown.
func (c *Client) ExtendTimer(ctx context.Context, eventID model.EventID, d time.Duration) (model.TimerSnapshot, error) {
	return c.timerCommand(ctx, eventID, "extend", d)
}

// StopTimer clears the countdown.
func (c *Client) StopTimer(ctx context.Context, eventID model.EventID) (model.TimerSnapshot, error) {
	return c.timerCommand(ctx, eventID, "stop", 0)
}

func (c *Client) timerCommand(ctx context.Context, eventID model.EventID, cmd string, d time.Duration) (model.TimerSnapshot, error) {
	var body any
	if d > 0 {
		body = map[string]float64{"minutes": d.Minutes()}
	}
	var snap model.TimerSnapshot
	err := c.do(ctx, http.MethodPost, eventPath(eventID, "timer", cmd), body, &snap)
	return snap, err
}

// SetSolution stores the host solution. A nil map derives it from the tag
// bindings.
func (c *Client) SetSolution(ctx context.Context, eventID model.EventID, assignments map[model.TagID]model.CardID) (*model.SessionProgress, error) {
	var sol model.SessionProgress
	body := map[string]any{}
	if assignments != nil {
		body["assignments"] = assignments
	}
	if err := c.do(ctx, http.MethodPut, eventPath(eventID, "solution"), body, &sol); err != nil {
		return nil, err
	}
	return &sol, nil
}

// Reveal finalizes the event and returns the leaderboard.
func (c *Client) Reveal(ctx context.Context, eventID model.EventID) (*service.Leaderboard, error) {
	var board service.Leaderboard
	if err := c.do(ctx, http.MethodPost, eventPath(eventID, "reveal"), nil, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

// Leaderboard fetches the leaderboard; it is pending until reveal.
func (c *Client) Leaderboard(ctx context.Context, eventID model.EventID) (*service.Leaderboard, error) {
	var board service.Leaderboard
	if err := c.do(ctx, http.MethodGet, eventPath(eventID, "leaderboard"), nil, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

// NameAvailable reports whether name is free, ignoring the excluding session.
func (c *Client) NameAvailable(ctx context.Context, eventID model.EventID, name string, excluding model.SessionID) (bool, error) {
	path := eventPath(eventID, "names", name)
	if excluding != "" {
		path += "?exclude=" + url.QueryEscape(string(excluding))
	}
	var out struct {
		Available bool `json:"available"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Available, err
}

// NewSession opens a participant session and returns its token.
func (c *Client) NewSession(ctx context.Context, eventID model.EventID) (model.SessionID, error) {
	var out struct {
		SessionID model.SessionID `json:"sessionId"`
	}
	err := c.do(ctx, http.MethodPost, eventPath(eventID, "sessions"), nil, &out)
	return out.SessionID, err
}

// Session returns the current view of a session.
func (c *Client) Session(ctx context.Context, eventID model.EventID, sessionID model.SessionID) (service.SessionView, error) {
	var v service.SessionView
	err := c.do(ctx, http.MethodGet, sessionPath(eventID, sessionID), nil, &v)
	return v, err
}

// SelectName reserves name for the session.
func (c *Client) SelectName(ctx context.Context, eventID model.EventID, sessionID model.SessionID, name string) (service.SessionView, error) {
	var v service.SessionView
	err := c.do(ctx, http.MethodPost, sessionPath(eventID, sessionID, "name"), map[string]string{"name": name}, &v)
	return v, err
}

// Assign places card on tag.
func (c *Client) Assign(ctx context.Context, eventID model.EventID, sessionID model.SessionID, tag model.TagID, card model.CardID) (service.SessionView, error) {
	var v service.SessionView
	path := sessionPath(eventID, sessionID, "assignments", string(tag))
	err := c.do(ctx, http.MethodPut, path, map[string]string{"cardId": string(card)}, &v)
	return v, err
}

// Unassign removes the card from tag.
func (c *Client) Unassign(ctx context.Context, eventID model.EventID, sessionID model.SessionID, tag model.TagID) (service.SessionView, error) {
	var v service.SessionView
	err := c.do(ctx, http.MethodDelete, sessionPath(eventID, sessionID, "assignments", string(tag)), nil, &v)
	return v, err
}

// Rate stores a 1-5 star rating for tag.
func (c *Client) Rate(ctx context.Context, eventID model.EventID, sessionID model.SessionID, tag model.TagID, rating int) (service.SessionView, error) {
	var v service.SessionView
	path := sessionPath(eventID, sessionID, "ratings", string(tag))
	err := c.do(ctx, http.MethodPut, path, map[string]int{"rating": rating}, &v)
	return v, err
}

// Reorder replaces the preference order.
func (c *Client) Reorder(ctx context.Context, eventID model.EventID, sessionID model.SessionID, order []model.TagID) (service.SessionView, error) {
	var v service.SessionView
	err := c.do(ctx, http.MethodPut, sessionPath(eventID, sessionID, "order"), map[string]any{"order": order}, &v)
	return v, err
}

// Finalize submits the session.
func (c *Client) Finalize(ctx context.Context, eventID model.EventID, sessionID model.SessionID) (service.SessionView, error) {
	var v service.SessionView
	err := c.do(ctx, http.MethodPost, sessionPath(eventID, sessionID, "finalize"), nil, &v)
	return v, err
}
