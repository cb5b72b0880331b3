// Package natsbus bridges timer snapshots between service instances over
// NATS, so a host command on one instance reaches clients of every other.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
	"github.com/okian/catador/pkg/metrics"
)

// DefaultSubjectPrefix roots every subject the bus uses.
const DefaultSubjectPrefix = "catador.timer"

// Local is the in-process fan-out the bus feeds.
type Local interface {
	Publish(ctx context.Context, snap model.TimerSnapshot)
	Subscribe(eventID model.EventID) (<-chan model.TimerSnapshot, func())
}

// envelope is the wire form of a snapshot.
type envelope struct {
	Origin   string              `json:"origin"`
	Snapshot model.TimerSnapshot `json:"snapshot"`
}

// Bus publishes local snapshots to NATS and replays remote ones locally.
type Bus struct {
	conn   *nats.Conn
	local  Local
	prefix string
	origin string
	sub    *nats.Subscription
	logger logger.Logger
}

// Option applies a configuration option to the Bus.
type Option func(*Bus)

// WithSubjectPrefix sets the subject root.
func WithSubjectPrefix(prefix string) Option {
	return func(b *Bus) {
		if p := strings.Trim(prefix, "."); p != "" {
			b.prefix = p
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// Connect dials NATS with reconnects that never give up.
func Connect(url string, log logger.Logger) (*nats.Conn, error) {
	if log == nil {
		log = logger.Named("natsbus")
	}
	nc, err := nats.Connect(url,
		nats.Name("catador"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn(context.Background(), "nats disconnected", logger.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info(context.Background(), "nats reconnected", logger.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// New creates a bus over conn. Start must be called before remote snapshots
// are received.
func New(conn *nats.Conn, local Local, opts ...Option) *Bus {
	b := &Bus{
		conn:   conn,
		local:  local,
		prefix: DefaultSubjectPrefix,
		origin: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.Named("natsbus")
	}
	return b
}

// Start subscribes to every event subject under the prefix.
func (b *Bus) Start() error {
	sub, err := b.conn.Subscribe(b.prefix+".>", b.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s.>: %w", b.prefix, err)
	}
	b.sub = sub
	b.logger.Info(context.Background(), "nats bus started",
		logger.String("subject", b.prefix+".>"),
		logger.String("origin", b.origin),
	)
	return nil
}

// Publish delivers snap locally and to every other instance.
func (b *Bus) Publish(ctx context.Context, snap model.TimerSnapshot) {
	b.local.Publish(ctx, snap)
	data, err := json.Marshal(envelope{Origin: b.origin, Snapshot: snap})
	if err != nil {
		b.logger.Error(ctx, "encode snapshot", logger.Error(err))
		return
	}
	if err := b.conn.Publish(b.Subject(snap.EventID), data); err != nil {
		metrics.RecordErrorByComponent("natsbus", "publish")
		b.logger.Warn(ctx, "nats publish failed", logger.String("event_id", string(snap.EventID)), logger.Error(err))
		return
	}
	metrics.RecordBroadcast("nats")
}

// Subscribe subscribes to the local fan-out, which carries remote snapshots
// too.
func (b *Bus) Subscribe(eventID model.EventID) (<-chan model.TimerSnapshot, func()) {
	return b.local.Subscribe(eventID)
}

// Subject returns the subject snapshots of eventID travel on.
func (b *Bus) Subject(eventID model.EventID) string {
	return b.prefix + "." + string(eventID)
}

// Close drops the subscription. The connection belongs to the caller.
func (b *Bus) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Unsubscribe()
}

func (b *Bus) handle(msg *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		metrics.RecordErrorByComponent("natsbus", "decode")
		b.logger.Warn(context.Background(), "dropping malformed snapshot", logger.String("subject", msg.Subject), logger.Error(err))
		return
	}
	if env.Origin == b.origin {
		return
	}
	b.local.Publish(context.Background(), env.Snapshot)
}
