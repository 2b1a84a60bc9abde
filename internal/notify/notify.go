// Package notify publishes build lifecycle events to NATS.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/fwbuilder/internal/eventstore"
	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
)

// Notifier announces lifecycle events. Implementations never fail a build:
// delivery problems are logged.
type Notifier interface {
	Notify(ctx context.Context, event eventstore.Event)
	Close() error
}

// NoopNotifier discards events.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, eventstore.Event) {}
func (NoopNotifier) Close() error                            { return nil }

// Envelope is the JSON message published for each event.
type Envelope struct {
	BuildID   string          `json:"build_id"`
	Device    string          `json:"device"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes events on <prefix>.<event_name>.
type NATSNotifier struct {
	conn   publisher
	close  func()
	prefix string

	// drain flushes buffered publishes and closes the connection
	// asynchronously; closed is signaled once that has finished.
	drain     func() error
	closed    <-chan struct{}
	drainWait time.Duration
}

// drainTimeout bounds how long Close waits for buffered events to flush.
const drainTimeout = 5 * time.Second

// NewNATSNotifier connects to url. The connection reconnects in the
// background; publishes while disconnected are buffered by the client.
func NewNATSNotifier(url, subjectPrefix string) (*NATSNotifier, error) {
	closed := make(chan struct{})
	var closeOnce sync.Once
	conn, err := nats.Connect(url,
		nats.Name("fwbuilder"),
		nats.DrainTimeout(drainTimeout),
		nats.ClosedHandler(func(*nats.Conn) { closeOnce.Do(func() { close(closed) }) }),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, errors.NetworkError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", url).
			Build()
	}
	slog.Info("NATS notifier initialized", logfields.URL(url), slog.String("subject_prefix", subjectPrefix))
	return &NATSNotifier{
		conn:      conn,
		close:     conn.Close,
		prefix:    subjectPrefix,
		drain:     conn.Drain,
		closed:    closed,
		drainWait: drainTimeout + time.Second,
	}, nil
}

// Subject returns the subject an event of eventType is published on.
func (n *NATSNotifier) Subject(eventType string) string {
	return n.prefix + "." + snakeCase(eventType)
}

// Notify publishes event; failures are logged.
func (n *NATSNotifier) Notify(ctx context.Context, event eventstore.Event) {
	subject := n.Subject(event.Type())
	data, err := json.Marshal(Envelope{
		BuildID:   event.BuildID(),
		Device:    event.Device(),
		Type:      event.Type(),
		Timestamp: event.Timestamp(),
		Data:      json.RawMessage(event.Payload()),
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to encode event", logfields.Subject(subject), logfields.Error(err))
		return
	}
	if err := n.conn.Publish(subject, data); err != nil {
		slog.WarnContext(ctx, "Failed to publish event", logfields.Subject(subject), logfields.BuildID(event.BuildID()), logfields.Error(err))
		return
	}
	slog.DebugContext(ctx, "Published event", logfields.Subject(subject), logfields.BuildID(event.BuildID()))
}

// Close flushes buffered events within a bounded wait, then closes the
// connection. Events still buffered while disconnected are lost.
func (n *NATSNotifier) Close() error {
	if n.drain != nil {
		if err := n.drain(); err != nil {
			slog.Warn("NATS drain failed, closing", logfields.Error(err))
		} else {
			select {
			case <-n.closed:
				return nil
			case <-time.After(n.drainWait):
				slog.Warn("NATS drain timed out, closing", slog.Duration("timeout", n.drainWait))
			}
		}
	}
	if n.close != nil {
		n.close()
	}
	return nil
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
