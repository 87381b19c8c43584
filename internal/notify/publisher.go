package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/metadeploy/internal/config"
	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/logfields"
)

// Publisher delivers deployment events.
type Publisher interface {
	Publish(ctx context.Context, event *DeploymentEvent) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *DeploymentEvent) error { return nil }
func (NoopPublisher) Close() error                                    { return nil }

// MemoryPublisher keeps events in memory. Useful in tests and dry runs.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []DeploymentEvent
}

// Publish stores a copy of the event.
func (m *MemoryPublisher) Publish(_ context.Context, event *DeploymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

// Events returns the published events in order.
func (m *MemoryPublisher) Events() []DeploymentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeploymentEvent(nil), m.events...)
}

func (m *MemoryPublisher) Close() error { return nil }

// StreamName is the JetStream stream capturing deployment events.
const StreamName = "METADEPLOY_DEPLOYMENTS"

// NATSPublisher publishes events to a JetStream stream, falling back to core
// NATS when the server has JetStream disabled.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
	now     func() time.Time
}

// NewPublisher returns a NATS publisher when cfg names a server, otherwise a no-op.
func NewPublisher(ctx context.Context, cfg config.NotifyConfig) (Publisher, error) {
	if strings.TrimSpace(cfg.NATSURL) == "" {
		return NoopPublisher{}, nil
	}
	return NewNATSPublisher(ctx, cfg)
}

// NewNATSPublisher connects to NATS and makes sure the event stream exists.
func NewNATSPublisher(ctx context.Context, cfg config.NotifyConfig) (*NATSPublisher, error) {
	subject := cfg.Subject
	if subject == "" {
		subject = config.DefaultSubject
	}

	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("metadeploy"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, errors.NetworkError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", cfg.NATSURL).
			Build()
	}

	p := &NATSPublisher{conn: conn, subject: subject, now: time.Now}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Metadata deployment outcomes",
		Subjects:    []string{subject},
		MaxAge:      30 * 24 * time.Hour,
	})
	if err != nil {
		slog.Warn("JetStream unavailable, publishing on core NATS",
			logfields.URL(cfg.NATSURL),
			logfields.Error(err))
	} else {
		p.js = js
	}

	slog.Info("NATS publisher initialized",
		logfields.URL(cfg.NATSURL),
		slog.String("subject", subject),
		slog.Bool("jetstream", p.js != nil))
	return p, nil
}

// Publish sends the event as JSON.
func (p *NATSPublisher) Publish(ctx context.Context, event *DeploymentEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if p.js != nil {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := p.js.Publish(pctx, p.subject, data); err != nil {
			return errors.NetworkError("failed to publish deployment event").
				WithCause(err).
				WithContext("subject", p.subject).
				Build()
		}
	} else if err := p.conn.Publish(p.subject, data); err != nil {
		return errors.NetworkError("failed to publish deployment event").
			WithCause(err).
			WithContext("subject", p.subject).
			Build()
	}

	slog.Debug("Published deployment event",
		logfields.BuildID(event.BuildID),
		logfields.JobRef(event.JobRef),
		logfields.Status(event.Outcome))
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
