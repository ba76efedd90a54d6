package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

// jsPublisher is the slice of jetstream.JetStream the publisher needs.
type jsPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher writes events to the FACETAG stream.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	pub    jsPublisher
	logger *slog.Logger
}

// Connect dials NATS and keeps reconnecting forever in the background.
func Connect(natsURL, name string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

func NewPublisher(natsURL string, logger *slog.Logger) (*Publisher, error) {
	nc, js, err := Connect(natsURL, "facetag-publisher")
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, js: js, pub: js, logger: logger}, nil
}

// EnsureStream creates or updates the FACETAG stream, retrying while the
// server is still starting.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectBase + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Duplicates:  2 * time.Minute,
		Description: "Photo processing and profile events",
	}

	const maxAttempts = 30
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err = p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			p.logger.Info("ensured NATS stream", "name", StreamName)
			return nil
		}
		p.logger.Warn("ensure NATS stream (retrying...)", "name", StreamName, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("create stream %s: %w (after %d attempts)", StreamName, err, maxAttempts)
}

func (p *Publisher) PublishPhotoProcessed(ctx context.Context, event domain.PhotoProcessedEvent) error {
	msgID := fmt.Sprintf("photo-%s-%d", event.PhotoID, event.OccurredAt.UnixNano())
	return p.publish(ctx, SubjectPhotoProcessed, msgID, event)
}

func (p *Publisher) PublishProfileUpdated(ctx context.Context, event domain.ProfileUpdatedEvent) error {
	// one message per embedding version
	msgID := fmt.Sprintf("profile-%s-%d", event.UserID, event.EmbeddingVersion)
	return p.publish(ctx, SubjectProfileUpdated, msgID, event)
}

func (p *Publisher) publish(ctx context.Context, subject, msgID string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if _, err := p.pub.Publish(ctx, subject, payload, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) Ping() error {
	if p.nc == nil || !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
