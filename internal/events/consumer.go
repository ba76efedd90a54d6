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

type ProfileUpdatedHandler func(ctx context.Context, event domain.ProfileUpdatedEvent) error

type Consumer struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

func NewConsumer(natsURL string, logger *slog.Logger) (*Consumer, error) {
	nc, js, err := Connect(natsURL, "facetag-consumer")
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js, logger: logger}, nil
}

// ConsumeProfileUpdates starts a durable consumer on profile.updated and
// calls handler for each event until ctx is done. Failed messages are
// redelivered up to three times.
func (c *Consumer) ConsumeProfileUpdates(ctx context.Context, consumerName string, handler ProfileUpdatedHandler) error {
	stream, err := c.js.Stream(ctx, StreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", StreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Minute,
		MaxDeliver:    3,
		FilterSubject: SubjectProfileUpdated,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("fetch profile events", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				c.handle(ctx, msg, handler)
			}
		}
	}()

	c.logger.Info("profile event consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg jetstream.Msg, handler ProfileUpdatedHandler) {
	var event domain.ProfileUpdatedEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		// poison message, redelivery would not help
		c.logger.Error("discard malformed profile event", "subject", msg.Subject(), "error", err)
		_ = msg.Term()
		return
	}

	if err := handler(ctx, event); err != nil {
		c.logger.Error("process profile event", "user_id", event.UserID, "error", err)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

func (c *Consumer) Close() {
	c.nc.Close()
}
