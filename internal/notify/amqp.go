// ABOUTME: AMQP notifier publishing assignment events to a topic exchange
// ABOUTME: Routing key is <org>.<topic>, JSON body, persistent delivery

package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// AMQPNotifier publishes events to a RabbitMQ topic exchange so other
// services (analytics, mobile push) can follow assignment changes.
// Implements Notifier.
type AMQPNotifier struct {
	conn     *amqp091.Connection
	exchange string
	logger   *slog.Logger
}

// NewAMQPNotifier dials the broker and declares the topic exchange.
func NewAMQPNotifier(url, exchange string, logger *slog.Logger) (*AMQPNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, err
	}

	return &AMQPNotifier{
		conn:     conn,
		exchange: exchange,
		logger:   logger.With("component", "amqp-notifier"),
	}, nil
}

// Publish sends the event to the exchange. The routing key is the org id
// followed by the topic with ':' flattened to '.', e.g. the queue topic for
// org acme routes as "acme.queue.updated".
func (n *AMQPNotifier) Publish(ctx context.Context, orgID, topic string, payload any) error {
	ch, err := n.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	event := &Event{
		ID:         uuid.NewString(),
		OrgID:      orgID,
		Topic:      topic,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := orgID + "." + strings.ReplaceAll(topic, ":", ".")
	err = ch.PublishWithContext(
		ctx, n.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err == nil {
		n.logger.Debug("published",
			slog.String("key", key),
			slog.String("exchange", n.exchange))
	}
	return err
}

// Close closes the broker connection.
func (n *AMQPNotifier) Close() error {
	return n.conn.Close()
}

// Ensure AMQPNotifier implements Notifier
var _ Notifier = (*AMQPNotifier)(nil)
