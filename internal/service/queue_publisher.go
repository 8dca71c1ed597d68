// Package service publishes auth audit events to RabbitMQ. Publish errors
// are logged and returned so callers can ignore them without interrupting
// the request.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bizmarket/marketplace/internal/queue"
)

// Publisher sends AuthEvent messages to the auth.events queue. A disabled
// publisher drops events.
type Publisher struct {
	url     string
	enabled bool
	logger  *slog.Logger
}

func NewPublisher(url string, enabled bool, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{url: url, enabled: enabled, logger: logger}
}

// Publish dials the broker, declares the durable queue and publishes ev as a
// persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, ev queue.AuthEvent) error {
	if !p.enabled {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.logger.Warn("rabbitmq: dial failed", "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.logger.Warn("rabbitmq: channel open failed", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue.AuthEventsQueue, true, false, false, false, nil); err != nil {
		p.logger.Warn("rabbitmq: queue declare failed", "error", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue.AuthEventsQueue, false, false, pub); err != nil {
		p.logger.Warn("rabbitmq: publish failed", "error", err, "event", ev.Type)
		return err
	}
	return nil
}
