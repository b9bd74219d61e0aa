package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher holds a long-lived RabbitMQ connection. A nil *Publisher is
// valid and publishes nothing, so callers need no broker in local setups.
type Publisher struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger zerolog.Logger
}

// NewPublisher dials the broker and declares the durable job-finished
// queue. When url is empty it returns (nil, nil).
func NewPublisher(url string, logger zerolog.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(JobFinishedQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: declare queue: %w", err)
	}
	return &Publisher{
		conn:   conn,
		ch:     ch,
		logger: logger.With().Str("component", "queue").Logger(),
	}, nil
}

// PublishJobFinished sends the event as a persistent JSON message.
// Failures are logged and returned; callers treat publishing as
// best-effort and never fail the request over it.
func (p *Publisher) PublishJobFinished(ctx context.Context, event JobFinishedEvent) error {
	if p == nil || p.ch == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, "", JobFinishedQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.logger.Error().Err(err).Str("job_id", event.JobID).Msg("publish job finished failed")
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
