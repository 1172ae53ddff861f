package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultChangesExchange is the fanout exchange changes are published on
const DefaultChangesExchange = "gtd_changes"

// RabbitMQPublisher publishes changes to a fanout exchange so processes other
// than the one that made the change (the worker, other API replicas) can relay them.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewRabbitMQPublisher connects and declares the changes exchange
func NewRabbitMQPublisher(amqpURL string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		DefaultChangesExchange,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare changes exchange: %w", err)
	}

	return &RabbitMQPublisher{
		conn:     conn,
		channel:  ch,
		exchange: DefaultChangesExchange,
		logger:   logger,
	}, nil
}

// Publish sends c to the fanout exchange
func (p *RabbitMQPublisher) Publish(ctx context.Context, c Change) error {
	if err := c.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}

	// amqp channels are not safe for concurrent publishes
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		MessageId:   c.ID.String(),
		Timestamp:   c.At,
	})
	if err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

// Relay binds an exclusive queue to the exchange and republishes every change
// it receives on local until ctx is cancelled.
func (p *RabbitMQPublisher) Relay(ctx context.Context, local Publisher) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open relay channel: %w", err)
	}
	defer func() {
		_ = ch.Close()
	}()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare relay queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", p.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind relay queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume relay queue: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("relay delivery channel closed")
			}
			var c Change
			if err := json.Unmarshal(d.Body, &c); err != nil {
				p.logger.Warn("change_relay_decode_failed", zap.Error(err))
				continue
			}
			if err := local.Publish(ctx, c); err != nil {
				p.logger.Warn("change_relay_publish_failed", zap.Error(err))
			}
		}
	}
}

// HealthCheck verifies the connection is open
func (p *RabbitMQPublisher) HealthCheck(_ context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// Close closes the channel and connection
func (p *RabbitMQPublisher) Close() error {
	var err error
	if p.channel != nil {
		err = p.channel.Close()
	}
	if p.conn != nil {
		if closeErr := p.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

var _ Publisher = (*RabbitMQPublisher)(nil)
