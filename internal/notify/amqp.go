package notify

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultAMQPQueue = "dianabot.events"

// AMQPPublisher publishes persistent JSON messages to a durable RabbitMQ
// queue through the default exchange.
type AMQPPublisher struct {
	mu    sync.Mutex // amqp channels are not safe for concurrent publishing
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewAMQPPublisher dials url, opens a channel and declares queue.
func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp: url is required")
	}
	if queue == "" {
		queue = defaultAMQPQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *AMQPPublisher) Name() string { return "amqp" }

// Available reports whether the connection and channel are still open.
func (p *AMQPPublisher) Available(context.Context) bool {
	if p == nil || p.conn == nil || p.ch == nil {
		return false
	}
	return !p.conn.IsClosed() && !p.ch.IsClosed()
}

func (p *AMQPPublisher) Publish(ctx context.Context, n Notification) error {
	body, err := n.Encode()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         string(n.Kind),
			Timestamp:    n.SentAt,
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	return p.conn.Close()
}
