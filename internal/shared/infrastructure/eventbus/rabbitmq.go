package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// ExchangeName is the topic exchange permission events are published to.
	ExchangeName = "entitlekit.events"

	// DefaultQueueName is the queue used by Subscriber when none is given.
	DefaultQueueName = "entitlekit.watch"
)

// dial connects and declares the durable topic exchange.
func dial(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return conn, ch, nil
}

func closeAMQP(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) error {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Warn("error closing channel", "error", err)
		}
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// RabbitMQPublisher publishes events to RabbitMQ.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewRabbitMQPublisher creates a new RabbitMQ publisher.
func NewRabbitMQPublisher(url string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, ch, err := dial(url, ExchangeName)
	if err != nil {
		return nil, err
	}
	logger.Info("RabbitMQ publisher connected", "exchange", ExchangeName)

	return &RabbitMQPublisher{
		conn:     conn,
		channel:  ch,
		exchange: ExchangeName,
		logger:   logger,
	}, nil
}

// Publish sends a message to the exchange with the given routing key.
func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
	if err != nil {
		p.logger.Error("failed to publish message", "routing_key", routingKey, "error", err)
		return err
	}

	p.logger.Debug("message published", "routing_key", routingKey, "size", len(payload))
	return nil
}

// Ping reports whether the broker connection is still open.
func (p *RabbitMQPublisher) Ping(context.Context) error {
	if p.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

// Close closes the publisher connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := closeAMQP(p.channel, p.conn, p.logger); err != nil {
		return err
	}
	p.logger.Info("RabbitMQ publisher closed")
	return nil
}

// SubscriberConfig configures a RabbitMQ subscriber.
type SubscriberConfig struct {
	URL   string
	Queue string
	// Exclusive declares a server-named, auto-deleted queue for one-off
	// watchers instead of the durable named queue.
	Exclusive bool
	Logger    *slog.Logger
}

// Subscriber consumes events from RabbitMQ and dispatches them to handlers.
type Subscriber struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	registry *Registry
	logger   *slog.Logger
	mu       sync.Mutex
	running  bool
}

// NewSubscriber connects, declares the queue, and returns a subscriber.
func NewSubscriber(cfg SubscriberConfig) (*Subscriber, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	name := cfg.Queue
	if name == "" && !cfg.Exclusive {
		name = DefaultQueueName
	}

	conn, ch, err := dial(cfg.URL, ExchangeName)
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(
		name,
		!cfg.Exclusive, // durable
		cfg.Exclusive,  // auto-delete
		cfg.Exclusive,  // exclusive
		false,          // no-wait
		nil,
	)
	if err != nil {
		_ = closeAMQP(ch, conn, cfg.Logger)
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	cfg.Logger.Info("RabbitMQ subscriber connected", "queue", q.Name, "exchange", ExchangeName)
	return &Subscriber{
		conn:     conn,
		channel:  ch,
		queue:    q.Name,
		registry: NewRegistry(cfg.Logger),
		logger:   cfg.Logger,
	}, nil
}

// Subscribe registers a handler and binds the queue to its routing keys.
func (s *Subscriber) Subscribe(h Handler) error {
	s.registry.Register(h)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range h.EventTypes() {
		if err := s.channel.QueueBind(s.queue, key, ExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
	}
	return nil
}

// Run consumes until ctx is done. Messages whose handlers fail are requeued;
// undecodable messages are acknowledged and dropped.
func (s *Subscriber) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("subscriber already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := s.channel.Consume(s.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed unexpectedly")
			}
			if err := s.process(ctx, msg); err != nil {
				if nackErr := msg.Nack(false, true); nackErr != nil {
					s.logger.Error("failed to nack message", "error", nackErr)
				}
				continue
			}
			if ackErr := msg.Ack(false); ackErr != nil {
				s.logger.Error("failed to ack message", "error", ackErr)
			}
		}
	}
}

func (s *Subscriber) process(ctx context.Context, msg amqp.Delivery) error {
	event := &Event{}
	if err := json.Unmarshal(msg.Body, event); err != nil {
		s.logger.Error("failed to unmarshal event", "routing_key", msg.RoutingKey, "error", err)
		return nil
	}
	if event.RoutingKey == "" {
		event.RoutingKey = msg.RoutingKey
	}
	return s.registry.Dispatch(ctx, event)
}

// Close closes the subscriber connection.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return closeAMQP(s.channel, s.conn, s.logger)
}
