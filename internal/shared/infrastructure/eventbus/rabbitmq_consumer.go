package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConsumerConfig configures a consumer.
// An empty QueueName declares a server-named exclusive queue that is
// deleted when the consumer disconnects, which suits a live tail.
type RabbitMQConsumerConfig struct {
	URL       string
	QueueName string
	Exchange  string
	Logger    *slog.Logger
}

// RabbitMQConsumer binds a queue to the topic exchange and hands every
// delivery to the consumers registered in its registry.
type RabbitMQConsumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	exchange string
	registry *ConsumerRegistry
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

var _ Consumer = (*RabbitMQConsumer)(nil)

// NewRabbitMQConsumer connects and declares the queue.
func NewRabbitMQConsumer(cfg RabbitMQConsumerConfig, registry *ConsumerRegistry) (*RabbitMQConsumer, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Exchange == "" {
		cfg.Exchange = ExchangeName
	}
	if registry == nil {
		registry = NewConsumerRegistry(cfg.Logger)
	}

	conn, ch, err := dial(cfg.URL, cfg.Exchange)
	if err != nil {
		return nil, err
	}

	transient := cfg.QueueName == ""
	// durable unless transient; transient queues are auto-deleted and exclusive
	queue, err := ch.QueueDeclare(cfg.QueueName, !transient, transient, transient, false, nil)
	if err != nil {
		_ = closeAll(conn, ch)
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	cfg.Logger.Info("RabbitMQ consumer connected", "queue", queue.Name, "exchange", cfg.Exchange)

	return &RabbitMQConsumer{
		conn:     conn,
		channel:  ch,
		queue:    queue.Name,
		exchange: cfg.Exchange,
		registry: registry,
		logger:   cfg.Logger,
		done:     make(chan struct{}),
	}, nil
}

// RegisterConsumer adds consumer and binds its routing patterns to the queue.
func (c *RabbitMQConsumer) RegisterConsumer(consumer EventConsumer) {
	c.registry.Register(consumer)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pattern := range consumer.EventTypes() {
		if err := c.channel.QueueBind(c.queue, pattern, c.exchange, false, nil); err != nil {
			c.logger.Error("failed to bind queue", "pattern", pattern, "error", err)
			continue
		}
		c.logger.Debug("bound queue", "queue", c.queue, "pattern", pattern)
	}
}

// Start consumes until ctx is cancelled, Close is called or the broker drops
// the channel. A delivery whose handler fails is requeued once; a redelivered
// failure is dropped so a poison message cannot spin the loop.
func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	c.logger.Info("consuming events", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed by broker")
			}
			c.deliver(ctx, d)
		}
	}
}

func (c *RabbitMQConsumer) deliver(ctx context.Context, d amqp.Delivery) {
	var event ConsumedEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		c.logger.Warn("dropping malformed event", "routing_key", d.RoutingKey, "error", err)
		_ = d.Ack(false)
		return
	}
	if event.RoutingKey == "" {
		event.RoutingKey = d.RoutingKey
	}

	if err := c.registry.Dispatch(ctx, &event); err != nil {
		requeue := !d.Redelivered
		c.logger.Error("event handling failed",
			"routing_key", event.RoutingKey,
			"event_id", event.EventID,
			"requeue", requeue,
			"error", err,
		)
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

// Close stops Start and closes the connection. It is safe to call twice.
func (c *RabbitMQConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}
	c.running = false

	if err := closeAll(c.conn, c.channel); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	c.logger.Info("RabbitMQ consumer closed")
	return nil
}
