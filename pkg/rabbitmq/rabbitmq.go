package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"
)

// ErrClosed is returned when the client has no open channel.
var ErrClosed = errors.New("rabbitmq channel is not available")

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
	log     *logrus.Entry

	// amqp.Channel is not meant to be shared between publishers and
	// consumers without coordination.
	mu sync.Mutex
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL string
	// Exchange is a durable topic exchange events are published to.
	Exchange string
	// Queue is bound to Exchange with BindingKey and consumed by Consume.
	Queue      string
	BindingKey string
}

func (c *Config) setDefaults() {
	if c.Exchange == "" {
		c.Exchange = "cardapio.events"
	}
	if c.Queue == "" {
		c.Queue = "order_queue"
	}
	if c.BindingKey == "" {
		c.BindingKey = "order.#"
	}
}

// NewClient connects to RabbitMQ and declares the exchange, the queue and
// the binding between them.
func NewClient(cfg Config, log *logrus.Entry) (*Client, error) {
	cfg.setDefaults()

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declare(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"exchange": cfg.Exchange,
		"queue":    cfg.Queue,
	}).Info("RabbitMQ client connected")

	return &Client{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		log:     log,
	}, nil
}

func declare(ch *amqp.Channel, cfg Config) error {
	err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	_, err = ch.QueueDeclare(
		cfg.Queue, // name
		true,      // durable (persists messages across broker restarts)
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare %s: %w", cfg.Queue, err)
	}

	if err := ch.QueueBind(cfg.Queue, cfg.BindingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind %s to %s: %w", cfg.Queue, cfg.Exchange, err)
	}
	return nil
}

// Close closes the RabbitMQ connection and channel.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
		c.channel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
		c.conn = nil
	}
	return errors.Join(errs...)
}

// Publish sends a persistent JSON message to the exchange. The context is
// checked before publishing; the amqp library has no cancellable publish.
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil {
		return ErrClosed
	}

	err := c.channel.Publish(
		c.cfg.Exchange, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}

	c.log.WithField("routing_key", routingKey).Debug("event published")
	return nil
}

// Handler processes one message body. A returned error requeues the
// message unless the delivery was already redelivered once.
type Handler func(ctx context.Context, routingKey string, body []byte) error

// Consume delivers messages of the bound queue to handler until ctx is
// done. It returns once the consumer is registered; the returned channel
// is closed when the delivery loop exits.
func (c *Client) Consume(ctx context.Context, handler Handler) (<-chan struct{}, error) {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return nil, ErrClosed
	}

	msgs, err := ch.Consume(
		c.cfg.Queue, // queue
		"",          // consumer tag
		false,       // auto-ack: messages are acknowledged after handling
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.WithField("queue", c.cfg.Queue).Info("waiting for events")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				c.handle(ctx, msg, handler)
			}
		}
	}()
	return done, nil
}

func (c *Client) handle(ctx context.Context, msg amqp.Delivery, handler Handler) {
	log := c.log.WithFields(logrus.Fields{
		"delivery_tag": msg.DeliveryTag,
		"routing_key":  msg.RoutingKey,
	})

	if err := handler(ctx, msg.RoutingKey, msg.Body); err != nil {
		// Requeue once; a message that fails twice is dropped.
		requeue := !msg.Redelivered
		log.WithError(err).WithField("requeue", requeue).Warn("error processing message")
		if nackErr := msg.Nack(false, requeue); nackErr != nil {
			log.WithError(nackErr).Error("error nacking message")
		}
		return
	}

	if ackErr := msg.Ack(false); ackErr != nil {
		log.WithError(ackErr).Error("error acking message")
	}
}
