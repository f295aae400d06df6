// Package eventbus delivers "unit finished" events to the result ingestor.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/domain/model"
)

// ErrDeliveriesClosed is returned when the broker closes the delivery stream.
var ErrDeliveriesClosed = errors.New("amqp delivery channel closed")

// Channel is the subset of *amqp.Channel the bus uses.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(
		queue, consumer string,
		autoAck, exclusive, noLocal, noWait bool,
		args amqp.Table,
	) (<-chan amqp.Delivery, error)
	Close() error
}

// ChannelOpener returns a fresh channel. It is called again after the broker drops the previous one.
type ChannelOpener func() (Channel, error)

// AMQPBusOptions configures AMQPBus.
type AMQPBusOptions struct {
	Open       ChannelOpener
	Exchange   string
	Queue      string
	RoutingKey string
	// Prefetch bounds unacknowledged deliveries held by this consumer.
	Prefetch int
	// Concurrency is the number of deliveries handled in parallel.
	Concurrency    int
	ConsumerTag    string
	ReconnectDelay time.Duration
	Logger         *slog.Logger
}

// AMQPBus consumes unit events from a durable RabbitMQ queue with manual acknowledgements.
// Handler errors nack with requeue; undecodable bodies are dropped.
type AMQPBus struct {
	open           ChannelOpener
	exchange       string
	queue          string
	routingKey     string
	prefetch       int
	concurrency    int
	consumerTag    string
	reconnectDelay time.Duration
	logger         *slog.Logger
}

var _ core.EventBus = (*AMQPBus)(nil)

// NewAMQPBus validates options and returns a bus. No broker calls happen until Subscribe.
func NewAMQPBus(opts AMQPBusOptions) (*AMQPBus, error) {
	if opts.Open == nil {
		return nil, errors.New("channel opener is required")
	}
	if strings.TrimSpace(opts.Queue) == "" {
		return nil, errors.New("queue is required")
	}
	b := &AMQPBus{
		open:           opts.Open,
		exchange:       strings.TrimSpace(opts.Exchange),
		queue:          strings.TrimSpace(opts.Queue),
		routingKey:     opts.RoutingKey,
		prefetch:       max(opts.Prefetch, 1),
		concurrency:    max(opts.Concurrency, 1),
		consumerTag:    opts.ConsumerTag,
		reconnectDelay: opts.ReconnectDelay,
		logger:         opts.Logger,
	}
	if b.reconnectDelay <= 0 {
		b.reconnectDelay = 2 * time.Second
	}
	if b.logger == nil {
		b.logger = slog.New(slog.DiscardHandler)
	}
	b.logger = b.logger.With("component", "amqp_bus", "queue", b.queue)
	return b, nil
}

// Subscribe consumes until ctx is canceled, reopening the channel after broker failures.
func (b *AMQPBus) Subscribe(ctx context.Context, handler core.UnitEventHandler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	for {
		err := b.consume(ctx, handler)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		b.logger.WarnContext(ctx, "amqp consumer stopped, reconnecting",
			"error", err,
			"delay", b.reconnectDelay,
		)
		timer := time.NewTimer(b.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *AMQPBus) consume(ctx context.Context, handler core.UnitEventHandler) error {
	ch, err := b.open()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() {
		if closeErr := ch.Close(); closeErr != nil && !errors.Is(closeErr, amqp.ErrClosed) {
			b.logger.Debug("close amqp channel", "error", closeErr)
		}
	}()

	if err := b.declare(ch); err != nil {
		return err
	}
	deliveries, err := ch.Consume(b.queue, b.consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", b.queue, err)
	}
	b.logger.InfoContext(ctx, "amqp consumer started", "prefetch", b.prefetch, "concurrency", b.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for range b.concurrency {
		g.Go(func() error { return b.work(gctx, deliveries, handler) })
	}
	return g.Wait()
}

func (b *AMQPBus) declare(ch Channel) error {
	if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", b.queue, err)
	}
	if b.exchange != "" {
		if err := ch.ExchangeDeclare(b.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", b.exchange, err)
		}
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	if err := ch.Qos(b.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

func (b *AMQPBus) work(ctx context.Context, deliveries <-chan amqp.Delivery, handler core.UnitEventHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			b.dispatch(ctx, d, handler)
		}
	}
}

func (b *AMQPBus) dispatch(ctx context.Context, d amqp.Delivery, handler core.UnitEventHandler) {
	log := b.logger.With("delivery_tag", d.DeliveryTag, "redelivered", d.Redelivered)

	var ev model.UnitEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		log.WarnContext(ctx, "dropping undecodable unit event", "error", err, "message_id", d.MessageId)
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.ErrorContext(ctx, "nack failed", "error", nackErr)
		}
		return
	}

	if err := handler(ctx, ev); err != nil {
		log.WarnContext(ctx, "unit event handler failed, requeueing",
			"error", err,
			"job_id", ev.JobID,
			"unit_ref", ev.UnitRef,
		)
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.ErrorContext(ctx, "nack failed", "error", nackErr)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		log.ErrorContext(ctx, "ack failed", "error", err)
	}
}

// Connector owns one AMQP connection and redials it when the broker closed it.
type Connector struct {
	url  string
	dial func(url string) (*amqp.Connection, error)

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewConnector returns a Connector for url. The first dial happens on the first Channel call.
func NewConnector(url string) *Connector {
	return &Connector{url: url, dial: amqp.Dial}
}

// Connect dials eagerly so startup fails fast on bad credentials.
func (c *Connector) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.connLocked()
	return err
}

func (c *Connector) connLocked() (*amqp.Connection, error) {
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}
	conn, err := c.dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	c.conn = conn
	return conn, nil
}

// Channel opens a new channel, redialing first if needed.
func (c *Connector) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, err := c.connLocked()
	if err != nil {
		return nil, err
	}
	return conn.Channel()
}

// Opener adapts Channel to a ChannelOpener.
func (c *Connector) Opener() ChannelOpener {
	return func() (Channel, error) {
		ch, err := c.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
}

// Close closes the current connection, if any.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

// Check reports whether the current connection is open. It never dials.
func (c *Connector) Check(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("amqp connection is closed")
	}
	return nil
}
