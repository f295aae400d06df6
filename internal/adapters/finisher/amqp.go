// Package finisher notifies the downstream consumer that a job reached a terminal state.
package finisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/interop/jobgather/internal/core"
)

// Message is the body of a "job finished" notification.
type Message struct {
	JobID      string    `json:"job_id"`
	FinishedAt time.Time `json:"finished_at"`
}

// PublishChannel is the subset of *amqp.Channel the publisher uses.
type PublishChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPOptions configures AMQPPublisher.
type AMQPOptions struct {
	Open       func() (PublishChannel, error)
	Exchange   string
	RoutingKey string
	Now        func() time.Time
}

// AMQPPublisher publishes persistent "job finished" messages to a topic exchange.
// The channel is opened lazily and reopened after a failed publish.
type AMQPPublisher struct {
	open       func() (PublishChannel, error)
	exchange   string
	routingKey string
	now        func() time.Time

	mu sync.Mutex
	ch PublishChannel
}

var _ core.Finisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher validates options and returns a publisher.
func NewAMQPPublisher(opts AMQPOptions) (*AMQPPublisher, error) {
	if opts.Open == nil {
		return nil, errors.New("channel opener is required")
	}
	if strings.TrimSpace(opts.Exchange) == "" {
		return nil, errors.New("exchange is required")
	}
	p := &AMQPPublisher{
		open:       opts.Open,
		exchange:   strings.TrimSpace(opts.Exchange),
		routingKey: opts.RoutingKey,
		now:        opts.Now,
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// NotifyJobFinished publishes one message for jobID.
func (p *AMQPPublisher) NotifyJobFinished(ctx context.Context, jobID string) error {
	at := p.now().UTC()
	body, err := json.Marshal(Message{JobID: jobID, FinishedAt: at})
	if err != nil {
		return fmt.Errorf("encode finished message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    jobID,
		Timestamp:    at,
		Body:         body,
	})
	if err != nil {
		_ = ch.Close()
		p.ch = nil
		return fmt.Errorf("publish job finished: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) channelLocked() (PublishChannel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	ch, err := p.open()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.ch = ch
	return ch, nil
}

// Close releases the channel.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
