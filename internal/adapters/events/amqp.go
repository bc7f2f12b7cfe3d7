// Package events publishes job lifecycle events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/target/report-runner/internal/core"
	"github.com/target/report-runner/internal/domain/model"
)

// ErrExchangeRequired is returned when no exchange name is configured.
var ErrExchangeRequired = errors.New("events: exchange name is required")

var _ core.EventPublisher = (*Publisher)(nil)

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Options configures a Publisher.
type Options struct {
	URL      string
	Exchange string
	// Kind is the exchange type; the legacy queue block's type is passed through here.
	Kind    string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Publisher sends JobEvent messages to a durable exchange, routed by event type.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	timeout  time.Duration
	logger   *slog.Logger
}

// Dial connects to the broker, opens a channel and declares the exchange.
func Dial(opts Options) (*Publisher, error) {
	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := newPublisher(ch, opts)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, opts Options) (*Publisher, error) {
	exchange := strings.TrimSpace(opts.Exchange)
	if exchange == "" {
		return nil, ErrExchangeRequired
	}
	kind := exchangeKind(opts.Kind)
	if err := ch.ExchangeDeclare(exchange, kind, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := &Publisher{ch: ch, exchange: exchange, timeout: opts.Timeout, logger: opts.Logger}
	if p.timeout <= 0 {
		p.timeout = 5 * time.Second
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "events", "exchange", exchange)
	return p, nil
}

// exchangeKind maps the descriptor's queue type to an AMQP exchange type.
func exchangeKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case amqp.ExchangeDirect, amqp.ExchangeFanout, amqp.ExchangeHeaders:
		return strings.ToLower(strings.TrimSpace(kind))
	default:
		return amqp.ExchangeTopic
	}
}

// Publish sends evt as a persistent JSON message with the event type as routing key.
func (p *Publisher) Publish(ctx context.Context, evt model.JobEvent) error {
	if evt.ID == uuid.Nil {
		return errors.New("events: event id is required")
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, p.exchange, string(evt.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID.String(),
		Timestamp:    evt.OccurredAt,
		Type:         string(evt.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", p.exchange, evt.Type, err)
	}

	p.logger.DebugContext(ctx, "published event",
		"routing_key", evt.Type,
		"message_id", evt.ID,
		"job_id", evt.JobID,
	)
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
