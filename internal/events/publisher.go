// Package events publishes visit lifecycle events to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pkordes/homecare/internal/domain"
)

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends each VisitEvent as a persistent JSON message whose routing
// key is the event type (visit.released, visit.matched, ...).
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	log      *slog.Logger
}

// Dial connects to url, retrying with exponential backoff until attempts run
// out or ctx is done, then declares exchange as a durable topic exchange.
func Dial(ctx context.Context, url, exchange string, attempts int, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}
	var (
		conn *amqp.Connection
		err  error
	)
	backoff := 500 * time.Millisecond
	for i := 1; i <= attempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.WarnContext(ctx, "rabbitmq connect failed", "attempt", i, "error", err)
		if i == attempts {
			return nil, fmt.Errorf("events.Dial: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("events.Dial: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if conn == nil {
		return nil, fmt.Errorf("events.Dial: no connection attempts made")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events.Dial: open channel: %w", err)
	}
	p, err := newPublisher(ch, exchange, log)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events.Dial: %w", err)
	}
	p.conn = conn
	log.InfoContext(ctx, "connected to rabbitmq", "exchange", exchange)
	return p, nil
}

func newPublisher(ch channel, exchange string, log *slog.Logger) (*Publisher, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return &Publisher{ch: ch, exchange: exchange, log: log}, nil
}

// Publish implements service.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, ev domain.VisitEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events.Publisher.Publish: marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.VisitID.String() + ":" + string(ev.Type),
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("events.Publisher.Publish: %w", err)
	}
	p.log.DebugContext(ctx, "event published", "type", ev.Type, "visit_id", ev.VisitID)
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		return fmt.Errorf("events.Publisher.Close: channel: %w", err)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("events.Publisher.Close: connection: %w", err)
		}
	}
	return nil
}

// Noop discards events. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, domain.VisitEvent) error { return nil }
