package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange receives all interview events
const DefaultExchange = "rehearse.events"

var ErrClosed = errors.New("publisher closed")

// AMQPPublisher publishes events to a durable topic exchange and reconnects
// with exponential backoff when the broker drops the connection.
type AMQPPublisher struct {
	url      string
	exchange string
	logger   *slog.Logger

	mu         sync.RWMutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	closed     bool
	reconnects int
	done       chan struct{}
}

// NewAMQPPublisher dials the broker and declares the exchange
func NewAMQPPublisher(rawURL, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &AMQPPublisher{
		url:      rawURL,
		exchange: exchange,
		logger:   logger,
		done:     make(chan struct{}),
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	p.channel = ch

	go p.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))

	p.logger.Info("connected to RabbitMQ", "url", sanitizeURL(p.url), "exchange", p.exchange)
	return nil
}

// watch reconnects after an unexpected close
func (p *AMQPPublisher) watch(notify chan *amqp.Error) {
	var amqpErr *amqp.Error
	select {
	case amqpErr = <-notify:
	case <-p.done:
		return
	}
	if amqpErr == nil {
		return
	}

	p.logger.Warn("RabbitMQ connection closed, reconnecting", "error", amqpErr)

	for attempt := 0; attempt < 10; attempt++ {
		backoff := time.Duration(1<<attempt) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		select {
		case <-time.After(backoff):
		case <-p.done:
			return
		}

		p.mu.Lock()
		p.reconnects++
		p.mu.Unlock()

		if err := p.connect(); err != nil {
			p.logger.Error("reconnection failed", "error", err, "attempt", attempt+1)
			continue
		}
		p.logger.Info("reconnected to RabbitMQ", "attempts", attempt+1)
		return
	}

	p.logger.Error("giving up on RabbitMQ after 10 attempts")
}

// Publish sends e to the exchange with its type as routing key
func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.RLock()
	ch, closed := p.channel, p.closed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if ch == nil || ch.IsClosed() {
		return fmt.Errorf("publish %s: channel unavailable", e.Type)
	}

	err = ch.PublishWithContext(ctx,
		p.exchange,
		string(e.Type),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.ID,
			Timestamp:    e.OccurredAt,
			Type:         string(e.Type),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Connected reports whether the underlying connection is open
func (p *AMQPPublisher) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn != nil && !p.conn.IsClosed()
}

// Close stops reconnection and closes the connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// sanitizeURL drops credentials so the URL can be logged
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.Redacted()
}
