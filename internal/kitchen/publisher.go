// Package kitchen feeds placed orders and status changes to the kitchen
// display over RabbitMQ.
package kitchen

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/xenking/matcha-bar/internal/codec"
	"github.com/xenking/matcha-bar/internal/domain/order"
)

const (
	// Exchange is the topic exchange orders are published to.
	Exchange = "kitchen.orders"
	// RoutingPlaced is the routing key of new orders.
	RoutingPlaced = "order.placed"
	// RoutingStatus is the routing key of status changes.
	RoutingStatus = "order.status"
	// Queue is the durable queue the kitchen display consumes.
	Queue = "kitchen.orders.q"
)

// Channel is the subset of *amqp.Channel used by Publisher.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Confirm(noWait bool) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher implements order.Publisher.
type Publisher struct {
	mu sync.Mutex
	ch Channel
}

// NewPublisher declares the exchange, the kitchen queue and its bindings,
// then enables publisher confirms.
func NewPublisher(ch Channel) (*Publisher, error) {
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, errors.Wrap(err, "declare exchange")
	}
	q, err := ch.QueueDeclare(Queue, true, false, false, false, nil)
	if err != nil {
		return nil, errors.Wrap(err, "declare queue")
	}
	for _, key := range []string{RoutingPlaced, RoutingStatus} {
		if err := ch.QueueBind(q.Name, key, Exchange, false, nil); err != nil {
			return nil, errors.Wrapf(err, "bind %s", key)
		}
	}
	if err := ch.Confirm(false); err != nil {
		return nil, errors.Wrap(err, "enable confirm mode")
	}
	return &Publisher{ch: ch}, nil
}

// PublishPlaced sends the full order.
func (p *Publisher) PublishPlaced(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, RoutingPlaced, o.Code, codec.MarshalOrder(o))
}

// PublishStatusChanged sends {code, status, at}.
func (p *Publisher) PublishStatusChanged(ctx context.Context, code string, status order.Status) error {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Str(code) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(status)) })
		e.Field("at", func(e *jx.Encoder) { e.Str(time.Now().UTC().Format(time.RFC3339)) })
	})
	return p.publish(ctx, RoutingStatus, code, e.Bytes())
}

func (p *Publisher) publish(ctx context.Context, key, code string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, Exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    code,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return errors.Wrapf(err, "publish %s", key)
	}
	if dc == nil {
		return nil
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "confirm %s", key)
	}
	if !acked {
		return errors.Errorf("broker nacked %s for %s", key, code)
	}
	return nil
}

// Conn owns the broker connection behind a Publisher.
type Conn struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to url and opens a channel.
func Dial(url string) (*Conn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	return &Conn{conn: conn, ch: ch}, nil
}

// Channel returns the open channel.
func (c *Conn) Channel() *amqp.Channel {
	return c.ch
}

// Ping fails when the connection has been closed.
func (c *Conn) Ping(context.Context) error {
	if c.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close closes the channel and the connection.
func (c *Conn) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

// LogPublisher stands in for the broker when none is configured: events are
// only logged and the kitchen board reads from the store.
type LogPublisher struct {
	lg *zap.Logger
}

var _ order.Publisher = LogPublisher{}

// NewLogPublisher returns a LogPublisher.
func NewLogPublisher(lg *zap.Logger) LogPublisher {
	return LogPublisher{lg: lg}
}

func (p LogPublisher) PublishPlaced(_ context.Context, o *order.Order) error {
	p.lg.Info("Order placed", zap.String("code", o.Code), zap.String("total", o.Total.StringFixed(2)))
	return nil
}

func (p LogPublisher) PublishStatusChanged(_ context.Context, code string, status order.Status) error {
	p.lg.Info("Order status", zap.String("code", code), zap.String("status", string(status)))
	return nil
}
