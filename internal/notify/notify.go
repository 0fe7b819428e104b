// Package notify fans customer notifications out to a message broker after
// they have been stored. Delivery is best effort: the notifications row is
// the durable record.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange is the fanout exchange notification consumers bind to.
const Exchange = "notifications_fanout"

const publishTimeout = 5 * time.Second

// OrderReady is published when staff notifies a customer that an order can
// be collected.
type OrderReady struct {
	NotificationID   uuid.UUID `json:"notification_id"`
	OrderID          uuid.UUID `json:"order_id"`
	UserID           uuid.UUID `json:"user_id"`
	OutletID         uuid.UUID `json:"outlet_id"`
	OrderNumber      string    `json:"order_number"`
	CollectionNumber string    `json:"collection_number"`
	OutletName       string    `json:"outlet_name"`
	Message          string    `json:"message"`
	NotifiedAt       time.Time `json:"notified_at"`
}

// Publisher delivers notification events.
type Publisher interface {
	PublishOrderReady(ctx context.Context, msg OrderReady) error
}

// Noop discards events. Used when no broker is configured.
type Noop struct{}

func (Noop) PublishOrderReady(ctx context.Context, msg OrderReady) error { return nil }

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// AMQPPublisher publishes to Exchange, redialing once when the channel has
// been closed by the broker.
type AMQPPublisher struct {
	url  string
	dial func(url string) (*amqp.Connection, channel, error)

	mu   sync.Mutex
	conn *amqp.Connection
	ch   channel
}

// NewAMQPPublisher connects to url and declares the fanout exchange.
func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, dial: dialAMQP}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func dialAMQP(url string) (*amqp.Connection, channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		Exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	return conn, ch, nil
}

func (p *AMQPPublisher) connect() error {
	conn, ch, err := p.dial(p.url)
	if err != nil {
		return err
	}
	p.conn = conn
	p.ch = ch
	return nil
}

// PublishOrderReady publishes msg as a persistent JSON message.
func (p *AMQPPublisher) PublishOrderReady(ctx context.Context, msg OrderReady) error {
	pub, err := newPublishing("order_ready", msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		log.Printf("WARN: amqp channel closed, reconnecting")
		p.closeLocked()
		if err := p.connect(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx,
		Exchange, // exchange
		"",       // routing key
		false,    // mandatory
		false,    // immediate
		pub,
	)
	if err != nil {
		return fmt.Errorf("publish order_ready for %s: %w", msg.OrderNumber, err)
	}
	return nil
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *AMQPPublisher) closeLocked() error {
	var firstErr error
	if p.ch != nil && !p.ch.IsClosed() {
		if err := p.ch.Close(); err != nil {
			firstErr = fmt.Errorf("close amqp channel: %w", err)
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close amqp connection: %w", err)
		}
	}
	p.ch = nil
	p.conn = nil
	return firstErr
}

func newPublishing(kind string, v any) (amqp.Publishing, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal %s: %w", kind, err)
	}
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Type:         kind,
		Body:         body,
		Timestamp:    time.Now(),
	}, nil
}
