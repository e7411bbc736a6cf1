// Package events announces changes to users' ledgers.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"expense-ledger/internal/models"

	"github.com/streadway/amqp"
)

// Event types, also used as routing keys.
const (
	ExpenseCreated = "expense.created"
	ExpenseUpdated = "expense.updated"
	ExpenseDeleted = "expense.deleted"
)

// ExpenseEvent describes one committed mutation. Expense is nil for deletes.
type ExpenseEvent struct {
	Type       string          `json:"type"`
	UserID     string          `json:"user_id"`
	ExpenseID  string          `json:"expense_id"`
	Expense    *models.Expense `json:"expense,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ev ExpenseEvent) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(ExpenseEvent) error { return nil }
func (Noop) Close() error               { return nil }

// RabbitMQPublisher publishes JSON events to a topic exchange.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	mu       sync.Mutex
}

// NewRabbitMQPublisher connects and declares a durable topic exchange.
func NewRabbitMQPublisher(url, exchange string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &RabbitMQPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// Message builds the AMQP message for an event.
func Message(ev ExpenseEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Type:         ev.Type,
		Body:         body,
	}, nil
}

func (p *RabbitMQPublisher) Publish(ev ExpenseEvent) error {
	msg, err := Message(ev)
	if err != nil {
		return err
	}
	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Publish(p.exchange, ev.Type, false, false, msg); err != nil {
		return err
	}
	slog.Debug("event published", "type", ev.Type, "uid", ev.UserID, "id", ev.ExpenseID)
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.channel.Close()
	return p.conn.Close()
}

// New returns a RabbitMQ publisher, or Noop when url is empty.
func New(url, exchange string) (Publisher, error) {
	if url == "" {
		return Noop{}, nil
	}
	p, err := NewRabbitMQPublisher(url, exchange)
	if err != nil {
		return nil, err
	}
	return p, nil
}
