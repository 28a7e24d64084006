package queue

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection is the slice of an AMQP connection the publisher needs.
type Connection interface {
	Channel() (Channel, error)
	Close() error
	IsClosed() bool
}

// Channel is a short-lived publishing channel.
type Channel interface {
	DeclareQueue(name string) error
	Publish(ctx context.Context, queue string, body []byte) error
	Close() error
}

// DialFunc opens a broker connection.
type DialFunc func(url string) (Connection, error)

// Dial opens a real AMQP connection.
func Dial(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &amqpChannel{ch: ch}, nil
}

func (c *amqpConnection) Close() error { return c.conn.Close() }

func (c *amqpConnection) IsClosed() bool { return c.conn.IsClosed() }

type amqpChannel struct {
	ch *amqp.Channel
}

// DeclareQueue declares the queue as durable. Declaration is idempotent on
// the broker side, so every publish path can call it.
func (c *amqpChannel) DeclareQueue(name string) error {
	_, err := c.ch.QueueDeclare(name, true, false, false, false, nil)
	return err
}

// Publish sends a persistent JSON message to the queue via the default
// exchange.
func (c *amqpChannel) Publish(ctx context.Context, queue string, body []byte) error {
	return c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (c *amqpChannel) Close() error { return c.ch.Close() }
