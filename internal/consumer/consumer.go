package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"taskboard/internal/config"
	"taskboard/internal/models"
	"taskboard/internal/repository"
	"taskboard/pkg/logger"
)

const consumerTag = "taskboard-stats"

// StatsSink receives the per-event statistics updates.
type StatsSink interface {
	EnsureDay(ctx context.Context, day time.Time) error
	IncrementDay(ctx context.Context, day time.Time, column string) error
}

type repositorySink struct{}

func (repositorySink) EnsureDay(ctx context.Context, day time.Time) error {
	return repository.EnsureDay(ctx, day)
}

func (repositorySink) IncrementDay(ctx context.Context, day time.Time, column string) error {
	return repository.IncrementDay(ctx, day, column)
}

// Consumer folds task lifecycle events from the durable queue into daily
// statistics. One message in flight at a time (prefetch 1); a message is
// acknowledged only after its statistics update committed. Redelivery of an
// already-processed message double-counts: delivery is at-least-once and
// counting is not deduplicated, by design.
type Consumer struct {
	cfg   *config.Config
	stats StatsSink
	now   func() time.Time
}

// New returns a consumer writing to the statistics repository.
func New(cfg *config.Config) *Consumer {
	return &Consumer{cfg: cfg, stats: repositorySink{}, now: time.Now}
}

// Run connects to the broker and consumes until ctx is canceled. Connection
// failure at startup is retried a bounded number of times, then returned as
// an error; the process should exit non-zero on it. On cancelation the
// in-flight message is finished and acknowledged before Run returns nil.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	for _, q := range []string{c.cfg.EventQueue, c.cfg.DeadQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(c.cfg.EventQueue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	// Cancel the subscription on shutdown; the broker stops sending, the
	// range below drains what is already in flight, then exits. done keeps
	// the watcher from leaking when Run returns for any other reason.
	done := make(chan struct{})
	defer close(done)
	go cancelOnShutdown(ctx, done, func() error {
		return ch.Cancel(consumerTag, false)
	})

	logger.Info(ctx, "Consumer started", "queue", c.cfg.EventQueue)
	dead := amqpDeadLetter{ch: ch}
	for d := range deliveries {
		c.handleDelivery(ctx, dead, d)
	}
	if ctx.Err() != nil {
		logger.Info(ctx, "Consumer stopped")
		return nil
	}
	return errors.New("consumer channel closed unexpectedly")
}

// cancelOnShutdown cancels the broker subscription when ctx ends. It exits
// without canceling when done closes first, so Run returning on a closed
// deliveries channel does not strand the goroutine.
func cancelOnShutdown(ctx context.Context, done <-chan struct{}, cancel func() error) {
	select {
	case <-ctx.Done():
		_ = cancel()
	case <-done:
	}
}

// deadLetterPublisher sends an unprocessable message body to the dead-letter
// queue.
type deadLetterPublisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

type amqpDeadLetter struct {
	ch *amqp.Channel
}

func (p amqpDeadLetter) Publish(ctx context.Context, queue string, body []byte) error {
	return p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// handleDelivery applies one message and settles it. First processing
// failure requeues via nack; a failure on a redelivered message moves the
// body to the dead-letter queue instead, so a poison message makes exactly
// two attempts. A failed dead-letter publish falls back to nack-requeue so
// the message is never lost while unsettled.
func (c *Consumer) handleDelivery(ctx context.Context, dead deadLetterPublisher, d amqp.Delivery) {
	// Shutdown cancels ctx while a message may still be in flight; its
	// statistics write must run to completion so the ack is truthful.
	ctx = context.WithoutCancel(ctx)
	err := c.process(ctx, d.Body)
	if err == nil {
		if aerr := d.Ack(false); aerr != nil {
			logger.Error(ctx, "Ack failed", "error", aerr)
		}
		return
	}

	logger.Error(ctx, "Message processing failed",
		"error", err, "redelivered", d.Redelivered, "payload", string(d.Body))
	if !d.Redelivered {
		if nerr := d.Nack(false, true); nerr != nil {
			logger.Error(ctx, "Nack failed", "error", nerr)
		}
		return
	}

	if derr := dead.Publish(ctx, c.cfg.DeadQueue, d.Body); derr != nil {
		logger.Error(ctx, "Dead-letter publish failed, requeueing", "error", derr)
		_ = d.Nack(false, true)
		return
	}
	logger.Warn(ctx, "Message dead-lettered", "queue", c.cfg.DeadQueue)
	_ = d.Ack(false)
}

// process parses the event and applies the statistics update. The day is
// taken from the event's own timestamp (event-time attribution); a missing
// or malformed timestamp falls back to the delivery wall clock.
func (c *Consumer) process(ctx context.Context, body []byte) error {
	var event models.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("parse event: %w", err)
	}
	column, err := models.CounterColumn(event.EventType)
	if err != nil {
		return err
	}
	day, ok := event.OccurredAt()
	if !ok {
		day = c.now()
	}
	day = day.UTC()

	logger.Info(ctx, "Event received",
		"event_type", event.EventType, "task_id", event.Task.ID,
		"date", day.Format("2006-01-02"))

	if err := c.stats.EnsureDay(ctx, day); err != nil {
		return fmt.Errorf("ensure statistics row: %w", err)
	}
	if column == "" {
		return nil
	}
	if err := c.stats.IncrementDay(ctx, day, column); err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	return nil
}

func (c *Consumer) connect(ctx context.Context) (*amqp.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= config.ConsumerConnectAttempts; attempt++ {
		conn, err := amqp.Dial(c.cfg.BrokerURL())
		if err == nil {
			logger.Info(ctx, "Connected to broker", "host", c.cfg.BrokerHost)
			return conn, nil
		}
		lastErr = err
		logger.Warn(ctx, "Broker connection failed",
			"attempt", attempt, "max_attempts", config.ConsumerConnectAttempts, "error", err)
		if attempt < config.ConsumerConnectAttempts {
			select {
			case <-time.After(config.ConsumerConnectDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("connect to broker after %d attempts: %w",
		config.ConsumerConnectAttempts, lastErr)
}
