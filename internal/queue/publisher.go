package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"taskboard/internal/config"
	"taskboard/internal/models"
	"taskboard/pkg/logger"
)

// Publisher sends task lifecycle events to the durable task_events queue.
// It keeps one broker connection alive across publishes and opens a fresh
// channel per message; a broken connection is redialed on the next attempt.
type Publisher struct {
	cfg        *config.Config
	dial       DialFunc
	attempts   int
	retryDelay time.Duration

	mu   sync.Mutex
	conn Connection
}

// NewPublisher returns a publisher wired to the real broker.
func NewPublisher(cfg *config.Config) *Publisher {
	return &Publisher{
		cfg:        cfg,
		dial:       Dial,
		attempts:   config.PublishAttempts,
		retryDelay: config.PublishRetryDelay,
	}
}

// Publish serializes the event and sends it, persistent, to the task events
// queue. It never reports failure to the caller: transient broker errors are
// retried a fixed number of times with a fixed delay, then the event is
// dropped with an error log. The task mutation that triggered the event is
// already committed and is never rolled back here; sustained broker outage
// therefore loses events, which is the documented delivery tradeoff.
func (p *Publisher) Publish(ctx context.Context, eventType string, task models.TaskSnapshot) {
	// The triggering mutation is already committed; a client disconnect
	// must not shrink the event's retry budget.
	ctx = context.WithoutCancel(ctx)
	event := models.NewEvent(eventType, task)
	body, err := json.Marshal(event)
	if err != nil {
		logger.Error(ctx, "Event marshal failed", "error", err, "event_type", eventType)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if lastErr = p.send(ctx, body); lastErr == nil {
			logger.Debug(ctx, "Event published",
				"event_type", eventType, "task_id", task.ID, "attempt", attempt)
			return
		}
		logger.Warn(ctx, "Event publish failed",
			"error", lastErr, "event_type", eventType, "task_id", task.ID,
			"attempt", attempt, "max_attempts", p.attempts)
		if attempt < p.attempts {
			time.Sleep(p.retryDelay)
		}
	}
	logger.Error(ctx, "Event dropped after retries",
		"error", lastErr, "event_type", eventType, "task_id", task.ID,
		"attempts", p.attempts)
}

func (p *Publisher) send(ctx context.Context, body []byte) error {
	conn, err := p.connection()
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		p.dropConnection()
		return err
	}
	defer ch.Close()
	if err := ch.DeclareQueue(p.cfg.EventQueue); err != nil {
		p.dropConnection()
		return err
	}
	if err := ch.Publish(ctx, p.cfg.EventQueue, body); err != nil {
		p.dropConnection()
		return err
	}
	return nil
}

func (p *Publisher) connection() (Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}
	conn, err := p.dial(p.cfg.BrokerURL())
	if err != nil {
		return nil, err
	}
	p.conn = conn
	return conn, nil
}

func (p *Publisher) dropConnection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *Publisher) Close() {
	p.dropConnection()
}
