package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/config"
	"taskboard/internal/models"
)

type fakeSink struct {
	ensured     []string
	ensureCalls int
	counters    map[string]int
	ensureErr   error
	incErr      error
}

func newFakeSink() *fakeSink {
	return &fakeSink{counters: map[string]int{}}
}

func (f *fakeSink) EnsureDay(_ context.Context, day time.Time) error {
	f.ensureCalls++
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.ensured = append(f.ensured, day.Format("2006-01-02"))
	return nil
}

func (f *fakeSink) IncrementDay(_ context.Context, day time.Time, column string) error {
	if f.incErr != nil {
		return f.incErr
	}
	f.counters[day.Format("2006-01-02")+"/"+column]++
	return nil
}

func testConsumer(sink *fakeSink) *Consumer {
	return &Consumer{
		cfg:   config.Load(),
		stats: sink,
		now:   func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) },
	}
}

func eventBody(t *testing.T, eventType, timestamp string, id int64) []byte {
	t.Helper()
	b, err := json.Marshal(models.Event{
		EventType: eventType,
		Task:      models.TaskSnapshot{ID: id},
		Timestamp: timestamp,
	})
	require.NoError(t, err)
	return b
}

func TestProcessIncrementsCounter(t *testing.T) {
	sink := newFakeSink()
	c := testConsumer(sink)

	body := eventBody(t, models.EventTaskCreated, "2024-03-08T23:30:00Z", 1)
	require.NoError(t, c.process(context.Background(), body))

	assert.Equal(t, []string{"2024-03-08"}, sink.ensured, "day row ensured before increment")
	assert.Equal(t, 1, sink.counters["2024-03-08/tasks_created"])
}

func TestProcessEventTimeAttribution(t *testing.T) {
	// The event happened yesterday; a backlogged consumer must still count
	// it on the day it occurred, not the day it was processed.
	sink := newFakeSink()
	c := testConsumer(sink)

	body := eventBody(t, models.EventTaskCompleted, "2024-03-08T10:00:00Z", 2)
	require.NoError(t, c.process(context.Background(), body))

	assert.Equal(t, 1, sink.counters["2024-03-08/tasks_completed"])
	assert.Zero(t, sink.counters["2024-03-09/tasks_completed"])
}

func TestProcessFallsBackToReceiveTime(t *testing.T) {
	sink := newFakeSink()
	c := testConsumer(sink)

	body := eventBody(t, models.EventTaskDeleted, "not-a-timestamp", 3)
	require.NoError(t, c.process(context.Background(), body))

	assert.Equal(t, 1, sink.counters["2024-03-09/tasks_deleted"])
}

func TestProcessMalformedPayload(t *testing.T) {
	sink := newFakeSink()
	c := testConsumer(sink)

	err := c.process(context.Background(), []byte("{not json"))
	require.Error(t, err)
	assert.Empty(t, sink.ensured, "no statistics writes on parse failure")
}

func TestProcessUnknownEventType(t *testing.T) {
	sink := newFakeSink()
	c := testConsumer(sink)

	err := c.process(context.Background(), eventBody(t, "task_exploded", "2024-03-09T00:00:00Z", 4))
	require.Error(t, err)
	assert.Empty(t, sink.ensured)
}

func TestProcessUncompletedTouchesNoCounter(t *testing.T) {
	sink := newFakeSink()
	c := testConsumer(sink)

	require.NoError(t, c.process(context.Background(),
		eventBody(t, models.EventTaskUncompleted, "2024-03-09T00:00:00Z", 5)))

	assert.Len(t, sink.ensured, 1, "day row still ensured")
	assert.Empty(t, sink.counters, "counters are monotonic; uncompleting moves nothing")
}

func TestProcessRedeliveryDoubleCounts(t *testing.T) {
	// At-least-once delivery without exactly-once counting: the same
	// message processed twice counts twice. Documented behavior, not a bug.
	sink := newFakeSink()
	c := testConsumer(sink)

	body := eventBody(t, models.EventTaskCreated, "2024-03-09T08:00:00Z", 6)
	require.NoError(t, c.process(context.Background(), body))
	require.NoError(t, c.process(context.Background(), body))

	assert.Equal(t, 2, sink.counters["2024-03-09/tasks_created"])
}

func TestProcessCreateThenDelete(t *testing.T) {
	sink := newFakeSink()
	c := testConsumer(sink)

	require.NoError(t, c.process(context.Background(),
		eventBody(t, models.EventTaskCreated, "2024-03-09T08:00:00Z", 7)))
	require.NoError(t, c.process(context.Background(),
		eventBody(t, models.EventTaskDeleted, "2024-03-09T08:01:00Z", 7)))

	assert.Equal(t, 1, sink.counters["2024-03-09/tasks_created"])
	assert.Equal(t, 1, sink.counters["2024-03-09/tasks_deleted"])
}

type fakeAcknowledger struct {
	acks     int
	nacks    int
	requeues []bool
}

func (f *fakeAcknowledger) Ack(_ uint64, _ bool) error { f.acks++; return nil }

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacks++
	f.requeues = append(f.requeues, requeue)
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, _ bool) error { return nil }

type fakeDeadLetter struct {
	queues []string
	bodies [][]byte
	err    error
}

func (f *fakeDeadLetter) Publish(_ context.Context, queue string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.queues = append(f.queues, queue)
	f.bodies = append(f.bodies, body)
	return nil
}

func delivery(ack amqp.Acknowledger, body []byte, redelivered bool) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Redelivered:  redelivered,
		Body:         body,
	}
}

func TestHandleDeliveryAcksAfterCommit(t *testing.T) {
	sink := newFakeSink()
	c := testConsumer(sink)
	ack := &fakeAcknowledger{}
	dead := &fakeDeadLetter{}

	body := eventBody(t, models.EventTaskCreated, "2024-03-09T08:00:00Z", 1)
	c.handleDelivery(context.Background(), dead, delivery(ack, body, false))

	assert.Equal(t, 1, sink.counters["2024-03-09/tasks_created"])
	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
	assert.Empty(t, dead.bodies)
}

func TestHandleDeliveryNacksFirstFailure(t *testing.T) {
	sink := newFakeSink()
	c := testConsumer(sink)
	ack := &fakeAcknowledger{}
	dead := &fakeDeadLetter{}

	c.handleDelivery(context.Background(), dead, delivery(ack, []byte("{not json"), false))

	assert.Zero(t, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.Equal(t, []bool{true}, ack.requeues, "first failure requeues for redelivery")
	assert.Empty(t, dead.bodies)
}

func TestHandleDeliveryDeadLettersRedeliveredFailure(t *testing.T) {
	sink := newFakeSink()
	c := testConsumer(sink)
	ack := &fakeAcknowledger{}
	dead := &fakeDeadLetter{}

	body := []byte("{not json")
	c.handleDelivery(context.Background(), dead, delivery(ack, body, true))

	require.Len(t, dead.bodies, 1)
	assert.Equal(t, body, dead.bodies[0])
	assert.Equal(t, []string{c.cfg.DeadQueue}, dead.queues)
	assert.Equal(t, 1, ack.acks, "dead-lettered message is acked off the main queue")
	assert.Zero(t, ack.nacks)
}

func TestHandleDeliveryRequeuesWhenDeadLetterFails(t *testing.T) {
	sink := newFakeSink()
	c := testConsumer(sink)
	ack := &fakeAcknowledger{}
	dead := &fakeDeadLetter{err: errors.New("broker gone")}

	c.handleDelivery(context.Background(), dead, delivery(ack, []byte("{not json"), true))

	assert.Zero(t, ack.acks, "message stays unsettled until it lands somewhere durable")
	assert.Equal(t, 1, ack.nacks)
	assert.Equal(t, []bool{true}, ack.requeues)
}

func TestPoisonMessageMakesTwoAttempts(t *testing.T) {
	sink := newFakeSink()
	sink.ensureErr = errors.New("statistics store down")
	c := testConsumer(sink)
	ack := &fakeAcknowledger{}
	dead := &fakeDeadLetter{}

	// First delivery fails and is requeued; the broker redelivers, the
	// second failure dead-letters. Two processing attempts, never a third.
	body := eventBody(t, models.EventTaskCreated, "2024-03-09T08:00:00Z", 9)
	c.handleDelivery(context.Background(), dead, delivery(ack, body, false))
	c.handleDelivery(context.Background(), dead, delivery(ack, body, true))

	assert.Equal(t, 2, sink.ensureCalls)
	assert.Equal(t, 1, ack.nacks)
	assert.Equal(t, 1, ack.acks)
	assert.Len(t, dead.bodies, 1)
}

func TestCancelOnShutdown(t *testing.T) {
	// ctx cancel triggers the subscription cancel.
	ctx, cancel := context.WithCancel(context.Background())
	canceled := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		cancelOnShutdown(ctx, make(chan struct{}), func() error {
			close(canceled)
			return nil
		})
		close(finished)
	}()
	cancel()
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("subscription was not canceled on shutdown")
	}
	<-finished

	// Run returning (done closed) releases the watcher without canceling.
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		cancelOnShutdown(context.Background(), done, func() error {
			t.Error("cancel must not fire when the consumer loop already ended")
			return nil
		})
		close(exited)
	}()
	close(done)
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("shutdown watcher leaked")
	}
}

func TestProcessStoreFailurePropagates(t *testing.T) {
	sink := newFakeSink()
	sink.incErr = errors.New("statistics store down")
	c := testConsumer(sink)

	err := c.process(context.Background(),
		eventBody(t, models.EventTaskCreated, "2024-03-09T08:00:00Z", 8))
	require.Error(t, err, "failed statistics write must not be acknowledged")

	sink.ensureErr = errors.New("statistics store down")
	err = c.process(context.Background(),
		eventBody(t, models.EventTaskCreated, "2024-03-09T08:00:00Z", 8))
	require.Error(t, err)
}
