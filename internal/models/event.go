package models

import (
	"fmt"
	"time"
)

// Event types carried on the task_events queue.
const (
	EventTaskCreated     = "task_created"
	EventTaskCompleted   = "task_completed"
	EventTaskUncompleted = "task_uncompleted"
	EventTaskDeleted     = "task_deleted"
)

// TaskSnapshot is the partial task view embedded in an event. Deletes carry
// only the id; other fields are whatever was known at mutation time.
type TaskSnapshot struct {
	ID        int64  `json:"id"`
	Title     string `json:"title,omitempty"`
	Completed *bool  `json:"completed,omitempty"`
}

// Event is the message envelope for task lifecycle events. Immutable once
// constructed; the timestamp is RFC 3339 in UTC.
type Event struct {
	EventType string       `json:"event_type"`
	Task      TaskSnapshot `json:"task"`
	Timestamp string       `json:"timestamp"`
}

// NewEvent builds an event envelope stamped with the current time.
func NewEvent(eventType string, task TaskSnapshot) Event {
	return Event{
		EventType: eventType,
		Task:      task,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// OccurredAt parses the embedded timestamp. ok is false when the field is
// missing or malformed, in which case callers fall back to receive time.
func (e *Event) OccurredAt() (time.Time, bool) {
	if e.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CounterColumn maps an event type to the statistics column it increments.
// task_uncompleted returns an empty column: the day row is still ensured but
// no counter moves, since counters are monotonic within a day.
func CounterColumn(eventType string) (string, error) {
	switch eventType {
	case EventTaskCreated:
		return "tasks_created", nil
	case EventTaskCompleted:
		return "tasks_completed", nil
	case EventTaskUncompleted:
		return "", nil
	case EventTaskDeleted:
		return "tasks_deleted", nil
	default:
		return "", fmt.Errorf("unknown event type %q", eventType)
	}
}
