package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventWireFormat(t *testing.T) {
	completed := false
	event := NewEvent(EventTaskCreated, TaskSnapshot{ID: 12, Title: "buy milk", Completed: &completed})

	b, err := json.Marshal(event)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Contains(t, raw, "event_type")
	assert.Contains(t, raw, "task")
	assert.Contains(t, raw, "timestamp")

	occurred, ok := event.OccurredAt()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().UTC(), occurred, time.Minute)
}

func TestDeleteSnapshotCarriesOnlyID(t *testing.T) {
	b, err := json.Marshal(NewEvent(EventTaskDeleted, TaskSnapshot{ID: 9}))
	require.NoError(t, err)

	var raw struct {
		Task map[string]json.RawMessage `json:"task"`
	}
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Contains(t, raw.Task, "id")
	assert.NotContains(t, raw.Task, "title")
	assert.NotContains(t, raw.Task, "completed")
}

func TestOccurredAtFallback(t *testing.T) {
	for _, ts := range []string{"", "yesterday", "2024-13-99T00:00:00Z"} {
		e := Event{EventType: EventTaskCreated, Timestamp: ts}
		_, ok := e.OccurredAt()
		assert.False(t, ok, "timestamp %q should not parse", ts)
	}
}

func TestCounterColumn(t *testing.T) {
	cases := []struct {
		eventType string
		column    string
	}{
		{EventTaskCreated, "tasks_created"},
		{EventTaskCompleted, "tasks_completed"},
		{EventTaskUncompleted, ""},
		{EventTaskDeleted, "tasks_deleted"},
	}
	for _, tc := range cases {
		column, err := CounterColumn(tc.eventType)
		require.NoError(t, err, tc.eventType)
		assert.Equal(t, tc.column, column, tc.eventType)
	}

	_, err := CounterColumn("task_renamed")
	assert.Error(t, err)
}

func TestTaskSnapshotReflectsCompletion(t *testing.T) {
	now := time.Now()
	task := Task{ID: 3, Title: "done thing", Completed: true, CreatedAt: now, CompletedAt: &now}
	snap := task.Snapshot()
	assert.Equal(t, int64(3), snap.ID)
	require.NotNil(t, snap.Completed)
	assert.True(t, *snap.Completed)
}
