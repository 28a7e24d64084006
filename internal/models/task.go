package models

import "time"

// Task represents a tracked task row.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Snapshot returns the event payload view of the task.
func (t *Task) Snapshot() TaskSnapshot {
	completed := t.Completed
	return TaskSnapshot{
		ID:        t.ID,
		Title:     t.Title,
		Completed: &completed,
	}
}

// DailyStatistic is one row of per-day aggregate counters. Counters only
// grow within a day; rows are created lazily and never deleted.
type DailyStatistic struct {
	Date           string    `json:"date"`
	TasksCreated   int64     `json:"tasks_created"`
	TasksCompleted int64     `json:"tasks_completed"`
	TasksDeleted   int64     `json:"tasks_deleted"`
	LastUpdated    time.Time `json:"last_updated"`
}
