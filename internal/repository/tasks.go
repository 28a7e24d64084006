package repository

import (
	"context"
	"database/sql"
	"errors"

	"taskboard/internal/database"
	"taskboard/internal/models"
	"taskboard/pkg/logger"
)

// ErrTaskNotFound is returned by Update when the id does not exist.
var ErrTaskNotFound = errors.New("task not found")

const taskColumns = `id, title, completed, created_at, completed_at`

// GetAll returns all tasks ordered by id ascending.
func GetAll(ctx context.Context) ([]models.Task, error) {
	db := database.DB(ctx)
	if db == nil {
		return nil, sql.ErrConnDone
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY id ASC`)
	if err != nil {
		logger.Error(ctx, "Repository GetAll failed", "error", err)
		return nil, err
	}
	defer rows.Close()
	tasks := []models.Task{}
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Completed, &t.CreatedAt, &t.CompletedAt); err != nil {
			logger.Error(ctx, "Repository scan task failed", "error", err)
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Create inserts a new task and returns the stored row.
func Create(ctx context.Context, title string) (models.Task, error) {
	db := database.DB(ctx)
	if db == nil {
		return models.Task{}, sql.ErrConnDone
	}
	var t models.Task
	err := db.QueryRowContext(ctx,
		`INSERT INTO tasks (title, completed) VALUES ($1, FALSE)
		 RETURNING `+taskColumns, title).
		Scan(&t.ID, &t.Title, &t.Completed, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		logger.Error(ctx, "Repository Create failed", "error", err)
		return models.Task{}, err
	}
	return t, nil
}

// Update applies the provided fields to a task and returns the new row.
// completed_at tracks completed in the same statement: set on first
// completion, preserved on repeat completion, cleared on uncompletion.
// Returns ErrTaskNotFound when the id does not exist.
func Update(ctx context.Context, id int64, title *string, completed *bool) (models.Task, error) {
	db := database.DB(ctx)
	if db == nil {
		return models.Task{}, sql.ErrConnDone
	}
	var t models.Task
	err := db.QueryRowContext(ctx,
		`UPDATE tasks SET
			title = COALESCE($2, title),
			completed = COALESCE($3, completed),
			completed_at = CASE
				WHEN COALESCE($3, completed) THEN COALESCE(completed_at, CURRENT_TIMESTAMP)
				ELSE NULL
			END
		 WHERE id = $1
		 RETURNING `+taskColumns, id, title, completed).
		Scan(&t.ID, &t.Title, &t.Completed, &t.CreatedAt, &t.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, ErrTaskNotFound
	}
	if err != nil {
		logger.Error(ctx, "Repository Update failed", "error", err, "id", id)
		return models.Task{}, err
	}
	return t, nil
}

// Delete removes a task by id. Deleting an absent id is not an error.
func Delete(ctx context.Context, id int64) error {
	db := database.DB(ctx)
	if db == nil {
		return sql.ErrConnDone
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
		logger.Error(ctx, "Repository Delete failed", "error", err, "id", id)
		return err
	}
	return nil
}
