package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"taskboard/internal/database"
	"taskboard/internal/models"
	"taskboard/pkg/logger"
)

const dateLayout = "2006-01-02"

// statColumns are the counter columns IncrementDay accepts. Column names are
// interpolated into SQL, so anything else is rejected up front.
var statColumns = map[string]bool{
	"tasks_created":   true,
	"tasks_completed": true,
	"tasks_deleted":   true,
}

// EnsureDay creates the statistics row for the given day with zero counters
// if it does not exist. Safe to call repeatedly and concurrently.
func EnsureDay(ctx context.Context, day time.Time) error {
	db := database.DB(ctx)
	if db == nil {
		return sql.ErrConnDone
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO task_statistics (date, tasks_created, tasks_completed, tasks_deleted, last_updated)
		 VALUES ($1, 0, 0, 0, CURRENT_TIMESTAMP)
		 ON CONFLICT (date) DO NOTHING`,
		day.Format(dateLayout))
	if err != nil {
		logger.Error(ctx, "Repository EnsureDay failed", "error", err, "date", day.Format(dateLayout))
	}
	return err
}

// IncrementDay adds one to a single counter column for the given day. The
// row must already exist (see EnsureDay). Relies on the store's row-level
// atomicity; no application locking.
func IncrementDay(ctx context.Context, day time.Time, column string) error {
	if !statColumns[column] {
		return fmt.Errorf("unknown statistics column %q", column)
	}
	db := database.DB(ctx)
	if db == nil {
		return sql.ErrConnDone
	}
	q := fmt.Sprintf(
		`UPDATE task_statistics SET %s = %s + 1, last_updated = CURRENT_TIMESTAMP WHERE date = $1`,
		column, column)
	_, err := db.ExecContext(ctx, q, day.Format(dateLayout))
	if err != nil {
		logger.Error(ctx, "Repository IncrementDay failed", "error", err, "column", column)
	}
	return err
}

// LastDays returns up to n most recent daily statistics rows, newest first.
func LastDays(ctx context.Context, n int) ([]models.DailyStatistic, error) {
	db := database.DB(ctx)
	if db == nil {
		return nil, sql.ErrConnDone
	}
	rows, err := db.QueryContext(ctx,
		`SELECT to_char(date, 'YYYY-MM-DD'), tasks_created, tasks_completed, tasks_deleted, last_updated
		 FROM task_statistics
		 WHERE date >= CURRENT_DATE - ($1::int - 1)
		 ORDER BY date DESC`, n)
	if err != nil {
		logger.Error(ctx, "Repository LastDays failed", "error", err)
		return nil, err
	}
	defer rows.Close()
	stats := []models.DailyStatistic{}
	for rows.Next() {
		var s models.DailyStatistic
		if err := rows.Scan(&s.Date, &s.TasksCreated, &s.TasksCompleted, &s.TasksDeleted, &s.LastUpdated); err != nil {
			logger.Error(ctx, "Repository scan statistic failed", "error", err)
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// TaskTotals returns the live total and completed task counts.
func TaskTotals(ctx context.Context) (total, completed int64, err error) {
	db := database.DB(ctx)
	if db == nil {
		return 0, 0, sql.ErrConnDone
	}
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE completed) FROM tasks`).
		Scan(&total, &completed)
	if err != nil {
		logger.Error(ctx, "Repository TaskTotals failed", "error", err)
	}
	return total, completed, err
}
