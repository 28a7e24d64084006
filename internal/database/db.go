package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"taskboard/internal/config"
	"taskboard/pkg/logger"
)

var (
	pool *sql.DB
	once sync.Once
)

// DB returns the global database connection pool (initialized on first use).
func DB(ctx context.Context) *sql.DB {
	once.Do(func() {
		cfg := config.Get()
		db, err := sql.Open("postgres", cfg.DSN())
		if err != nil {
			logger.Error(ctx, "Failed to open database", "error", err)
			return
		}
		db.SetMaxOpenConns(cfg.DBPoolSize)
		db.SetMaxIdleConns(cfg.DBPoolSize / 2)
		pool = db
		logger.Info(ctx, "Database pool initialized", "host", cfg.DBHost, "max_open", cfg.DBPoolSize)
	})
	return pool
}

// Connect initializes the pool and pings it with bounded retries. Fatal for
// the caller when it returns an error: the store must be reachable at startup.
func Connect(ctx context.Context) (*sql.DB, error) {
	db := DB(ctx)
	if db == nil {
		return nil, sql.ErrConnDone
	}
	var err error
	for attempt := 1; attempt <= config.DBConnectAttempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return db, nil
		}
		logger.Warn(ctx, "Database connection failed",
			"attempt", attempt, "max_attempts", config.DBConnectAttempts, "error", err)
		if attempt < config.DBConnectAttempts {
			select {
			case <-time.After(config.DBConnectDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, err
}

// MigrateOrCreateSchema creates the tasks and task_statistics tables if they
// do not exist. Safe to run on every startup.
func MigrateOrCreateSchema(ctx context.Context) error {
	db := DB(ctx)
	if db == nil {
		return sql.ErrConnDone
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id SERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS task_statistics (
			date DATE PRIMARY KEY,
			tasks_created INTEGER NOT NULL DEFAULT 0,
			tasks_completed INTEGER NOT NULL DEFAULT 0,
			tasks_deleted INTEGER NOT NULL DEFAULT 0,
			last_updated TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	logger.Info(ctx, "Database schema ensured")
	return nil
}
