package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"taskboard/internal/config"
	"taskboard/pkg/logger"
)

const tasksCacheKey = "tasks:list"

var (
	client *redis.Client
	once   sync.Once
)

// Client returns the global Redis client (initialized on first use). Returns
// nil when Redis is unreachable; callers treat that as a cache miss.
func Client(ctx context.Context) *redis.Client {
	once.Do(func() {
		cfg := config.Get()
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error(ctx, "Invalid REDIS_URL", "error", err, "url", cfg.RedisURL)
			return
		}
		client = redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn(ctx, "Redis ping failed, cache disabled", "error", err)
			client = nil
			return
		}
		logger.Info(ctx, "Redis client initialized")
	})
	return client
}

// GetRawTasks reads the cached task list response body. Returns (nil, false)
// on miss or error.
func GetRawTasks(ctx context.Context) ([]byte, bool) {
	c := Client(ctx)
	if c == nil {
		return nil, false
	}
	b, err := c.Get(ctx, tasksCacheKey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Debug(ctx, "Redis get tasks failed", "error", err)
		return nil, false
	}
	return b, true
}

// SetRawTasksAsync writes the task list response body with the configured
// TTL, off the request path.
func SetRawTasksAsync(body []byte) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c := Client(ctx)
		if c == nil {
			return
		}
		ttl := time.Duration(config.Get().CacheTTL) * time.Second
		if err := c.Set(ctx, tasksCacheKey, body, ttl).Err(); err != nil {
			logger.Debug(ctx, "Redis set tasks failed", "error", err)
		}
	}()
}

// InvalidateTasks deletes the task list cache key so the next read goes to
// the database. Called after every mutation, before the event publish.
func InvalidateTasks(ctx context.Context) {
	c := Client(ctx)
	if c == nil {
		return
	}
	if err := c.Del(ctx, tasksCacheKey).Err(); err != nil {
		logger.Debug(ctx, "Redis invalidate tasks failed", "error", err)
	}
}
