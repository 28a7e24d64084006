package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Retry bounds. These are part of the delivery contract, not tunables.
const (
	// PublishAttempts is how many times a publish is tried before the
	// event is dropped with a log line.
	PublishAttempts = 3
	// PublishRetryDelay is the pause between publish attempts.
	PublishRetryDelay = time.Second

	// ConsumerConnectAttempts bounds broker dials at consumer startup;
	// exhaustion is fatal.
	ConsumerConnectAttempts = 10
	// ConsumerConnectDelay is the pause between consumer dials.
	ConsumerConnectDelay = 5 * time.Second

	// DBConnectAttempts bounds database pings at process startup.
	DBConnectAttempts = 5
	// DBConnectDelay is the pause between database pings.
	DBConnectDelay = 2 * time.Second
)

// Config holds application configuration from environment.
type Config struct {
	HTTPPort string

	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBPoolSize int

	BrokerHost     string
	BrokerPort     string
	BrokerUser     string
	BrokerPassword string
	EventQueue     string
	DeadQueue      string

	RedisURL string
	CacheTTL int // seconds
}

var (
	cfg     *Config
	cfgOnce sync.Once
)

// Get returns the application config (loads once from env).
func Get() *Config {
	cfgOnce.Do(func() {
		cfg = Load()
	})
	return cfg
}

// Load builds a fresh Config from the environment. Defaults suit local
// development (matching docker-compose service defaults).
func Load() *Config {
	return &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBName:     getEnv("DB_NAME", "tododb"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBPoolSize: getIntEnv("DB_POOL_SIZE", 25),

		BrokerHost:     getEnv("RABBITMQ_HOST", "localhost"),
		BrokerPort:     getEnv("RABBITMQ_PORT", "5672"),
		BrokerUser:     getEnv("RABBITMQ_USER", "guest"),
		BrokerPassword: getEnv("RABBITMQ_PASSWORD", "guest"),
		EventQueue:     getEnv("TASK_EVENTS_QUEUE", "task_events"),
		DeadQueue:      getEnv("TASK_EVENTS_DEAD_QUEUE", "task_events.dead"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		CacheTTL: getIntEnv("CACHE_TTL_SEC", 300),
	}
}

// DSN returns the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword)
}

// BrokerURL returns the AMQP connection URL.
func (c *Config) BrokerURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.BrokerUser, c.BrokerPassword, c.BrokerHost, c.BrokerPort)
}

// LoadEnvFile reads a .env file and sets env vars (only if not already set).
func LoadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`) {
			val = strings.Trim(val, `"`)
		} else if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
			val = strings.Trim(val, "'")
		}
		if key != "" && os.Getenv(key) == "" {
			_ = os.Setenv(key, val)
		}
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
