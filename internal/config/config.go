package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis pub/sub bridge for multi-instance fanout. Empty disables it.
	RedisAddr string

	ServerPort string
	ServerHost string

	// Lease timing. LockTTL is the single authoritative lease duration;
	// clients derive their proactive-release window as LockTTL minus
	// LockRenewMargin instead of carrying their own magic number.
	LockTTL         time.Duration
	LockRenewMargin time.Duration

	// Presence thresholds.
	IdleAfter     time.Duration
	OfflineAfter  time.Duration
	SweepInterval time.Duration

	// How many chat messages a late joiner receives.
	ChatHistoryLimit int

	// Observability
	JaegerEndpoint string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "builder_collab"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		LockTTL:         getEnvDuration("LOCK_TTL", 30*time.Second),
		LockRenewMargin: getEnvDuration("LOCK_RENEW_MARGIN", 5*time.Second),

		IdleAfter:     getEnvDuration("PRESENCE_IDLE_AFTER", 60*time.Second),
		OfflineAfter:  getEnvDuration("PRESENCE_OFFLINE_AFTER", 5*time.Minute),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 5*time.Second),

		ChatHistoryLimit: getEnvInt("CHAT_HISTORY_LIMIT", 50),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}

	if cfg.LockRenewMargin >= cfg.LockTTL {
		return nil, fmt.Errorf("LOCK_RENEW_MARGIN (%v) must be shorter than LOCK_TTL (%v)",
			cfg.LockRenewMargin, cfg.LockTTL)
	}

	return cfg, nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// ClientReleaseAfter is how long a client holds a lease before proactively
// releasing it, guaranteed shorter than the server-side TTL.
func (c *Config) ClientReleaseAfter() time.Duration {
	return c.LockTTL - c.LockRenewMargin
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
