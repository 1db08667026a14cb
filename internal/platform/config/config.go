package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr string

	// DatabaseURL enables the Postgres stores; empty keeps the in-memory stores.
	DatabaseURL string

	// RedisURL enables the shared Redis rate-limit counter store; empty keeps
	// the in-memory TTL counters (single-process deployments only).
	RedisURL string

	// KafkaBrokers enables the audit event sink; empty disables it.
	KafkaBrokers string

	// EncryptionKey seals project API credentials and access credential maps.
	EncryptionKey string

	// AuthSigningKey verifies the platform JWT supplied by the upstream
	// authentication layer.
	AuthSigningKey string

	// RetrySchedule is a cron expression for the provisioning retry sweep.
	RetrySchedule string

	SignupTimeout time.Duration
	ProbeTimeout  time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:           getEnv("SUPERCRM_ADDR", ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaBrokers:   os.Getenv("KAFKA_BROKERS"),
		EncryptionKey:  getEnv("ENCRYPTION_KEY", "dev-encryption-key-change-in-production"),
		AuthSigningKey: getEnv("AUTH_SIGNING_KEY", "dev-secret-key-change-in-production"),
		RetrySchedule:  getEnv("RETRY_SCHEDULE", "*/5 * * * *"),
		SignupTimeout:  30 * time.Second,
		ProbeTimeout:   5 * time.Second,
	}

	if v := os.Getenv("SIGNUP_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.SignupTimeout = time.Duration(secs) * time.Second
		}
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
