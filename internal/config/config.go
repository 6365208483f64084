package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string
	AuthMode    string

	// SealEnv selects the capability profile (production, staging, development).
	SealEnv         string
	BuildID         string
	ContractVersion string

	RequestTimeoutSeconds    int
	DraftDedupeWindowSeconds int
	DraftRetentionDays       int
	AuditQueueSize           int

	SealPolicyPath   string
	CapabilitiesFile string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitMaxKeys       int

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	SealLockTTLSeconds int

	TemporalAddress   string
	TemporalNamespace string
	TemporalTaskQueue string
	SweepCron         string
	WorkerHealthAddr  string
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                 addr,
		PostgresDSN:              os.Getenv("POSTGRES_DSN"),
		LogLevel:                 envDefault("LOG_LEVEL", "info"),
		AuthMode:                 envDefault("AUTH_MODE", "header"),
		SealEnv:                  envDefault("SEAL_ENV", EnvProduction),
		BuildID:                  envDefault("BUILD_ID", "dev"),
		ContractVersion:          envDefault("CONTRACT_VERSION", "seal.v1"),
		RequestTimeoutSeconds:    envIntDefault("REQUEST_TIMEOUT_SECONDS", 10),
		DraftDedupeWindowSeconds: envIntDefault("DRAFT_DEDUPE_WINDOW_SECONDS", 600),
		DraftRetentionDays:       envIntDefault("DRAFT_RETENTION_DAYS", 90),
		AuditQueueSize:           envIntDefault("AUDIT_QUEUE_SIZE", 1024),
		SealPolicyPath:           os.Getenv("SEAL_POLICY_PATH"),
		CapabilitiesFile:         os.Getenv("CAPABILITIES_FILE"),
		RateLimitRequests:        envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds:   envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitMaxKeys:         envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  envIntDefault("REDIS_DB", 0),
		SealLockTTLSeconds:       envIntDefault("SEAL_LOCK_TTL_SECONDS", 30),
		TemporalAddress:          envDefault("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace:        envDefault("TEMPORAL_NAMESPACE", "default"),
		TemporalTaskQueue:        envDefault("TEMPORAL_TASK_QUEUE", "seal-drafts"),
		SweepCron:                os.Getenv("SWEEP_CRON"),
		WorkerHealthAddr:         envDefault("HEALTH_ADDR", ":8090"),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func (c Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) DraftDedupeWindow() time.Duration {
	if c.DraftDedupeWindowSeconds <= 0 {
		return 0
	}
	return time.Duration(c.DraftDedupeWindowSeconds) * time.Second
}

func (c Config) DraftRetention() time.Duration {
	if c.DraftRetentionDays <= 0 {
		return 90 * 24 * time.Hour
	}
	return time.Duration(c.DraftRetentionDays) * 24 * time.Hour
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c Config) SealLockTTL() time.Duration {
	if c.SealLockTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.SealLockTTLSeconds) * time.Second
}
