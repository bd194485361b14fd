package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Store    StoreConfig
	Postgres PostgresConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Push     PushConfig
	Queue    QueueConfig
	Cache    CacheConfig
	Tracing  TracingConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Driver string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// MongoConfig holds MongoDB connection values.
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BootstrapAdminID      string
}

// PushConfig holds the VAPID identity used for web push.
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
	TTLSeconds      int
}

// QueueConfig tunes transactions and the confirmation sweeper.
type QueueConfig struct {
	TxMaxAttempts          int
	AwaitingTimeoutSeconds int
	SweepIntervalSeconds   int
}

// CacheConfig tunes the response cache.
type CacheConfig struct {
	TTLSeconds     int
	LockTTLSeconds int
}

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	OTLPEndpoint string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "resource-queue"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://127.0.0.1:27017/?replicaSet=rs0"),
			Database: getEnv("MONGO_DATABASE", "resource_queue"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BootstrapAdminID:      os.Getenv("AUTH_BOOTSTRAP_ADMIN_ID"),
		},
		Push: PushConfig{
			VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
			Subject:         getEnv("VAPID_SUBJECT", "mailto:noreply@example.com"),
			TTLSeconds:      getEnvAsInt("PUSH_TTL_SECONDS", 3600),
		},
		Queue: QueueConfig{
			TxMaxAttempts:          getEnvAsInt("TX_MAX_ATTEMPTS", 3),
			AwaitingTimeoutSeconds: getEnvAsInt("AWAITING_CONFIRMATION_TIMEOUT_SECONDS", 0),
			SweepIntervalSeconds:   getEnvAsInt("SWEEP_INTERVAL_SECONDS", 30),
		},
		Cache: CacheConfig{
			TTLSeconds:     getEnvAsInt("CACHE_TTL_SECONDS", 60),
			LockTTLSeconds: getEnvAsInt("CACHE_LOCK_TTL_SECONDS", 30),
		},
		Tracing: TracingConfig{
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
	}

	switch cfg.Store.Driver {
	case StoreDriverPostgres, StoreDriverMongo, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.Store.Driver)
	}
	if cfg.Queue.TxMaxAttempts < 1 {
		cfg.Queue.TxMaxAttempts = 1
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AwaitingTimeout returns how long a reservation may wait for confirmation. Zero disables expiry.
func (q QueueConfig) AwaitingTimeout() time.Duration {
	return time.Duration(q.AwaitingTimeoutSeconds) * time.Second
}

// SweepInterval returns the period of the confirmation sweeper.
func (q QueueConfig) SweepInterval() time.Duration {
	if q.SweepIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(q.SweepIntervalSeconds) * time.Second
}

// TTL returns the lifetime of cached views.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// LockTTL returns the expiry of the cache write lock.
func (c CacheConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
