// Package config loads pipeline configuration from the environment. A .env
// file in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config carries every knob of the three services. Each binary only reads
// the sections it needs.
type Config struct {
	LogLevel string `validate:"oneof=debug info warn error"`

	DataDir       string `validate:"required"`
	RetentionDays int    `validate:"min=1"`

	Redis   RedisConfig
	Ingest  IngestConfig
	Query   QueryConfig
	Worker  WorkerConfig
	GeoIPDB string
}

// RedisConfig addresses the stream broker.
type RedisConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"min=1,max=65535"`
	Password string
	DB       int    `validate:"min=0"`
	Stream   string `validate:"required"`
	MaxLen   int64  `validate:"min=0"`
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// IngestConfig configures the ingestion API. API keys are only required by
// the ingest binary; see LoadIngest.
type IngestConfig struct {
	Port    int `validate:"min=1,max=65535"`
	APIKeys []string
}

// QueryConfig configures the read-only query API.
type QueryConfig struct {
	Port        int `validate:"min=1,max=65535"`
	CORSOrigins []string
}

// WorkerConfig configures the analytics worker's consumer group.
type WorkerConfig struct {
	Group        string `validate:"required"`
	ConsumerName string `validate:"required"`
	BatchSize    int    `validate:"min=1,max=1000"`
	BlockMS      int    `validate:"min=0"`
	ClaimMinIdle int    `validate:"min=0"`
	MetricsPort  int    `validate:"min=1,max=65535"`
}

// Load reads configuration from the environment, applying defaults and
// validating the result. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		DataDir:       getEnvOrDefault("DATA_DIR", "/data/honeypot"),
		RetentionDays: getEnvInt("RETENTION_DAYS", 30),
		GeoIPDB:       os.Getenv("GEOIP_DB_PATH"),
		Redis: RedisConfig{
			Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "honeypot_sessions"),
			MaxLen:   int64(getEnvInt("REDIS_STREAM_MAXLEN", 100000)),
		},
		Ingest: IngestConfig{
			Port:    getEnvInt("INGEST_PORT", 8080),
			APIKeys: splitList(os.Getenv("API_KEYS")),
		},
		Query: QueryConfig{
			Port:        getEnvInt("QUERY_PORT", 8081),
			CORSOrigins: splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
		},
		Worker: WorkerConfig{
			Group:        getEnvOrDefault("CONSUMER_GROUP", "analytics_workers"),
			ConsumerName: getEnvOrDefault("CONSUMER_NAME", defaultConsumerName()),
			BatchSize:    getEnvInt("BATCH_SIZE", 100),
			BlockMS:      getEnvInt("BLOCK_MS", 5000),
			ClaimMinIdle: getEnvInt("CLAIM_MIN_IDLE_MS", 60000),
			MetricsPort:  getEnvInt("WORKER_METRICS_PORT", 9091),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadIngest is Load with ingest-specific requirements enforced: the API
// needs at least one key to authenticate against.
func LoadIngest() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if len(cfg.Ingest.APIKeys) == 0 {
		return nil, fmt.Errorf("config: API_KEYS must list at least one key")
	}
	return cfg, nil
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker-1"
	}
	return "worker-" + host
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
