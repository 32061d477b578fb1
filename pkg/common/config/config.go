package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort   string
	ServerHost   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers     []string
	KafkaGroupID     string
	ReportEventTopic string

	// Dispatch
	DispatchWorkers      int
	DispatchSoftDeadline time.Duration
	DispatchRetries      int
	DispatchRetryBackoff time.Duration
	UpstreamTimeout      time.Duration

	// Trigger
	FormsDebounceDelay time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ServerHost:   getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "relay"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "relay123"),
		PostgresDB:       getEnv("POSTGRES_DB", "relay"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:     getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "fieldsignal-relay"),
		ReportEventTopic: getEnv("REPORT_EVENT_TOPIC", "report-events"),

		DispatchWorkers:      getIntEnv("DISPATCH_WORKERS", 4),
		DispatchSoftDeadline: getDuration("DISPATCH_SOFT_DEADLINE", 30*time.Second),
		DispatchRetries:      getIntEnv("DISPATCH_RETRIES", 3),
		DispatchRetryBackoff: getDuration("DISPATCH_RETRY_BACKOFF", 500*time.Millisecond),
		UpstreamTimeout:      getDuration("UPSTREAM_TIMEOUT", 10*time.Second),

		FormsDebounceDelay: getDuration("FORMS_DEBOUNCE_DELAY", 10*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
