package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// WithBrokerFromEnv reads the stream broker address, auth, and topology
// from SCHEDULER_REDIS_* environment variables.
func WithBrokerFromEnv() Option {
	return optionFunc(func(c *Config) {
		c.StreamBrokerURL = getEnvOrDefault("SCHEDULER_REDIS_ADDR", c.StreamBrokerURL)
		c.RedisPassword = getEnvOrDefault("SCHEDULER_REDIS_PASSWORD", c.RedisPassword)
		c.RedisDB = getEnvIntOrDefault("SCHEDULER_REDIS_DB", c.RedisDB)
		c.StreamName = getEnvOrDefault("SCHEDULER_STREAM_NAME", c.StreamName)
		c.HeartbeatStreamName = getEnvOrDefault("SCHEDULER_HEARTBEAT_STREAM", c.HeartbeatStreamName)
		c.CompletionStreamName = getEnvOrDefault("SCHEDULER_COMPLETION_STREAM", c.CompletionStreamName)
		c.ConsumerGroup = getEnvOrDefault("SCHEDULER_CONSUMER_GROUP", c.ConsumerGroup)
		c.ConsumerName = getEnvOrDefault("SCHEDULER_CONSUMER_NAME", c.ConsumerName)
		c.DispatchPrefix = getEnvOrDefault("SCHEDULER_DISPATCH_PREFIX", c.DispatchPrefix)
		c.PredictionKey = getEnvOrDefault("SCHEDULER_PREDICTION_KEY", c.PredictionKey)
	})
}

// WithTuningFromEnv reads the scheduling tunables from SCHEDULER_* env vars,
// falling back to whatever the config already holds (normally the defaults).
func WithTuningFromEnv() Option {
	return optionFunc(func(c *Config) {
		c.FallbackThreshold = getEnvIntOrDefault("SCHEDULER_FALLBACK_THRESHOLD", c.FallbackThreshold)
		c.HeartbeatTimeout = getEnvDurationOrDefault("SCHEDULER_HEARTBEAT_TIMEOUT", c.HeartbeatTimeout)
		c.UnhealthyTimeout = getEnvDurationOrDefault("SCHEDULER_UNHEALTHY_TIMEOUT", c.UnhealthyTimeout)
		c.RemovedTimeout = getEnvDurationOrDefault("SCHEDULER_REMOVED_TIMEOUT", c.RemovedTimeout)
		c.HealthCheckInterval = getEnvDurationOrDefault("SCHEDULER_HEALTH_CHECK_INTERVAL", c.HealthCheckInterval)
		c.Alpha = getEnvFloatOrDefault("SCHEDULER_ALPHA", c.Alpha)
		c.DefaultDuration = getEnvDurationOrDefault("SCHEDULER_DEFAULT_DURATION", c.DefaultDuration)
		c.ConfidenceThreshold = getEnvInt64OrDefault("SCHEDULER_CONFIDENCE_THRESHOLD", c.ConfidenceThreshold)
		c.SnapshotInterval = getEnvInt64OrDefault("SCHEDULER_SNAPSHOT_INTERVAL", c.SnapshotInterval)
		c.AccuracyWindowSize = getEnvIntOrDefault("SCHEDULER_ACCURACY_WINDOW", c.AccuracyWindowSize)
		c.AccuracyThreshold = getEnvFloatOrDefault("SCHEDULER_ACCURACY_THRESHOLD", c.AccuracyThreshold)
		c.MaxWait = getEnvDurationOrDefault("SCHEDULER_MAX_WAIT", c.MaxWait)
		c.MaxPriority = getEnvIntOrDefault("SCHEDULER_MAX_PRIORITY", c.MaxPriority)
	})
}

// WithTelemetryFromEnv configures OpenTelemetry from SCHEDULER_OTEL_* env
// vars; telemetry stays disabled unless SCHEDULER_OTEL_ENABLED=true.
func WithTelemetryFromEnv() Option {
	return optionFunc(func(c *Config) {
		if !getEnvBoolOrDefault("SCHEDULER_OTEL_ENABLED", false) {
			return
		}
		c.Telemetry = &TelemetryConfig{
			ServiceName:    getEnvOrDefault("SCHEDULER_OTEL_SERVICE_NAME", "predictive-scheduler"),
			ServiceVersion: getEnvOrDefault("SCHEDULER_OTEL_SERVICE_VERSION", "0.1.0"),
			Environment:    getEnvOrDefault("SCHEDULER_OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint:   getEnvOrDefault("SCHEDULER_OTEL_ENDPOINT", "http://localhost:4318"),
			TracingEnabled: getEnvBoolOrDefault("SCHEDULER_OTEL_TRACING", true),
			MetricsEnabled: getEnvBoolOrDefault("SCHEDULER_OTEL_METRICS", true),
			SampleRate:     getEnvFloatOrDefault("SCHEDULER_OTEL_SAMPLE_RATE", 1.0),
			Enabled:        true,
		}
	})
}

// LoadFromEnv builds a Config from defaults overridden by every recognized
// SCHEDULER_* environment variable.
func LoadFromEnv() *Config {
	return New(WithBrokerFromEnv(), WithTuningFromEnv(), WithTelemetryFromEnv())
}
