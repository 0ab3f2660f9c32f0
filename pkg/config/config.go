// Package config provides the predictive scheduler's runtime configuration:
// a functional-options builder plus a validator that rejects bad values at
// the mutation point, never inside the hot dispatch loop.
package config

import (
	"time"

	"github.com/kart-io/predictive-scheduler/logger"
)

// Weights is the scorer's weight vector; Wait + Load + Priority must sum to 1.
type Weights struct {
	Wait     float64
	Load     float64
	Priority float64
}

// TelemetryConfig configures the OpenTelemetry tracer/meter wiring.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	OTLPHeaders    map[string]string
	TracingEnabled bool
	SampleRate     float64
	MetricsEnabled bool
	Enabled        bool
}

// Config holds every tunable recognized by the scheduler.
type Config struct {
	FallbackThreshold     int
	HeartbeatTimeout      time.Duration
	UnhealthyTimeout      time.Duration
	RemovedTimeout        time.Duration
	HealthCheckInterval   time.Duration
	AvgTaskDuration       time.Duration
	Alpha                 float64
	DefaultDuration       time.Duration
	ConfidenceThreshold   int64
	SnapshotInterval      int64
	AccuracyWindowSize    int
	AccuracyThreshold     float64
	DriftLower            float64
	DriftUpper            float64
	Weights               Weights
	MaxWait               time.Duration
	MaxPriority           int

	DispatchPrefix       string
	DispatchMaxLen       int64
	StreamBrokerURL      string
	RedisPassword        string
	RedisDB              int
	PersistenceURL       string
	PredictionKey        string
	StreamName           string
	HeartbeatStreamName  string
	CompletionStreamName string
	ConsumerGroup        string
	ConsumerName         string

	Logger    logger.Interface
	Telemetry *TelemetryConfig
}

// Option mutates a Config under construction.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) {
	f(c)
}

// Default returns the configuration with every documented default applied.
func Default() *Config {
	return &Config{
		FallbackThreshold:   3,
		HeartbeatTimeout:    30 * time.Second,
		UnhealthyTimeout:    30 * time.Second,
		RemovedTimeout:      5 * time.Minute,
		HealthCheckInterval: 5 * time.Second,
		AvgTaskDuration:     5 * time.Second,
		Alpha:               0.3,
		DefaultDuration:     5 * time.Second,
		ConfidenceThreshold: 100,
		SnapshotInterval:    100,
		AccuracyWindowSize:  1000,
		AccuracyThreshold:   0.25,
		DriftLower:          0.5,
		DriftUpper:          2.0,
		Weights:             Weights{Wait: 0.4, Load: 0.4, Priority: 0.2},
		MaxWait:             60 * time.Second,
		MaxPriority:         10,
		DispatchPrefix:       "dispatch:",
		DispatchMaxLen:       10000,
		PredictionKey:        "scheduler:predictions",
		StreamName:           "scheduler:tasks",
		HeartbeatStreamName:  "scheduler:heartbeats",
		CompletionStreamName: "scheduler:completions",
		ConsumerGroup:        "scheduler",
		ConsumerName:         "scheduler-1",
		Logger:               logger.Default,
	}
}

// New builds a Config from the defaults plus the supplied options.
func New(opts ...Option) *Config {
	cfg := Default()
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return cfg
}

// WithFallbackThreshold sets the consecutive-failure count that opens the
// predictor circuit breaker.
func WithFallbackThreshold(n int) Option {
	return optionFunc(func(c *Config) { c.FallbackThreshold = n })
}

// WithHeartbeatTimeout sets the age past which a worker is no longer
// eligible for new work.
func WithHeartbeatTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.HeartbeatTimeout = d })
}

// WithHealthTimeouts sets the unhealthy/removed age thresholds used by the
// availability calculator.
func WithHealthTimeouts(unhealthy, removed time.Duration) Option {
	return optionFunc(func(c *Config) {
		c.UnhealthyTimeout = unhealthy
		c.RemovedTimeout = removed
	})
}

// WithHealthCheckInterval sets the heartbeat reaper's polling period.
func WithHealthCheckInterval(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.HealthCheckInterval = d })
}

// WithAlpha sets the EMA blend factor used by predictor feedback.
func WithAlpha(alpha float64) Option {
	return optionFunc(func(c *Config) { c.Alpha = alpha })
}

// WithDefaultDuration sets the duration returned for unknown task types.
func WithDefaultDuration(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.DefaultDuration = d })
}

// WithConfidenceThreshold sets the sample count at which predictor
// confidence saturates at 1.
func WithConfidenceThreshold(n int64) Option {
	return optionFunc(func(c *Config) { c.ConfidenceThreshold = n })
}

// WithSnapshotInterval sets how many feedback events elapse between
// persistence snapshots.
func WithSnapshotInterval(n int64) Option {
	return optionFunc(func(c *Config) { c.SnapshotInterval = n })
}

// WithAccuracyWindow sets the rolling window size and the per-sample
// relative-error threshold (|actual-predicted|/predicted at or below it
// counts as accurate) used by the feedback pipeline's accuracy tracker.
func WithAccuracyWindow(size int, threshold float64) Option {
	return optionFunc(func(c *Config) {
		c.AccuracyWindowSize = size
		c.AccuracyThreshold = threshold
	})
}

// WithDriftBand sets the actual/predicted ratio band outside of which a
// completion is flagged as drift.
func WithDriftBand(lower, upper float64) Option {
	return optionFunc(func(c *Config) {
		c.DriftLower = lower
		c.DriftUpper = upper
	})
}

// WithWeights sets the scorer's weight vector.
func WithWeights(wait, load, priority float64) Option {
	return optionFunc(func(c *Config) {
		c.Weights = Weights{Wait: wait, Load: load, Priority: priority}
	})
}

// WithMaxWait sets the wait-score normalization ceiling.
func WithMaxWait(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.MaxWait = d })
}

// WithMaxPriority sets the priority-score normalization ceiling.
func WithMaxPriority(n int) Option {
	return optionFunc(func(c *Config) { c.MaxPriority = n })
}

// WithDispatchPrefix sets the per-worker dispatch channel name prefix.
func WithDispatchPrefix(prefix string) Option {
	return optionFunc(func(c *Config) { c.DispatchPrefix = prefix })
}

// WithStreamBroker sets the connection address for the task/heartbeat/
// completion stream broker.
func WithStreamBroker(addr string) Option {
	return optionFunc(func(c *Config) { c.StreamBrokerURL = addr })
}

// WithRedisAuth sets the broker's password and logical database index.
func WithRedisAuth(password string, db int) Option {
	return optionFunc(func(c *Config) {
		c.RedisPassword = password
		c.RedisDB = db
	})
}

// WithTelemetryStreamNames sets the heartbeat and completion stream names
// tailed by the availability and feedback subsystems.
func WithTelemetryStreamNames(heartbeat, completion string) Option {
	return optionFunc(func(c *Config) {
		c.HeartbeatStreamName = heartbeat
		c.CompletionStreamName = completion
	})
}

// WithDispatchMaxLen caps the approximate length of each per-worker
// dispatch stream via XAdd's MAXLEN option.
func WithDispatchMaxLen(n int64) Option {
	return optionFunc(func(c *Config) { c.DispatchMaxLen = n })
}

// WithPersistence sets the connection URL for predictor state persistence.
func WithPersistence(url string) Option {
	return optionFunc(func(c *Config) { c.PersistenceURL = url })
}

// WithStreamNames sets the task stream name and consumer-group identity.
func WithStreamNames(streamName, group, consumer string) Option {
	return optionFunc(func(c *Config) {
		c.StreamName = streamName
		c.ConsumerGroup = group
		c.ConsumerName = consumer
	})
}

// WithLogger overrides the default logger.
func WithLogger(l logger.Interface) Option {
	return optionFunc(func(c *Config) { c.Logger = l })
}

// WithTelemetry configures OpenTelemetry tracing and metrics.
func WithTelemetry(serviceName, serviceVersion, environment, otlpEndpoint string) Option {
	return optionFunc(func(c *Config) {
		c.Telemetry = &TelemetryConfig{
			ServiceName:    serviceName,
			ServiceVersion: serviceVersion,
			Environment:    environment,
			OTLPEndpoint:   otlpEndpoint,
			TracingEnabled: true,
			MetricsEnabled: true,
			SampleRate:     1.0,
			Enabled:        true,
		}
	})
}
