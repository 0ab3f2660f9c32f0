package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML-serializable shadow of Config's tunables, used for
// file-based configuration. Durations are expressed in milliseconds to
// match the configuration's millisecond-based field names (heartbeatTimeoutMs, and so on).
type fileConfig struct {
	FallbackThreshold     int     `yaml:"fallbackThreshold"`
	HeartbeatTimeoutMs    int64   `yaml:"heartbeatTimeoutMs"`
	UnhealthyTimeoutMs    int64   `yaml:"unhealthyTimeoutMs"`
	RemovedTimeoutMs      int64   `yaml:"removedTimeoutMs"`
	HealthCheckIntervalMs int64   `yaml:"healthCheckIntervalMs"`
	AvgTaskDurationMs     int64   `yaml:"avgTaskDurationMs"`
	Alpha                 float64 `yaml:"alpha"`
	DefaultDurationMs     int64   `yaml:"defaultDurationMs"`
	ConfidenceThreshold   int64   `yaml:"confidenceThreshold"`
	SnapshotInterval      int64   `yaml:"snapshotInterval"`
	AccuracyWindowSize    int     `yaml:"accuracyWindowSize"`
	AccuracyThreshold     float64 `yaml:"accuracyThreshold"`
	DriftLower            float64 `yaml:"driftLower"`
	DriftUpper            float64 `yaml:"driftUpper"`
	Weights               struct {
		Wait     float64 `yaml:"wait"`
		Load     float64 `yaml:"load"`
		Priority float64 `yaml:"priority"`
	} `yaml:"weights"`
	MaxWaitMs   int64 `yaml:"maxWaitMs"`
	MaxPriority int   `yaml:"maxPriority"`

	DispatchPrefix       string `yaml:"dispatchPrefix"`
	StreamBrokerURL      string `yaml:"streamBrokerUrl"`
	PersistenceURL       string `yaml:"persistenceUrl"`
	PredictionKey        string `yaml:"predictionKey"`
	StreamName           string `yaml:"streamName"`
	HeartbeatStreamName  string `yaml:"heartbeatStreamName"`
	CompletionStreamName string `yaml:"completionStreamName"`
	ConsumerGroup        string `yaml:"consumerGroup"`
	ConsumerName         string `yaml:"consumerName"`
}

// LoadFromFile reads a YAML configuration document recognizing the
// options named in section 6 ("recognized options"), applying them on
// top of Default. Fields absent from the document keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	fc := fileConfig{}
	fc.fromConfig(Default())
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return fc.toConfig(), nil
}

// fromConfig seeds fc with cfg's current values so an unset YAML field
// preserves the default rather than zeroing out.
func (fc *fileConfig) fromConfig(cfg *Config) {
	fc.FallbackThreshold = cfg.FallbackThreshold
	fc.HeartbeatTimeoutMs = cfg.HeartbeatTimeout.Milliseconds()
	fc.UnhealthyTimeoutMs = cfg.UnhealthyTimeout.Milliseconds()
	fc.RemovedTimeoutMs = cfg.RemovedTimeout.Milliseconds()
	fc.HealthCheckIntervalMs = cfg.HealthCheckInterval.Milliseconds()
	fc.AvgTaskDurationMs = cfg.AvgTaskDuration.Milliseconds()
	fc.Alpha = cfg.Alpha
	fc.DefaultDurationMs = cfg.DefaultDuration.Milliseconds()
	fc.ConfidenceThreshold = cfg.ConfidenceThreshold
	fc.SnapshotInterval = cfg.SnapshotInterval
	fc.AccuracyWindowSize = cfg.AccuracyWindowSize
	fc.AccuracyThreshold = cfg.AccuracyThreshold
	fc.DriftLower = cfg.DriftLower
	fc.DriftUpper = cfg.DriftUpper
	fc.Weights.Wait = cfg.Weights.Wait
	fc.Weights.Load = cfg.Weights.Load
	fc.Weights.Priority = cfg.Weights.Priority
	fc.MaxWaitMs = cfg.MaxWait.Milliseconds()
	fc.MaxPriority = cfg.MaxPriority
	fc.DispatchPrefix = cfg.DispatchPrefix
	fc.StreamBrokerURL = cfg.StreamBrokerURL
	fc.PersistenceURL = cfg.PersistenceURL
	fc.PredictionKey = cfg.PredictionKey
	fc.StreamName = cfg.StreamName
	fc.HeartbeatStreamName = cfg.HeartbeatStreamName
	fc.CompletionStreamName = cfg.CompletionStreamName
	fc.ConsumerGroup = cfg.ConsumerGroup
	fc.ConsumerName = cfg.ConsumerName
}

func (fc *fileConfig) toConfig() *Config {
	cfg := Default()
	cfg.FallbackThreshold = fc.FallbackThreshold
	cfg.HeartbeatTimeout = time.Duration(fc.HeartbeatTimeoutMs) * time.Millisecond
	cfg.UnhealthyTimeout = time.Duration(fc.UnhealthyTimeoutMs) * time.Millisecond
	cfg.RemovedTimeout = time.Duration(fc.RemovedTimeoutMs) * time.Millisecond
	cfg.HealthCheckInterval = time.Duration(fc.HealthCheckIntervalMs) * time.Millisecond
	cfg.AvgTaskDuration = time.Duration(fc.AvgTaskDurationMs) * time.Millisecond
	cfg.Alpha = fc.Alpha
	cfg.DefaultDuration = time.Duration(fc.DefaultDurationMs) * time.Millisecond
	cfg.ConfidenceThreshold = fc.ConfidenceThreshold
	cfg.SnapshotInterval = fc.SnapshotInterval
	cfg.AccuracyWindowSize = fc.AccuracyWindowSize
	cfg.AccuracyThreshold = fc.AccuracyThreshold
	cfg.DriftLower = fc.DriftLower
	cfg.DriftUpper = fc.DriftUpper
	cfg.Weights = Weights{Wait: fc.Weights.Wait, Load: fc.Weights.Load, Priority: fc.Weights.Priority}
	cfg.MaxWait = time.Duration(fc.MaxWaitMs) * time.Millisecond
	cfg.MaxPriority = fc.MaxPriority
	cfg.DispatchPrefix = fc.DispatchPrefix
	cfg.StreamBrokerURL = fc.StreamBrokerURL
	cfg.PersistenceURL = fc.PersistenceURL
	cfg.PredictionKey = fc.PredictionKey
	cfg.StreamName = fc.StreamName
	cfg.HeartbeatStreamName = fc.HeartbeatStreamName
	cfg.CompletionStreamName = fc.CompletionStreamName
	cfg.ConsumerGroup = fc.ConsumerGroup
	cfg.ConsumerName = fc.ConsumerName
	return cfg
}
