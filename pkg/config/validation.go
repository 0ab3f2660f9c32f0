package config

import "fmt"

// ValidationError reports a configuration value that cannot be used.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

// ValidationWarning reports a configuration value that is usable but
// unusual enough to call out.
type ValidationWarning struct {
	Field   string
	Code    string
	Message string
}

// ValidationSummary counts what a ValidationResult found.
type ValidationSummary struct {
	TotalErrors   int
	TotalWarnings int
}

// ValidationResult is the outcome of running a Validator over a Config.
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationWarning
	Summary  ValidationSummary
}

func (r *ValidationResult) addError(field, code, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Code: code, Message: message})
	r.Valid = false
}

func (r *ValidationResult) addWarning(field, code, message string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Code: code, Message: message})
}

// Validator checks a Config for invalid or suspicious values. In strict
// mode, any warning makes the result invalid; warnings stay in Warnings.
type Validator struct {
	strict bool
}

// NewValidator returns a Validator; strict mode turns every warning into
// a validation failure.
func NewValidator(strict bool) *Validator {
	return &Validator{strict: strict}
}

// Validate runs every check against cfg.
func (v *Validator) Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{Valid: true}

	v.validateTimeouts(cfg, result)
	v.validateWeights(cfg, result)
	v.validatePredictor(cfg, result)
	v.validateStream(cfg, result)

	if v.strict && len(result.Warnings) > 0 {
		result.Valid = false
	}

	result.Summary = ValidationSummary{
		TotalErrors:   len(result.Errors),
		TotalWarnings: len(result.Warnings),
	}

	return result
}

func (v *Validator) validateTimeouts(cfg *Config, result *ValidationResult) {
	if cfg.HeartbeatTimeout <= 0 {
		result.addError("heartbeat_timeout_ms", "INVALID_TIMEOUT", "heartbeat timeout must be positive")
	} else if cfg.HeartbeatTimeout < 1000_000_000 {
		result.addWarning("heartbeat_timeout_ms", "SHORT_TIMEOUT", "heartbeat timeout below 1s may evict healthy workers under load")
	}

	if cfg.UnhealthyTimeout <= 0 {
		result.addError("unhealthy_timeout_ms", "INVALID_TIMEOUT", "unhealthy timeout must be positive")
	}

	if cfg.RemovedTimeout <= cfg.UnhealthyTimeout {
		result.addError("removed_timeout_ms", "INVALID_TIMEOUT_ORDER", "removed timeout must exceed unhealthy timeout")
	}

	if cfg.HealthCheckInterval <= 0 {
		result.addError("health_check_interval_ms", "INVALID_INTERVAL", "health check interval must be positive")
	}

	if cfg.FallbackThreshold < 1 {
		result.addError("fallback_threshold", "INVALID_THRESHOLD", "fallback threshold must be at least 1")
	}

	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		result.addError("alpha", "INVALID_ALPHA", "alpha must be in (0, 1]")
	}
}

// validateWeights checks that the scorer's weight vector is non-negative
// and sums to 1 within a 1e-3 tolerance.
func (v *Validator) validateWeights(cfg *Config, result *ValidationResult) {
	w := cfg.Weights
	if w.Wait < 0 || w.Load < 0 || w.Priority < 0 {
		result.addError("weights", "NEGATIVE_WEIGHT", "scoring weights must be non-negative")
		return
	}

	sum := w.Wait + w.Load + w.Priority
	const tolerance = 1e-3
	if diff := sum - 1.0; diff > tolerance || diff < -tolerance {
		result.addError("weights", "WEIGHTS_NOT_NORMALIZED",
			fmt.Sprintf("weights must sum to 1 within %.3f, got %.4f", tolerance, sum))
	}
}

func (v *Validator) validatePredictor(cfg *Config, result *ValidationResult) {
	if cfg.ConfidenceThreshold <= 0 {
		result.addError("confidence_threshold", "INVALID_THRESHOLD", "confidence threshold must be positive")
	}

	if cfg.AccuracyWindowSize <= 0 {
		result.addError("accuracy_window_size", "INVALID_WINDOW", "accuracy window size must be positive")
	}

	if cfg.AccuracyThreshold < 0 || cfg.AccuracyThreshold > 1 {
		result.addError("accuracy_threshold", "INVALID_THRESHOLD", "accuracy threshold must be in [0, 1]")
	}

	if cfg.DriftLower <= 0 || cfg.DriftUpper <= cfg.DriftLower {
		result.addError("drift_band", "INVALID_DRIFT_BAND", "drift lower bound must be positive and less than upper bound")
	}

	if cfg.MaxWait <= 0 {
		result.addError("max_wait_ms", "INVALID_MAX_WAIT", "max wait must be positive")
	}

	if cfg.MaxPriority <= 0 {
		result.addError("max_priority", "INVALID_MAX_PRIORITY", "max priority must be positive")
	}
}

func (v *Validator) validateStream(cfg *Config, result *ValidationResult) {
	if cfg.StreamName == "" {
		result.addError("stream_name", "MISSING_STREAM_NAME", "task stream name must not be empty")
	}
	if cfg.ConsumerGroup == "" {
		result.addError("consumer_group", "MISSING_CONSUMER_GROUP", "consumer group must not be empty")
	}
	if cfg.DispatchPrefix == "" {
		result.addWarning("dispatch_prefix", "EMPTY_PREFIX", "empty dispatch prefix means channel names equal worker IDs")
	}
	if cfg.StreamBrokerURL == "" {
		result.addWarning("stream_broker_url", "MISSING_BROKER_URL", "no stream broker URL configured")
	}
}
