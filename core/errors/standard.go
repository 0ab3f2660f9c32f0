package errors

// Standard error definitions that replace scattered error definitions across packages

// Configuration errors
var (
	ErrInvalidConfig  = New(CodeInvalidConfig, CategoryConfig, "invalid configuration")
	ErrMissingConfig  = New(CodeMissingConfig, CategoryConfig, "missing required configuration")
	ErrInvalidWeights = New(CodeInvalidWeights, CategoryConfig, "scorer weights must be non-negative and sum to 1")
)

// Task validation errors
var (
	ErrMalformedTask = New(CodeMalformedTask, CategoryValidation, "task payload failed to decode")
)

// Prediction errors
var (
	ErrPredictorUnavailable = New(CodePredictorUnavailable, CategoryPrediction, "prediction persistence backend unavailable")
	ErrPersistenceFailed    = New(CodePersistenceFailed, CategoryPersistence, "failed to persist scheduling state")
)

// Scheduling errors
var (
	ErrCircuitOpen       = New(CodeCircuitOpen, CategoryScheduling, "dispatch circuit breaker is open")
	ErrNoEligibleWorkers = New(CodeNoEligibleWorkers, CategoryScheduling, "no eligible workers available for task")
	ErrWorkerNotFound    = New(CodeWorkerNotFound, CategoryScheduling, "worker not found in registry")
)

// Stream errors
var (
	ErrStreamReadError = New(CodeStreamReadError, CategoryStream, "stream read failed")
	ErrPublishFailed   = New(CodePublishFailed, CategoryStream, "failed to publish scheduling decision")
	ErrAckFailed       = New(CodeAckFailed, CategoryStream, "failed to acknowledge stream entry")
)

// Helper functions for common error scenarios

// IsConfigurationError checks if error is configuration-related
func IsConfigurationError(err error) bool {
	if serr, ok := err.(*SchedulerError); ok {
		return serr.Category == CategoryConfig
	}
	return false
}

// IsValidationError checks if error is validation-related
func IsValidationError(err error) bool {
	if serr, ok := err.(*SchedulerError); ok {
		return serr.Category == CategoryValidation
	}
	return false
}

// IsPredictionError checks if error is prediction-related
func IsPredictionError(err error) bool {
	if serr, ok := err.(*SchedulerError); ok {
		return serr.Category == CategoryPrediction
	}
	return false
}

// IsSchedulingError checks if error is scheduling-related
func IsSchedulingError(err error) bool {
	if serr, ok := err.(*SchedulerError); ok {
		return serr.Category == CategoryScheduling
	}
	return false
}

// IsStreamError checks if error is stream-related
func IsStreamError(err error) bool {
	if serr, ok := err.(*SchedulerError); ok {
		return serr.Category == CategoryStream
	}
	return false
}

// IsCircuitOpenError checks if error signals the breaker is open
func IsCircuitOpenError(err error) bool {
	if serr, ok := err.(*SchedulerError); ok {
		return serr.Code == CodeCircuitOpen
	}
	return false
}

// IsRetryableError checks if error is retryable
func IsRetryableError(err error) bool {
	if serr, ok := err.(*SchedulerError); ok {
		return serr.IsRetryable()
	}
	return false
}
