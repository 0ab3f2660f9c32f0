package core

import (
	"fmt"
	"time"

	"github.com/kart-io/predictive-scheduler/internal"
)

// Task represents a unit of work read off the task ingress stream.
type Task struct {
	ID                   string            `json:"id"`
	Type                 string            `json:"type"`
	Priority             int               `json:"priority"`
	Payload              []byte            `json:"payload"`
	RequiredCapabilities []string          `json:"requiredCapabilities,omitempty"`
	MaxRetries           int               `json:"maxRetries,omitempty"`
	Timeout              time.Duration     `json:"timeout,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
}

// WorkerStatus represents the lifecycle state of a registered worker.
type WorkerStatus string

const (
	WorkerIdle     WorkerStatus = "idle"
	WorkerBusy     WorkerStatus = "busy"
	WorkerDraining WorkerStatus = "draining"
	WorkerOffline  WorkerStatus = "offline"
)

// WorkerState is the registry's live record for a single worker. The
// registry is the sole writer; every other component receives a copy.
type WorkerState struct {
	ID              string       `json:"id"`
	Status          WorkerStatus `json:"status"`
	Capabilities    []string     `json:"capabilities,omitempty"`
	Load            float64      `json:"load"`
	ActiveTasks     int          `json:"activeTasks"`
	MaxConcurrency  int          `json:"maxConcurrency"`
	LastHeartbeat   time.Time    `json:"lastHeartbeat"`
}

// HealthClass is the availability calculator's classification of a worker.
type HealthClass string

const (
	HealthHealthy   HealthClass = "healthy"
	HealthDegraded  HealthClass = "degraded"
	HealthUnhealthy HealthClass = "unhealthy"
	HealthRemoved   HealthClass = "removed"
)

// WorkerCapacity is the derived capacity snapshot maintained alongside a
// WorkerState: queue depth, projected availability, and rolling duration.
type WorkerCapacity struct {
	WorkerID        string      `json:"workerId"`
	QueueDepth      int         `json:"queueDepth"`
	EstimatedFreeAt time.Time   `json:"estimatedFreeAt"`
	Health          HealthClass `json:"health"`
	AvgTaskDuration time.Duration `json:"avgTaskDuration"`
}

// EMAState is the predictor's per-task-type learning state.
type EMAState struct {
	TaskType    string        `json:"taskType"`
	EMA         float64       `json:"ema"`
	SampleCount int64         `json:"sampleCount"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

// TaskPrediction is the predictor's output for a single task.
type TaskPrediction struct {
	TaskID            string  `json:"taskId"`
	EstimatedDuration  time.Duration `json:"estimatedDurationMs"`
	Confidence        float64 `json:"confidence"`
	RecommendedWorker string  `json:"recommendedWorker,omitempty"`
}

// DecisionReason identifies why a worker was chosen for a task.
type DecisionReason string

const (
	ReasonPrediction            DecisionReason = "prediction"
	ReasonFallbackRoundRobin    DecisionReason = "fallback_round_robin"
	ReasonFallbackCircuitBreaker DecisionReason = "fallback_circuit_breaker"
)

// SchedulingDecision is the dispatcher's output: which worker got which task, and why.
type SchedulingDecision struct {
	TaskID      string          `json:"taskId"`
	WorkerID    string          `json:"workerId"`
	Timestamp   time.Time       `json:"timestamp"`
	UsedFallback bool           `json:"usedFallback"`
	Reason      DecisionReason  `json:"reason"`
	Prediction  *TaskPrediction `json:"prediction,omitempty"`
}

// CircuitBreakerState is the dispatcher-owned predictor circuit breaker.
// It is process-local and ephemeral; no snapshot consistency is required
// across processes.
type CircuitBreakerState struct {
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastFailure         time.Time `json:"lastFailure"`
	Open                bool      `json:"open"`
}

// PredictionSample is one entry in the accuracy tracker's rolling window.
type PredictionSample struct {
	TaskType       string        `json:"taskType"`
	Predicted      time.Duration `json:"predicted"`
	Actual         time.Duration `json:"actual"`
	Timestamp      time.Time     `json:"timestamp"`
	WithinThreshold bool         `json:"withinThreshold"`
}

// NewTask creates a new task with a generated id and CreatedAt set to now.
func NewTask(taskType string, priority int, payload []byte) *Task {
	return &Task{
		ID:        internal.GenerateID(),
		Type:      taskType,
		Priority:  priority,
		Payload:   payload,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now(),
	}
}

// Validate checks structural invariants on a task decoded from the stream.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if t.Priority < 0 {
		return fmt.Errorf("task priority must be non-negative")
	}
	return nil
}

// ClampLoad clamps a raw load reading to [0,1], matching the registry's
// write-time clamp on WorkerState.Load.
func ClampLoad(load float64) float64 {
	if load < 0 {
		return 0
	}
	if load > 1 {
		return 1
	}
	return load
}

// Eligible reports whether the worker is in a status that the registry,
// scorer, and fallback scheduler all treat as selectable.
func (w *WorkerState) Eligible() bool {
	return w.Status != WorkerOffline && w.Status != WorkerDraining
}

// HasCapabilities reports whether the worker's capability set is a
// superset of the required set.
func (w *WorkerState) HasCapabilities(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(w.Capabilities))
	for _, c := range w.Capabilities {
		have[c] = struct{}{}
	}
	for _, r := range required {
		if _, ok := have[r]; !ok {
			return false
		}
	}
	return true
}
