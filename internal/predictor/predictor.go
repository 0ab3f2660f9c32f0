// Package predictor implements the heuristic duration predictor: an
// in-memory per-task-type EMA map backed by an external snapshot store.
// Predict is pure and O(1); Feedback mutates state and occasionally
// triggers a snapshot. Persistence failures are never fatal.
package predictor

import (
	"context"
	"sync"
	"time"

	"github.com/kart-io/predictive-scheduler/core"
	"github.com/kart-io/predictive-scheduler/internal/ema"
	"github.com/kart-io/predictive-scheduler/logger"
	"github.com/kart-io/predictive-scheduler/pkg/stream"
)

// Predictor is the tagged interface the dispatcher depends on: predict
// plus optional feedback, plus a readiness probe. NoOpPredictor is its
// identity element.
type Predictor interface {
	Predict(ctx context.Context, task *core.Task) (core.TaskPrediction, error)
	Feedback(ctx context.Context, taskType string, actual time.Duration)
	Ready() bool
}

// NoOpPredictor always returns the configured default duration with zero
// confidence and ignores feedback. It is used in tests and as a
// bootstrapping placeholder.
type NoOpPredictor struct {
	DefaultDuration time.Duration
}

func (n NoOpPredictor) Predict(_ context.Context, task *core.Task) (core.TaskPrediction, error) {
	return core.TaskPrediction{TaskID: task.ID, EstimatedDuration: n.DefaultDuration, Confidence: 0}, nil
}

func (n NoOpPredictor) Feedback(context.Context, string, time.Duration) {}

func (n NoOpPredictor) Ready() bool { return true }

// Heuristic is the EMA-backed predictor implementation.
type Heuristic struct {
	mu sync.RWMutex

	states map[string]*core.EMAState

	alpha               float64
	defaultDuration     time.Duration
	confidenceThreshold int64
	snapshotInterval    int64
	snapshotCounter     int64

	store stream.PredictionStore
	log   logger.Interface
}

// NewHeuristic builds a Heuristic predictor and attempts a warm start from
// store. A load failure is logged and the predictor starts with an empty
// map; it is still ready immediately.
func NewHeuristic(ctx context.Context, store stream.PredictionStore, alpha float64, defaultDuration time.Duration, confidenceThreshold, snapshotInterval int64, log logger.Interface) *Heuristic {
	if log == nil {
		log = logger.Discard
	}
	h := &Heuristic{
		states:              make(map[string]*core.EMAState),
		alpha:               alpha,
		defaultDuration:     defaultDuration,
		confidenceThreshold: confidenceThreshold,
		snapshotInterval:    snapshotInterval,
		store:               store,
		log:                 log,
	}

	if store == nil {
		return h
	}

	doc, err := store.Load(ctx)
	if err != nil {
		log.Warn(ctx, "predictor warm start failed, continuing with empty state", "error", err)
		return h
	}

	for taskType, snap := range doc.Predictions {
		h.states[taskType] = &core.EMAState{
			TaskType:    taskType,
			EMA:         snap.EMA,
			SampleCount: snap.SampleCount,
			LastUpdated: snap.LastUpdated,
		}
	}
	return h
}

// Predict returns an O(1) lookup result. Unknown types get the configured
// default duration with zero confidence. Predict never blocks on I/O.
func (h *Heuristic) Predict(_ context.Context, task *core.Task) (core.TaskPrediction, error) {
	h.mu.RLock()
	state, ok := h.states[task.Type]
	h.mu.RUnlock()

	if !ok {
		return core.TaskPrediction{
			TaskID:            task.ID,
			EstimatedDuration: h.defaultDuration,
			Confidence:        0,
		}, nil
	}

	return core.TaskPrediction{
		TaskID:            task.ID,
		EstimatedDuration: time.Duration(state.EMA),
		Confidence:        ema.Confidence(state.SampleCount, h.confidenceThreshold),
	}, nil
}

// Feedback folds an observed duration into the task type's EMA state and
// snapshots to the store every snapshotInterval updates.
func (h *Heuristic) Feedback(ctx context.Context, taskType string, actual time.Duration) {
	h.mu.Lock()
	state, ok := h.states[taskType]
	if !ok {
		state = &core.EMAState{TaskType: taskType}
		h.states[taskType] = state
	}
	state.EMA = ema.Blend(state.EMA, ok, float64(actual), h.alpha)
	state.SampleCount++
	state.LastUpdated = time.Now()
	h.snapshotCounter++
	shouldSnapshot := h.snapshotInterval > 0 && h.snapshotCounter >= h.snapshotInterval
	if shouldSnapshot {
		h.snapshotCounter = 0
	}
	h.mu.Unlock()

	if shouldSnapshot {
		h.snapshot(ctx)
	}
}

// Ready reports whether the predictor can serve predictions; the
// heuristic predictor is always ready once constructed.
func (h *Heuristic) Ready() bool { return true }

// Snapshot persists the full EMA map unconditionally; it is called on
// clean shutdown in addition to the counter-triggered path.
func (h *Heuristic) Snapshot(ctx context.Context) {
	h.snapshot(ctx)
}

func (h *Heuristic) snapshot(ctx context.Context) {
	if h.store == nil {
		return
	}

	h.mu.RLock()
	predictions := make(map[string]stream.PredictionSnapshot, len(h.states))
	for taskType, state := range h.states {
		predictions[taskType] = stream.PredictionSnapshot{
			EMA:         state.EMA,
			SampleCount: state.SampleCount,
			LastUpdated: state.LastUpdated,
		}
	}
	h.mu.RUnlock()

	doc := stream.PredictionDocument{
		Version:     1,
		SavedAt:     time.Now(),
		Predictions: predictions,
	}

	if err := h.store.Save(ctx, doc); err != nil {
		h.log.Warn(ctx, "predictor snapshot failed, continuing in-memory", "error", err)
	}
}

// State returns a copy of the current per-type EMA state, for inspection
// and testing.
func (h *Heuristic) State(taskType string) (core.EMAState, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.states[taskType]
	if !ok {
		return core.EMAState{}, false
	}
	return *s, true
}
