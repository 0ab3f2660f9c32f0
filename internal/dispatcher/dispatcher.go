// Package dispatcher drives the hot scheduling loop: read a batch of
// tasks from the stream, predict, score, fall back, publish, and
// acknowledge. It owns the predictor circuit breaker exclusively.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kart-io/predictive-scheduler/core"
	"github.com/kart-io/predictive-scheduler/internal/fallback"
	"github.com/kart-io/predictive-scheduler/internal/predictor"
	"github.com/kart-io/predictive-scheduler/internal/registry"
	"github.com/kart-io/predictive-scheduler/internal/scorer"
	"github.com/kart-io/predictive-scheduler/logger"
	"github.com/kart-io/predictive-scheduler/monitoring"
	"github.com/kart-io/predictive-scheduler/pkg/config"
	"github.com/kart-io/predictive-scheduler/pkg/stream"
)

// ErrNoWorkersAvailable is returned when neither the predictor nor any
// fallback strategy can find an eligible worker.
var ErrNoWorkersAvailable = errors.New("no workers available")

// Result is the outcome of one dispatchTask call.
type Result struct {
	Success  bool
	Decision *core.SchedulingDecision
	Err      error
}

// Dispatcher owns the consume -> predict -> score -> publish -> ack loop
// and the predictor circuit breaker.
type Dispatcher struct {
	tasks     stream.TaskStream
	publisher stream.DispatchPublisher
	registry  *registry.Registry
	predictor predictor.Predictor
	breaker   *Breaker
	metrics   *monitoring.Metrics
	log       logger.Interface

	weights             config.Weights
	maxWait             time.Duration
	maxPriority         int
	heartbeatTimeout    time.Duration
	dispatchPrefix      string
	batchSize           int

	roundRobin *fallback.RoundRobin

	stopped atomic.Bool
}

// New builds a Dispatcher from its collaborators and config.
func New(
	tasks stream.TaskStream,
	publisher stream.DispatchPublisher,
	reg *registry.Registry,
	pred predictor.Predictor,
	cfg *config.Config,
	metrics *monitoring.Metrics,
) *Dispatcher {
	log := cfg.Logger
	if log == nil {
		log = logger.Discard
	}
	return &Dispatcher{
		tasks:            tasks,
		publisher:        publisher,
		registry:         reg,
		predictor:        pred,
		breaker:          NewBreaker(cfg.FallbackThreshold, 10),
		metrics:          metrics,
		log:              log,
		weights:          cfg.Weights,
		maxWait:          cfg.MaxWait,
		maxPriority:      cfg.MaxPriority,
		heartbeatTimeout: cfg.HeartbeatTimeout,
		dispatchPrefix:   cfg.DispatchPrefix,
		batchSize:        10,
		roundRobin:       fallback.NewRoundRobin(),
	}
}

// Run drives the loop until ctx is cancelled or Stop is called. Each
// iteration reads a batch (blocking up to the stream's configured block
// duration), dispatches each message, and checks the stop flag.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if d.stopped.Load() || ctx.Err() != nil {
			return
		}

		records, err := d.tasks.Read(ctx, d.batchSize)
		if err != nil {
			d.log.Error(ctx, "stream read error, retrying", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, rec := range records {
			d.processRecord(ctx, rec)
		}
	}
}

// Stop sets the loop-exit flag checked at every iteration.
func (d *Dispatcher) Stop() {
	d.stopped.Store(true)
}

func (d *Dispatcher) processRecord(ctx context.Context, rec stream.TaskRecord) {
	task := &core.Task{
		ID:        rec.ID,
		Type:      rec.Type,
		Priority:  rec.Priority,
		Payload:   rec.Payload,
		Metadata:  rec.Metadata,
		CreatedAt: rec.CreatedAt,
	}
	if err := task.Validate(); err != nil {
		d.log.Error(ctx, "malformed task payload, draining", "entryId", rec.EntryID, "error", err)
		_ = d.tasks.Ack(ctx, rec.EntryID)
		return
	}

	start := time.Now()
	result := d.dispatchTask(ctx, task)
	duration := time.Since(start)

	reason := core.ReasonFallbackRoundRobin
	if result.Decision != nil {
		reason = result.Decision.Reason
	}
	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	workerID := ""
	if result.Decision != nil {
		workerID = result.Decision.WorkerID
	}
	d.metrics.RecordDispatch(reason, workerID, result.Success, duration, errMsg)

	d.log.Trace(ctx, start, func() (string, int64) {
		dispatched := int64(0)
		if result.Success {
			dispatched = 1
		}
		return fmt.Sprintf("dispatch task=%s reason=%s worker=%s", task.ID, reason, workerID), dispatched
	}, result.Err)

	if !result.Success {
		d.log.Warn(ctx, "dispatch failed, message left unacked", "taskId", task.ID, "error", result.Err)
		return
	}

	_ = d.tasks.Ack(ctx, rec.EntryID)
}

// dispatchTask implements the predict/score/fallback/publish protocol.
// The stream message is acknowledged by the caller only after a
// successful publish, so a publish failure leaves it for redelivery.
func (d *Dispatcher) dispatchTask(ctx context.Context, task *core.Task) Result {
	decision := d.decide(ctx, task)
	if decision == nil {
		return Result{Success: false, Err: ErrNoWorkersAvailable}
	}

	payload, err := json.Marshal(map[string]interface{}{
		"taskId":     task.ID,
		"task":       task,
		"assignedAt": decision.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return Result{Success: false, Decision: decision, Err: fmt.Errorf("marshal dispatch payload: %w", err)}
	}

	if err := d.publisher.Publish(ctx, decision.WorkerID, payload); err != nil {
		return Result{Success: false, Decision: decision, Err: fmt.Errorf("publish failed: %w", err)}
	}

	return Result{Success: true, Decision: decision}
}

// decide chooses a worker for task. A predictor call that returns
// without error is always treated as a breaker-resetting success; the
// heuristic predictor never populates RecommendedWorker (worker
// selection is the scorer's job), so the usual path scores the
// eligible set using the predicted duration. A future predictor that
// does name a worker gets that recommendation honored directly, as
// long as the worker is still registered and eligible.
func (d *Dispatcher) decide(ctx context.Context, task *core.Task) *core.SchedulingDecision {
	now := time.Now()

	if d.breaker.ShouldAttemptPredictor() {
		prediction, err := d.predictor.Predict(ctx, task)
		if err != nil {
			d.breaker.RecordFailure(now)
			d.log.Warn(ctx, "predictor failed", "taskId", task.ID, "error", err)
		} else {
			d.breaker.RecordSuccess()
			if prediction.RecommendedWorker != "" {
				if w, ok := d.registry.Get(prediction.RecommendedWorker); ok && w.Eligible() {
					return &core.SchedulingDecision{
						TaskID:       task.ID,
						WorkerID:     w.ID,
						Timestamp:    now,
						UsedFallback: false,
						Reason:       core.ReasonPrediction,
						Prediction:   &prediction,
					}
				}
			}
			if decision := d.scoreAndDecide(task, &prediction, now); decision != nil {
				return decision
			}
		}
	}

	reason := core.ReasonFallbackRoundRobin
	if d.breaker.Open() {
		reason = core.ReasonFallbackCircuitBreaker
	}

	eligible := d.registry.Available(now, d.heartbeatTimeout, task.RequiredCapabilities)
	fb := d.roundRobin.Next(eligible)
	return fallback.BuildDecision(task.ID, fb, reason, now)
}

func (d *Dispatcher) scoreAndDecide(task *core.Task, prediction *core.TaskPrediction, now time.Time) *core.SchedulingDecision {
	eligible := d.registry.Available(now, d.heartbeatTimeout, task.RequiredCapabilities)
	result := scorer.Score(task, eligible, prediction, d.weights, d.maxWait, d.maxPriority)
	if !result.Decided {
		return nil
	}
	return &core.SchedulingDecision{
		TaskID:       task.ID,
		WorkerID:     result.WorkerID,
		Timestamp:    now,
		UsedFallback: false,
		Reason:       core.ReasonPrediction,
		Prediction:   prediction,
	}
}

// Breaker exposes the circuit breaker's current state for observability.
func (d *Dispatcher) BreakerState() core.CircuitBreakerState {
	return d.breaker.State()
}
