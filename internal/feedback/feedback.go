// Package feedback implements the completion subscriber: it closes the
// learning loop by feeding actual durations back to the predictor,
// detecting prediction drift, and tracking rolling accuracy.
package feedback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/predictive-scheduler/core"
	"github.com/kart-io/predictive-scheduler/internal/events"
	"github.com/kart-io/predictive-scheduler/internal/predictor"
	"github.com/kart-io/predictive-scheduler/logger"
	"github.com/kart-io/predictive-scheduler/pkg/stream"
)

// Boundaries for the ratio = actual/predicted drift band. Outside
// [driftLower, driftUpper] is drift; outside [minorBoundLow,
// minorBoundHigh] on top of that is major rather than minor.
const (
	minorBoundLow  = 1.0 / 3.0
	minorBoundHigh = 3.0
)

// accuracyCheckEvery is how often, in processed completions, the rolling
// accuracy window is checked for an accuracy_warning.
const accuracyCheckEvery = 100

// Config carries the feedback pipeline's tunables.
type Config struct {
	AccuracyWindowSize int
	AccuracyThreshold  float64
	DriftLower         float64
	DriftUpper         float64
}

// Subscriber consumes a completion stream, updates predictor state, and
// tracks prediction accuracy in a bounded rolling window.
type Subscriber struct {
	predictor predictor.Predictor
	bus       *events.Bus
	cfg       Config
	log       logger.Interface

	mu      sync.Mutex
	window  []core.PredictionSample
	head    int
	count   int
	total   int

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Subscriber. AccuracyWindowSize must be positive; a
// non-positive value is clamped to the default of 1000.
func New(pred predictor.Predictor, bus *events.Bus, cfg Config, log logger.Interface) *Subscriber {
	if log == nil {
		log = logger.Discard
	}
	if cfg.AccuracyWindowSize <= 0 {
		cfg.AccuracyWindowSize = 1000
	}
	if cfg.AccuracyThreshold <= 0 {
		cfg.AccuracyThreshold = 0.25
	}
	if cfg.DriftLower <= 0 {
		cfg.DriftLower = 0.5
	}
	if cfg.DriftUpper <= 0 {
		cfg.DriftUpper = 2.0
	}
	return &Subscriber{
		predictor: pred,
		bus:       bus,
		cfg:       cfg,
		log:       log,
		window:    make([]core.PredictionSample, cfg.AccuracyWindowSize),
		stopCh:    make(chan struct{}),
	}
}

// Start begins consuming src on its own goroutine until Stop is called
// or ctx is cancelled. Once stopped, any records still arriving are
// silently dropped, matching the "processing is a no-op" requirement.
func (s *Subscriber) Start(ctx context.Context, src stream.CompletionStream) {
	s.wg.Add(1)
	go s.consume(ctx, src)
}

func (s *Subscriber) consume(ctx context.Context, src stream.CompletionStream) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			src.Cancel()
			return
		case <-ctx.Done():
			src.Cancel()
			return
		case rec, ok := <-src.Records():
			if !ok {
				return
			}
			s.handleRecord(ctx, rec)
		case err, ok := <-src.Errors():
			if !ok {
				continue
			}
			s.log.Warn(ctx, "completion stream error", "error", err)
		}
	}
}

func (s *Subscriber) handleRecord(ctx context.Context, rec stream.CompletionRecord) {
	select {
	case <-s.stopCh:
		return
	default:
	}

	actual := time.Duration(rec.DurationMs) * time.Millisecond
	now := rec.CompletedAt
	if now.IsZero() {
		now = time.Now()
	}

	if rec.HasPredictedDuration && rec.PredictedDurationMs > 0 {
		predicted := time.Duration(rec.PredictedDurationMs) * time.Millisecond
		s.recordSample(rec.TaskType, predicted, actual, now)
	}

	s.predictor.Feedback(ctx, rec.TaskType, actual)
	s.bus.EmitFeedback(events.FeedbackEvent{Type: events.PredictionUpdated, TaskType: rec.TaskType, Timestamp: now})

	s.mu.Lock()
	s.total++
	checkAccuracy := s.total%accuracyCheckEvery == 0
	s.mu.Unlock()

	if checkAccuracy {
		s.checkAccuracy(now)
	}
}

func (s *Subscriber) recordSample(taskType string, predicted, actual time.Duration, at time.Time) {
	ratio := float64(actual) / float64(predicted)
	delta := float64(actual-predicted) / float64(predicted)
	if delta < 0 {
		delta = -delta
	}
	withinThreshold := delta <= s.cfg.AccuracyThreshold

	sample := core.PredictionSample{
		TaskType:        taskType,
		Predicted:       predicted,
		Actual:          actual,
		Timestamp:       at,
		WithinThreshold: withinThreshold,
	}

	s.mu.Lock()
	s.window[s.head] = sample
	s.head = (s.head + 1) % len(s.window)
	if s.count < len(s.window) {
		s.count++
	}
	s.mu.Unlock()

	severity := classifyDrift(ratio, s.cfg.DriftLower, s.cfg.DriftUpper)
	if severity == events.DriftNone {
		return
	}
	s.bus.EmitFeedback(events.FeedbackEvent{
		Type:      events.DriftDetected,
		TaskType:  taskType,
		Severity:  severity,
		Timestamp: at,
		Detail:    fmt.Sprintf("ratio=%.3f predicted=%s actual=%s", ratio, predicted, actual),
	})
}

// classifyDrift reports none when ratio is within [lower, upper], minor
// when it breaches that band but stays within [1/3, 3], and major
// beyond that.
func classifyDrift(ratio, lower, upper float64) events.DriftSeverity {
	if ratio >= lower && ratio <= upper {
		return events.DriftNone
	}
	if ratio >= minorBoundLow && ratio <= minorBoundHigh {
		return events.DriftMinor
	}
	return events.DriftMajor
}

func (s *Subscriber) checkAccuracy(at time.Time) {
	s.mu.Lock()
	count := s.count
	if count == 0 {
		s.mu.Unlock()
		return
	}
	within := 0
	for i := 0; i < count; i++ {
		if s.window[i].WithinThreshold {
			within++
		}
	}
	s.mu.Unlock()

	accuracy := float64(within) / float64(count)
	if accuracy < 0.8 {
		s.bus.EmitFeedback(events.FeedbackEvent{
			Type:      events.AccuracyWarning,
			Timestamp: at,
			Detail:    fmt.Sprintf("accuracy=%.3f over %d samples", accuracy, count),
		})
	}
}

// Accuracy returns the current rolling accuracy and sample count.
func (s *Subscriber) Accuracy() (float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return 0, 0
	}
	within := 0
	for i := 0; i < s.count; i++ {
		if s.window[i].WithinThreshold {
			within++
		}
	}
	return float64(within) / float64(s.count), s.count
}

// Stop halts processing; it is safe to call more than once.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Wait blocks until the consume loop has returned.
func (s *Subscriber) Wait() {
	s.wg.Wait()
}
