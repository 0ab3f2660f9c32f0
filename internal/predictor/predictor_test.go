package predictor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/predictive-scheduler/core"
	"github.com/kart-io/predictive-scheduler/pkg/stream"
)

type fakeStore struct {
	doc     stream.PredictionDocument
	failing bool
	saves   int
}

func (f *fakeStore) Save(_ context.Context, doc stream.PredictionDocument) error {
	if f.failing {
		return fmt.Errorf("store unavailable")
	}
	f.doc = doc
	f.saves++
	return nil
}

func (f *fakeStore) Load(_ context.Context) (stream.PredictionDocument, error) {
	if f.failing {
		return stream.PredictionDocument{}, fmt.Errorf("store unavailable")
	}
	return f.doc, nil
}

func TestNoOpPredictor(t *testing.T) {
	p := NoOpPredictor{DefaultDuration: 5 * time.Second}
	pred, err := p.Predict(context.Background(), &core.Task{ID: "t1"})
	assert.NoError(t, err)
	assert.Equal(t, 5*time.Second, pred.EstimatedDuration)
	assert.Equal(t, 0.0, pred.Confidence)
	assert.True(t, p.Ready())
}

func TestHeuristicPredictUnknownTypeReturnsDefault(t *testing.T) {
	h := NewHeuristic(context.Background(), nil, 0.3, 5*time.Second, 100, 100, nil)

	pred, err := h.Predict(context.Background(), &core.Task{ID: "t1", Type: "unknown"})
	assert.NoError(t, err)
	assert.Equal(t, 5*time.Second, pred.EstimatedDuration)
	assert.Equal(t, 0.0, pred.Confidence)
}

func TestHeuristicFirstSampleSetsEMA(t *testing.T) {
	h := NewHeuristic(context.Background(), nil, 0.3, 5*time.Second, 100, 100, nil)
	h.Feedback(context.Background(), "resize", 1000*time.Millisecond)

	state, ok := h.State("resize")
	assert.True(t, ok)
	assert.Equal(t, float64(1000*time.Millisecond), state.EMA)
	assert.Equal(t, int64(1), state.SampleCount)
}

func TestHeuristicLearningConverges(t *testing.T) {
	h := NewHeuristic(context.Background(), nil, 0.3, 5*time.Second, 100, 1000, nil)

	for i := 0; i < 10; i++ {
		h.Feedback(context.Background(), "resize", 1000*time.Millisecond)
	}

	pred, _ := h.Predict(context.Background(), &core.Task{ID: "t1", Type: "resize"})
	assert.Less(t, pred.EstimatedDuration, 4000*time.Millisecond)
	assert.InDelta(t, 0.10, pred.Confidence, 0.001)
}

func TestHeuristicSnapshotsOnCounterThreshold(t *testing.T) {
	store := &fakeStore{doc: stream.PredictionDocument{Predictions: map[string]stream.PredictionSnapshot{}}}
	h := NewHeuristic(context.Background(), store, 0.3, 5*time.Second, 100, 3, nil)

	h.Feedback(context.Background(), "resize", time.Second)
	h.Feedback(context.Background(), "resize", time.Second)
	assert.Equal(t, 0, store.saves)

	h.Feedback(context.Background(), "resize", time.Second)
	assert.Equal(t, 1, store.saves)
}

func TestHeuristicWarmStart(t *testing.T) {
	store := &fakeStore{doc: stream.PredictionDocument{
		Predictions: map[string]stream.PredictionSnapshot{
			"resize": {EMA: 2000, SampleCount: 50, LastUpdated: time.Now()},
		},
	}}

	h := NewHeuristic(context.Background(), store, 0.3, 5*time.Second, 100, 100, nil)
	pred, _ := h.Predict(context.Background(), &core.Task{ID: "t1", Type: "resize"})
	assert.Equal(t, time.Duration(2000), pred.EstimatedDuration)
	assert.Equal(t, 0.5, pred.Confidence)
}

func TestHeuristicWarmStartFailureStartsEmpty(t *testing.T) {
	store := &fakeStore{failing: true}
	h := NewHeuristic(context.Background(), store, 0.3, 5*time.Second, 100, 100, nil)

	pred, err := h.Predict(context.Background(), &core.Task{ID: "t1", Type: "resize"})
	assert.NoError(t, err)
	assert.Equal(t, 5*time.Second, pred.EstimatedDuration)
}

func TestHeuristicSnapshotFailureIsNonFatal(t *testing.T) {
	store := &fakeStore{failing: true, doc: stream.PredictionDocument{Predictions: map[string]stream.PredictionSnapshot{}}}
	h := NewHeuristic(context.Background(), store, 0.3, 5*time.Second, 100, 1, nil)

	assert.NotPanics(t, func() {
		h.Feedback(context.Background(), "resize", time.Second)
	})

	pred, err := h.Predict(context.Background(), &core.Task{ID: "t1", Type: "resize"})
	assert.NoError(t, err)
	assert.Equal(t, time.Second, pred.EstimatedDuration)
}

func TestHeuristicManualSnapshot(t *testing.T) {
	store := &fakeStore{doc: stream.PredictionDocument{Predictions: map[string]stream.PredictionSnapshot{}}}
	h := NewHeuristic(context.Background(), store, 0.3, 5*time.Second, 100, 1000, nil)

	h.Feedback(context.Background(), "resize", time.Second)
	h.Snapshot(context.Background())

	assert.Equal(t, 1, store.saves)
	assert.Contains(t, store.doc.Predictions, "resize")
}
