// Package scorer implements the multi-objective worker-selection function:
// a pure, per-decision computation over a task, its eligible workers, and
// an optional prediction. It performs no I/O and holds no state across
// calls; the weight vector is supplied fresh each time.
package scorer

import (
	"fmt"
	"sort"
	"time"

	"github.com/kart-io/predictive-scheduler/core"
	"github.com/kart-io/predictive-scheduler/pkg/config"
)

// defaultPredictedDuration is used for the wait-score computation when no
// prediction is available.
const defaultPredictedDuration = 5 * time.Second

// Candidate is one worker's computed score, retained so Result can report
// the full ranked alternative list.
type Candidate struct {
	WorkerID string
	Score    float64
}

// Result is the scorer's output for one decision.
type Result struct {
	Decided      bool
	WorkerID     string
	Score        float64
	Reasoning    string
	Alternatives []Candidate
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Score ranks the eligible workers for task against the configured
// weights, and returns the best one. Callers are expected to have already
// filtered workers to the eligible subset (status, staleness, capacity,
// capability); Score only ranks what it is given.
func Score(task *core.Task, workers []core.WorkerState, prediction *core.TaskPrediction, weights config.Weights, maxWait time.Duration, maxPriority int) Result {
	if len(workers) == 0 {
		return Result{Decided: false}
	}

	predictedDuration := defaultPredictedDuration
	if prediction != nil && prediction.EstimatedDuration > 0 {
		predictedDuration = prediction.EstimatedDuration
	}

	candidates := make([]Candidate, 0, len(workers))
	for _, w := range workers {
		estimatedWait := time.Duration(w.ActiveTasks) * predictedDuration
		waitRatio := clamp(float64(estimatedWait)/float64(maxWait), 0, 1)
		waitScore := 1 - waitRatio

		loadScore := 1 - clamp(w.Load, 0, 1)

		priorityScore := clamp(float64(task.Priority), 0, float64(maxPriority)) / float64(maxPriority)

		score := weights.Wait*waitScore + weights.Load*loadScore + weights.Priority*priorityScore
		candidates = append(candidates, Candidate{WorkerID: w.ID, Score: score})
	}

	// Stable tie-break: sort by score descending, then by worker id
	// ascending so repeated calls on equal inputs pick the same worker.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].WorkerID < candidates[j].WorkerID
	})

	best := candidates[0]
	return Result{
		Decided:      true,
		WorkerID:     best.WorkerID,
		Score:        best.Score,
		Reasoning:    fmt.Sprintf("selected %s with score %.4f from %d eligible workers", best.WorkerID, best.Score, len(candidates)),
		Alternatives: candidates,
	}
}
