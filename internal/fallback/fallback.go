// Package fallback implements the deterministic non-predictive scheduling
// strategies the dispatcher uses when the predictor call returns an error,
// when the open circuit breaker skips the predictor, or when the scorer
// finds no eligible worker.
package fallback

import (
	"sort"
	"sync"
	"time"

	"github.com/kart-io/predictive-scheduler/core"
)

// Decision is a fallback strategy's output; Decided is false when no
// eligible worker exists.
type Decision struct {
	Decided  bool
	WorkerID string
}

// RoundRobin holds a rotating cursor over the eligible-workers list,
// recomputed fresh on every call under the caller's current capability
// filter. It is safe for concurrent use.
type RoundRobin struct {
	mu     sync.Mutex
	cursor int
}

// NewRoundRobin returns a round-robin scheduler starting at cursor 0.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Next advances the cursor and returns the worker at that position. The
// list is expected pre-sorted by id for determinism; an empty list yields
// a no-decision.
func (rr *RoundRobin) Next(workers []core.WorkerState) Decision {
	if len(workers) == 0 {
		return Decision{Decided: false}
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	idx := rr.cursor % len(workers)
	rr.cursor++
	return Decision{Decided: true, WorkerID: workers[idx].ID}
}

// LowestLoad picks the eligible worker with the lowest current load,
// breaking ties by the smaller active-tasks/max-concurrency ratio.
func LowestLoad(workers []core.WorkerState) Decision {
	if len(workers) == 0 {
		return Decision{Decided: false}
	}

	sorted := make([]core.WorkerState, len(workers))
	copy(sorted, workers)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Load != sorted[j].Load {
			return sorted[i].Load < sorted[j].Load
		}
		return utilization(sorted[i]) < utilization(sorted[j])
	})

	return Decision{Decided: true, WorkerID: sorted[0].ID}
}

func utilization(w core.WorkerState) float64 {
	if w.MaxConcurrency == 0 {
		return 0
	}
	return float64(w.ActiveTasks) / float64(w.MaxConcurrency)
}

// BuildDecision turns a fallback Decision into a full SchedulingDecision
// record, tagged with the given reason.
func BuildDecision(taskID string, d Decision, reason core.DecisionReason, now time.Time) *core.SchedulingDecision {
	if !d.Decided {
		return nil
	}
	return &core.SchedulingDecision{
		TaskID:       taskID,
		WorkerID:     d.WorkerID,
		Timestamp:    now,
		UsedFallback: true,
		Reason:       reason,
	}
}
