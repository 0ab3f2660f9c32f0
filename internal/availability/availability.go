// Package availability implements the pure telemetry-to-capacity mapping
// used by the heartbeat subscriber: current load, estimated-free-at, and
// health classification. Nothing here performs I/O or holds state beyond
// what is passed in.
package availability

import (
	"time"

	"github.com/kart-io/predictive-scheduler/core"
	"github.com/kart-io/predictive-scheduler/internal/ema"
)

// durationAlpha is the fixed blend factor for the rolling average task
// duration used to compute estimated-free-at. It is distinct from the
// predictor's configurable alpha and is not runtime-tunable.
const durationAlpha = 0.1

// SignificantLoadDelta is the |Δload| threshold that gates a
// worker_load_changed event.
const SignificantLoadDelta = 0.1

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CurrentLoad combines CPU and memory utilization into a single load
// figure in [0,1], weighting CPU more heavily.
func CurrentLoad(cpuUsage, memoryUsage float64) float64 {
	return 0.6*clampUnit(cpuUsage) + 0.4*clampUnit(memoryUsage)
}

// EstimatedFreeAt projects when a worker will next have capacity, given
// its queue depth and rolling average task duration.
func EstimatedFreeAt(now time.Time, queueDepth int, avgTaskDuration time.Duration) time.Time {
	if queueDepth <= 0 {
		return now
	}
	return now.Add(time.Duration(queueDepth) * avgTaskDuration)
}

// UpdateAvgTaskDuration folds a new observed task duration into the
// rolling average with the fixed duration-alpha.
func UpdateAvgTaskDuration(current time.Duration, hasPrior bool, observed time.Duration) time.Duration {
	return ema.BlendDuration(current, hasPrior, observed, durationAlpha)
}

// ClassifyHealth applies the ordered health-classification rules: staleness
// dominates load, and removal dominates unhealthy.
func ClassifyHealth(age time.Duration, load float64, unhealthyTimeout, removedTimeout time.Duration) core.HealthClass {
	switch {
	case age >= removedTimeout:
		return core.HealthRemoved
	case age >= unhealthyTimeout:
		return core.HealthUnhealthy
	case load >= 0.9:
		return core.HealthDegraded
	default:
		return core.HealthHealthy
	}
}

// SignificantLoadChange reports whether the load moved enough to warrant
// a worker_load_changed event.
func SignificantLoadChange(previous, current float64) bool {
	delta := current - previous
	if delta < 0 {
		delta = -delta
	}
	return delta >= SignificantLoadDelta
}
