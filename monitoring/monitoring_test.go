package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/predictive-scheduler/core"
)

func TestNewMetrics(t *testing.T) {
	metrics := NewMetrics()
	assert.NotNil(t, metrics)
	assert.NotNil(t, metrics.DispatchesByReason)
	assert.NotNil(t, metrics.FailuresByWorker)
	assert.NotNil(t, metrics.LastErrors)
	assert.NotNil(t, metrics.WorkerHealth)
	assert.Equal(t, int64(0), metrics.TotalDispatched)
	assert.Equal(t, int64(0), metrics.TotalFailed)
	assert.False(t, metrics.StartTime.IsZero())
}

func TestRecordDispatch(t *testing.T) {
	metrics := NewMetrics()

	metrics.RecordDispatch(core.ReasonPrediction, "w1", true, 100*time.Millisecond, "")
	assert.Equal(t, int64(1), metrics.TotalDispatched)
	assert.Equal(t, int64(0), metrics.TotalFailed)
	assert.Equal(t, int64(1), metrics.DispatchesByReason[core.ReasonPrediction])
	assert.Equal(t, 100*time.Millisecond, metrics.AvgDecisionDuration)
	assert.Equal(t, 100*time.Millisecond, metrics.MaxDecisionDuration)

	metrics.RecordDispatch(core.ReasonFallbackRoundRobin, "w2", false, 50*time.Millisecond, "publish failed")
	assert.Equal(t, int64(1), metrics.TotalDispatched)
	assert.Equal(t, int64(1), metrics.TotalFailed)
	assert.Equal(t, int64(1), metrics.FailuresByWorker["w2"])
	assert.Equal(t, "publish failed", metrics.LastErrors["w2"])

	// Average duration should be updated: (100 + 50) / 2 = 75ms
	assert.Equal(t, 75*time.Millisecond, metrics.AvgDecisionDuration)
	assert.Equal(t, 100*time.Millisecond, metrics.MaxDecisionDuration) // Max unchanged

	metrics.RecordDispatch(core.ReasonPrediction, "w3", true, 200*time.Millisecond, "")
	assert.Equal(t, int64(2), metrics.TotalDispatched)
	assert.Equal(t, int64(1), metrics.TotalFailed)
	assert.Equal(t, int64(2), metrics.DispatchesByReason[core.ReasonPrediction])
	assert.Equal(t, 200*time.Millisecond, metrics.MaxDecisionDuration) // Max updated
}

func TestRecordWorkerHealth(t *testing.T) {
	metrics := NewMetrics()

	metrics.RecordWorkerHealth("w1", true)
	metrics.RecordWorkerHealth("w2", false)
	metrics.RecordWorkerHealth("w3", true)

	assert.True(t, metrics.WorkerHealth["w1"])
	assert.False(t, metrics.WorkerHealth["w2"])
	assert.True(t, metrics.WorkerHealth["w3"])

	metrics.RecordWorkerHealth("w2", true)
	assert.True(t, metrics.WorkerHealth["w2"])
}

func TestGetSuccessRate(t *testing.T) {
	metrics := NewMetrics()

	// Initial success rate should be 1.0 (no dispatches)
	assert.Equal(t, 1.0, metrics.GetSuccessRate())

	metrics.RecordDispatch(core.ReasonPrediction, "w1", true, 100*time.Millisecond, "")
	metrics.RecordDispatch(core.ReasonPrediction, "w2", true, 150*time.Millisecond, "")
	assert.Equal(t, 1.0, metrics.GetSuccessRate())

	metrics.RecordDispatch(core.ReasonFallbackRoundRobin, "w3", false, 50*time.Millisecond, "timeout")
	expectedRate := 2.0 / 3.0
	assert.InDelta(t, expectedRate, metrics.GetSuccessRate(), 0.001)

	metrics.RecordDispatch(core.ReasonFallbackCircuitBreaker, "w4", false, 75*time.Millisecond, "no workers")
	expectedRate = 2.0 / 4.0
	assert.Equal(t, expectedRate, metrics.GetSuccessRate())
}

func TestGetUptime(t *testing.T) {
	metrics := NewMetrics()

	time.Sleep(10 * time.Millisecond)

	uptime := metrics.GetUptime()
	assert.True(t, uptime > 0)
	assert.True(t, uptime < time.Second)
}

func TestGetSnapshot(t *testing.T) {
	metrics := NewMetrics()

	metrics.RecordDispatch(core.ReasonPrediction, "w1", true, 100*time.Millisecond, "")
	metrics.RecordDispatch(core.ReasonFallbackRoundRobin, "w2", false, 50*time.Millisecond, "error")
	metrics.RecordWorkerHealth("w1", true)
	metrics.RecordWorkerHealth("w2", false)

	snapshot := metrics.GetSnapshot()

	assert.Contains(t, snapshot, "total_dispatched")
	assert.Contains(t, snapshot, "total_failed")
	assert.Contains(t, snapshot, "success_rate")
	assert.Contains(t, snapshot, "dispatches_by_reason")
	assert.Contains(t, snapshot, "failures_by_worker")
	assert.Contains(t, snapshot, "last_errors")
	assert.Contains(t, snapshot, "avg_decision_duration")
	assert.Contains(t, snapshot, "max_decision_duration")
	assert.Contains(t, snapshot, "worker_health")
	assert.Contains(t, snapshot, "uptime")

	assert.Equal(t, int64(1), snapshot["total_dispatched"])
	assert.Equal(t, int64(1), snapshot["total_failed"])
	assert.Equal(t, 0.5, snapshot["success_rate"])

	dispatchesByReason := snapshot["dispatches_by_reason"].(map[core.DecisionReason]int64)
	assert.Equal(t, int64(1), dispatchesByReason[core.ReasonPrediction])

	failuresByWorker := snapshot["failures_by_worker"].(map[string]int64)
	assert.Equal(t, int64(1), failuresByWorker["w2"])

	lastErrors := snapshot["last_errors"].(map[string]string)
	assert.Equal(t, "error", lastErrors["w2"])

	workerHealth := snapshot["worker_health"].(map[string]bool)
	assert.True(t, workerHealth["w1"])
	assert.False(t, workerHealth["w2"])

	assert.Equal(t, "75ms", snapshot["avg_decision_duration"])
	assert.Equal(t, "100ms", snapshot["max_decision_duration"])
	assert.IsType(t, "", snapshot["uptime"])
}

func TestMetricsConcurrency(t *testing.T) {
	metrics := NewMetrics()
	const numGoroutines = 50
	const operationsPerGoroutine = 20

	var wg sync.WaitGroup

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < operationsPerGoroutine; j++ {
				worker := "worker" + string(rune('0'+id%5))
				success := j%2 == 0
				duration := time.Duration(id*10+j) * time.Millisecond
				errorMsg := ""
				if !success {
					errorMsg = "test error"
				}
				metrics.RecordDispatch(core.ReasonPrediction, worker, success, duration, errorMsg)
			}
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < operationsPerGoroutine; j++ {
				worker := "health" + string(rune('0'+id%3))
				healthy := j%2 == 0
				metrics.RecordWorkerHealth(worker, healthy)
			}
		}(i)
	}

	wg.Wait()

	totalOperations := int64(numGoroutines * operationsPerGoroutine)
	expectedSuccessful := totalOperations / 2
	expectedFailed := totalOperations - expectedSuccessful

	assert.Equal(t, expectedSuccessful, metrics.TotalDispatched)
	assert.Equal(t, expectedFailed, metrics.TotalFailed)

	assert.True(t, len(metrics.DispatchesByReason) > 0)
	assert.True(t, len(metrics.FailuresByWorker) > 0)
	assert.True(t, len(metrics.WorkerHealth) > 0)

	expectedRate := float64(expectedSuccessful) / float64(totalOperations)
	assert.InDelta(t, expectedRate, metrics.GetSuccessRate(), 0.001)
}
