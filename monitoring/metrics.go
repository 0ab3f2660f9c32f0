package monitoring

import (
	"sync"
	"time"

	"github.com/kart-io/predictive-scheduler/core"
)

// Metrics holds dispatcher-facing scheduling metrics: how many tasks were
// dispatched and by which path, which workers are currently healthy, and
// rolling decision-latency figures. It is a counting sink, not the
// accuracy/drift tracker (that lives in the feedback package) — this one
// answers "is the scheduler dispatching", not "are predictions good".
type Metrics struct {
	mu sync.RWMutex

	TotalDispatched     int64                          `json:"total_dispatched"`
	TotalFailed         int64                          `json:"total_failed"`
	DispatchesByReason  map[core.DecisionReason]int64   `json:"dispatches_by_reason"`
	FailuresByWorker    map[string]int64                `json:"failures_by_worker"`
	LastErrors          map[string]string                `json:"last_errors"`
	AvgDecisionDuration time.Duration                    `json:"avg_decision_duration"`
	MaxDecisionDuration time.Duration                    `json:"max_decision_duration"`
	WorkerHealth        map[string]bool                  `json:"worker_health"`
	StartTime           time.Time                         `json:"start_time"`
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		DispatchesByReason: make(map[core.DecisionReason]int64),
		FailuresByWorker:   make(map[string]int64),
		LastErrors:         make(map[string]string),
		WorkerHealth:       make(map[string]bool),
		StartTime:          time.Now(),
	}
}

// RecordDispatch records the outcome of one dispatchTask call.
func (m *Metrics) RecordDispatch(reason core.DecisionReason, workerID string, success bool, duration time.Duration, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		m.TotalDispatched++
		m.DispatchesByReason[reason]++
	} else {
		m.TotalFailed++
		if workerID != "" {
			m.FailuresByWorker[workerID]++
		}
		if errMsg != "" {
			m.LastErrors[workerID] = errMsg
		}
	}

	total := m.TotalDispatched + m.TotalFailed
	if total > 0 {
		m.AvgDecisionDuration = time.Duration((int64(m.AvgDecisionDuration)*(total-1) + int64(duration)) / total)
	}
	if duration > m.MaxDecisionDuration {
		m.MaxDecisionDuration = duration
	}
}

// RecordWorkerHealth records the latest health observation for a worker.
func (m *Metrics) RecordWorkerHealth(workerID string, healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkerHealth[workerID] = healthy
}

// GetSuccessRate returns the overall dispatch success rate
func (m *Metrics) GetSuccessRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := m.TotalDispatched + m.TotalFailed
	if total == 0 {
		return 1.0
	}
	return float64(m.TotalDispatched) / float64(total)
}

// GetUptime returns the uptime since metrics started
func (m *Metrics) GetUptime() time.Duration {
	return time.Since(m.StartTime)
}

// GetSnapshot returns a complete snapshot of current metrics
func (m *Metrics) GetSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := m.TotalDispatched + m.TotalFailed
	successRate := 1.0
	if total > 0 {
		successRate = float64(m.TotalDispatched) / float64(total)
	}

	return map[string]interface{}{
		"total_dispatched":      m.TotalDispatched,
		"total_failed":          m.TotalFailed,
		"success_rate":          successRate,
		"dispatches_by_reason":  m.DispatchesByReason,
		"failures_by_worker":    m.FailuresByWorker,
		"last_errors":           m.LastErrors,
		"avg_decision_duration": m.AvgDecisionDuration.String(),
		"max_decision_duration": m.MaxDecisionDuration.String(),
		"worker_health":         m.WorkerHealth,
		"uptime":                m.GetUptime().String(),
	}
}
