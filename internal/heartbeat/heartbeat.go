// Package heartbeat implements the heartbeat subscriber: it consumes a
// streaming telemetry source, updates the worker registry and capacity
// map, emits state-transition events, and runs a periodic reaper that
// evicts dead workers.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/kart-io/predictive-scheduler/core"
	"github.com/kart-io/predictive-scheduler/internal/availability"
	"github.com/kart-io/predictive-scheduler/internal/events"
	"github.com/kart-io/predictive-scheduler/internal/registry"
	"github.com/kart-io/predictive-scheduler/logger"
	"github.com/kart-io/predictive-scheduler/pkg/stream"
)

// Config carries the timing thresholds the subscriber and reaper apply.
type Config struct {
	UnhealthyTimeout    time.Duration
	RemovedTimeout      time.Duration
	HealthCheckInterval time.Duration
}

// Subscriber owns the capacity map alongside the registry's worker map;
// it is the single writer for both. Stopping cancels the upstream stream
// and the reaper timer; Stop is idempotent.
type Subscriber struct {
	registry *registry.Registry
	bus      *events.Bus
	cfg      Config
	log      logger.Interface

	mu        sync.Mutex
	capacity  map[string]core.WorkerCapacity
	prevLoad  map[string]float64
	avgDur    map[string]time.Duration
	hasAvgDur map[string]bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Subscriber bound to reg and bus.
func New(reg *registry.Registry, bus *events.Bus, cfg Config, log logger.Interface) *Subscriber {
	if log == nil {
		log = logger.Discard
	}
	return &Subscriber{
		registry:  reg,
		bus:       bus,
		cfg:       cfg,
		log:       log,
		capacity:  make(map[string]core.WorkerCapacity),
		prevLoad:  make(map[string]float64),
		avgDur:    make(map[string]time.Duration),
		hasAvgDur: make(map[string]bool),
		stopCh:    make(chan struct{}),
	}
}

// Start begins consuming src and running the periodic reaper, each on its
// own goroutine. Both stop when Stop is called or ctx is cancelled; the
// consume loop also returns when src's record channel closes, while the
// reaper keeps running.
func (s *Subscriber) Start(ctx context.Context, src stream.HeartbeatStream) {
	s.wg.Add(2)
	go s.consume(ctx, src)
	go s.reapLoop(ctx)
}

func (s *Subscriber) consume(ctx context.Context, src stream.HeartbeatStream) {
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
			s.handleRecord(rec)
		case err, ok := <-src.Errors():
			if !ok {
				continue
			}
			s.log.Warn(ctx, "heartbeat stream error", "error", err)
		}
	}
}

func (s *Subscriber) handleRecord(rec stream.HeartbeatRecord) {
	if _, ok := s.registry.Get(rec.WorkerID); !ok {
		return
	}

	now := time.UnixMilli(rec.TimestampMs)
	load := availability.CurrentLoad(rec.CPUUsage, rec.MemoryUsage)

	s.mu.Lock()
	prevLoad, hadPrev := s.prevLoad[rec.WorkerID]
	s.prevLoad[rec.WorkerID] = load

	avgDur := s.avgDur[rec.WorkerID]

	prevCap, hadCap := s.capacity[rec.WorkerID]
	freeAt := availability.EstimatedFreeAt(now, rec.QueueDepth, avgDur)
	health := availability.ClassifyHealth(0, load, s.cfg.UnhealthyTimeout, s.cfg.RemovedTimeout)

	s.capacity[rec.WorkerID] = core.WorkerCapacity{
		WorkerID:        rec.WorkerID,
		QueueDepth:      rec.QueueDepth,
		EstimatedFreeAt: freeAt,
		Health:          health,
		AvgTaskDuration: avgDur,
	}
	s.mu.Unlock()

	w, _ := s.registry.Get(rec.WorkerID)
	s.registry.Touch(rec.WorkerID, now, load, w.ActiveTasks)

	if hadCap && prevCap.Health != health {
		s.emitHealthEvent(rec.WorkerID, health, now)
	}
	if hadPrev && availability.SignificantLoadChange(prevLoad, load) {
		s.bus.EmitWorker(events.WorkerEvent{
			Type: events.WorkerLoadChanged, WorkerID: rec.WorkerID, Timestamp: now,
		})
	}
}

func (s *Subscriber) emitHealthEvent(workerID string, health core.HealthClass, at time.Time) {
	var t events.WorkerEventType
	switch health {
	case core.HealthHealthy:
		t = events.WorkerHealthy
	case core.HealthDegraded:
		t = events.WorkerDegraded
	case core.HealthUnhealthy:
		t = events.WorkerUnhealthy
	case core.HealthRemoved:
		t = events.WorkerRemoved
	default:
		return
	}
	s.bus.EmitWorker(events.WorkerEvent{Type: t, WorkerID: workerID, Timestamp: at})
}

// RecordTaskDuration folds an observed task duration into a worker's
// rolling average, used by the availability calculator to project
// estimated-free-at on the next heartbeat.
func (s *Subscriber) RecordTaskDuration(workerID string, observed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hasPrior := s.hasAvgDur[workerID]
	s.avgDur[workerID] = availability.UpdateAvgTaskDuration(s.avgDur[workerID], hasPrior, observed)
	s.hasAvgDur[workerID] = true
}

// Capacity returns the last-known capacity snapshot for a worker.
func (s *Subscriber) Capacity(workerID string) (core.WorkerCapacity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.capacity[workerID]
	return c, ok
}

func (s *Subscriber) reapLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := s.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reapOnce(time.Now())
		}
	}
}

func (s *Subscriber) reapOnce(now time.Time) {
	for _, w := range s.registry.All() {
		age := now.Sub(w.LastHeartbeat)

		if age >= s.cfg.RemovedTimeout {
			s.mu.Lock()
			delete(s.capacity, w.ID)
			delete(s.prevLoad, w.ID)
			s.mu.Unlock()
			s.registry.Unregister(w.ID)
			s.bus.EmitWorker(events.WorkerEvent{Type: events.WorkerRemoved, WorkerID: w.ID, Timestamp: now})
			continue
		}

		if age >= s.cfg.UnhealthyTimeout && w.Status != core.WorkerOffline {
			s.registry.SetStatus(w.ID, core.WorkerOffline)
			s.bus.EmitWorker(events.WorkerEvent{Type: events.WorkerUnhealthy, WorkerID: w.ID, Timestamp: now})
		}
	}
}

// Stop cancels the upstream stream and the reaper timer. It is safe to
// call more than once.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Wait blocks until both the consume loop and the reaper loop have
// returned.
func (s *Subscriber) Wait() {
	s.wg.Wait()
}
