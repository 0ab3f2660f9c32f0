package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/predictive-scheduler/core"
	"github.com/kart-io/predictive-scheduler/internal/events"
	"github.com/kart-io/predictive-scheduler/internal/registry"
	"github.com/kart-io/predictive-scheduler/pkg/stream"
)

type fakeHeartbeatStream struct {
	records chan stream.HeartbeatRecord
	errs    chan error
	cancels int
}

func newFakeStream() *fakeHeartbeatStream {
	return &fakeHeartbeatStream{
		records: make(chan stream.HeartbeatRecord, 16),
		errs:    make(chan error, 16),
	}
}

func (f *fakeHeartbeatStream) Records() <-chan stream.HeartbeatRecord { return f.records }
func (f *fakeHeartbeatStream) Errors() <-chan error                   { return f.errs }
func (f *fakeHeartbeatStream) Cancel()                                { f.cancels++ }

func TestSubscriberUpdatesRegistryOnHeartbeat(t *testing.T) {
	reg := registry.New()
	reg.Register(&core.WorkerState{ID: "w1", Status: core.WorkerIdle, MaxConcurrency: 5})
	bus := events.NewBus()
	sub := New(reg, bus, Config{UnhealthyTimeout: 30 * time.Second, RemovedTimeout: 5 * time.Minute, HealthCheckInterval: time.Hour}, nil)

	src := newFakeStream()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub.Start(ctx, src)
	defer sub.Stop()

	src.records <- stream.HeartbeatRecord{WorkerID: "w1", CPUUsage: 0.5, MemoryUsage: 0.5, QueueDepth: 2, TimestampMs: time.Now().UnixMilli()}

	assert.Eventually(t, func() bool {
		w, _ := reg.Get("w1")
		return w.Load > 0
	}, time.Second, 10*time.Millisecond)
}

func TestSubscriberIgnoresUnknownWorker(t *testing.T) {
	reg := registry.New()
	bus := events.NewBus()
	sub := New(reg, bus, Config{UnhealthyTimeout: 30 * time.Second, RemovedTimeout: 5 * time.Minute, HealthCheckInterval: time.Hour}, nil)

	src := newFakeStream()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub.Start(ctx, src)
	defer sub.Stop()

	src.records <- stream.HeartbeatRecord{WorkerID: "ghost", CPUUsage: 1, MemoryUsage: 1, TimestampMs: time.Now().UnixMilli()}
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, reg.Len())
}

func TestReapMarksUnhealthyAndEmitsOnce(t *testing.T) {
	reg := registry.New()
	reg.Register(&core.WorkerState{ID: "w1", Status: core.WorkerIdle, MaxConcurrency: 5, LastHeartbeat: time.Now().Add(-time.Minute)})
	bus := events.NewBus()

	var unhealthyCount int
	bus.OnWorkerEvent(func(e events.WorkerEvent) {
		if e.Type == events.WorkerUnhealthy {
			unhealthyCount++
		}
	})

	sub := New(reg, bus, Config{UnhealthyTimeout: 30 * time.Second, RemovedTimeout: 5 * time.Minute, HealthCheckInterval: time.Hour}, nil)

	now := time.Now()
	sub.reapOnce(now)
	sub.reapOnce(now)

	assert.Equal(t, 1, unhealthyCount)
	w, _ := reg.Get("w1")
	assert.Equal(t, core.WorkerOffline, w.Status)
}

func TestReapRemovesStaleWorkerExactlyOnce(t *testing.T) {
	reg := registry.New()
	reg.Register(&core.WorkerState{ID: "w1", Status: core.WorkerOffline, MaxConcurrency: 5, LastHeartbeat: time.Now().Add(-time.Hour)})
	bus := events.NewBus()

	var removedCount int
	bus.OnWorkerEvent(func(e events.WorkerEvent) {
		if e.Type == events.WorkerRemoved {
			removedCount++
		}
	})

	sub := New(reg, bus, Config{UnhealthyTimeout: 30 * time.Second, RemovedTimeout: 5 * time.Minute, HealthCheckInterval: time.Hour}, nil)

	now := time.Now()
	sub.reapOnce(now)
	sub.reapOnce(now)

	assert.Equal(t, 1, removedCount)
	assert.Equal(t, 0, reg.Len())
}

func TestStopIsIdempotent(t *testing.T) {
	reg := registry.New()
	bus := events.NewBus()
	sub := New(reg, bus, Config{HealthCheckInterval: time.Hour}, nil)

	src := newFakeStream()
	sub.Start(context.Background(), src)

	assert.NotPanics(t, func() {
		sub.Stop()
		sub.Stop()
	})
	sub.Wait()
	assert.Equal(t, 1, src.cancels)
}

func TestRecordTaskDurationBlendsIntoCapacity(t *testing.T) {
	reg := registry.New()
	reg.Register(&core.WorkerState{ID: "w1", MaxConcurrency: 5, LastHeartbeat: time.Now()})
	bus := events.NewBus()
	sub := New(reg, bus, Config{HealthCheckInterval: time.Hour}, nil)

	sub.RecordTaskDuration("w1", 2*time.Second)
	sub.RecordTaskDuration("w1", 4*time.Second)

	sub.handleRecord(stream.HeartbeatRecord{
		WorkerID: "w1", CPUUsage: 0.1, MemoryUsage: 0.1, QueueDepth: 2,
		TimestampMs: time.Now().UnixMilli(),
	})

	snapshot, ok := sub.Capacity("w1")
	assert.True(t, ok)
	assert.Greater(t, snapshot.AvgTaskDuration, time.Duration(0))
	assert.True(t, snapshot.EstimatedFreeAt.After(time.Now()))
}
