// Package stream defines the narrow interfaces the scheduler core uses to
// talk to the durable stream broker: task ingress, dispatch egress,
// heartbeat telemetry, completion events, and prediction persistence. The
// core depends only on these interfaces; pkg/stream/redis supplies the
// concrete Redis Streams implementation used in production.
package stream

import (
	"context"
	"time"
)

// TaskRecord is one entry read off the task ingress stream, before
// validation: payload is still raw JSON bytes, and metadata has already
// been decoded into a string map.
type TaskRecord struct {
	EntryID   string
	ID        string
	Type      string
	Payload   []byte
	Priority  int
	CreatedAt time.Time
	Metadata  map[string]string
}

// TaskStream is a consumer-group read/ack primitive over the task ingress
// stream.
type TaskStream interface {
	// Read blocks up to the implementation's configured timeout and
	// returns up to count records. An empty, non-error result means the
	// block elapsed with nothing available.
	Read(ctx context.Context, count int) ([]TaskRecord, error)

	// Ack acknowledges a single entry by its EntryID.
	Ack(ctx context.Context, entryID string) error

	// Close releases resources held by the stream itself; a connection
	// shared with other streams is left open.
	Close() error
}

// DispatchPublisher publishes a dispatch decision onto a worker's channel.
type DispatchPublisher interface {
	// Publish writes {taskId, task, assignedAt} to the channel named
	// "<prefix><workerId>".
	Publish(ctx context.Context, workerID string, payload []byte) error
}

// HeartbeatRecord is one worker telemetry sample.
type HeartbeatRecord struct {
	WorkerID    string
	CPUUsage    float64
	MemoryUsage float64
	QueueDepth  int
	TimestampMs int64
}

// HeartbeatStream is an abstract streaming source of worker telemetry,
// matching a data/error/end/cancel hook shape via a channel pair.
type HeartbeatStream interface {
	// Records returns the channel of incoming heartbeat samples.
	Records() <-chan HeartbeatRecord
	// Errors returns the channel of stream-level errors (the "error" hook).
	Errors() <-chan error
	// Cancel stops the stream; it is safe to call more than once.
	Cancel()
}

// CompletionRecord is one task-completion event.
type CompletionRecord struct {
	TaskID               string
	TaskType             string
	WorkerID             string
	StartedAt            time.Time
	CompletedAt          time.Time
	DurationMs           int64
	Success              bool
	PredictedDurationMs  int64
	HasPredictedDuration bool
}

// CompletionStream is an abstract streaming source of completion events.
type CompletionStream interface {
	Records() <-chan CompletionRecord
	Errors() <-chan error
	Cancel()
}

// PredictionSnapshot is the persisted shape of one task type's EMA state.
type PredictionSnapshot struct {
	EMA         float64   `json:"ema"`
	SampleCount int64     `json:"sampleCount"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// PredictionDocument is the full blob stored under the prediction
// persistence key.
type PredictionDocument struct {
	Version     int                           `json:"version"`
	SavedAt     time.Time                     `json:"savedAt"`
	Predictions map[string]PredictionSnapshot `json:"predictions"`
}

// PredictionStore persists and restores the predictor's EMA map under a
// single key. Failures are always recoverable: the predictor continues
// serving from memory regardless of store availability.
type PredictionStore interface {
	Save(ctx context.Context, doc PredictionDocument) error
	Load(ctx context.Context) (PredictionDocument, error)
}
