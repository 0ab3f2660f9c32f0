package redis

import (
	"context"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/predictive-scheduler/pkg/stream"
)

// HeartbeatStream implements stream.HeartbeatStream by tailing a Redis
// stream of worker telemetry records without a consumer group — every
// heartbeat sample is broadcast to the single scheduler reading it.
type HeartbeatStream struct {
	client     *goredis.Client
	streamName string
	records    chan stream.HeartbeatRecord
	errs       chan error
	cancel     context.CancelFunc
	once       sync.Once
}

// NewHeartbeatStream starts tailing streamName from "$" (new entries only)
// on a background goroutine.
func NewHeartbeatStream(ctx context.Context, client *goredis.Client, streamName string) *HeartbeatStream {
	runCtx, cancel := context.WithCancel(ctx)
	h := &HeartbeatStream{
		client:     client,
		streamName: streamName,
		records:    make(chan stream.HeartbeatRecord, 256),
		errs:       make(chan error, 16),
		cancel:     cancel,
	}
	go h.run(runCtx)
	return h
}

func (h *HeartbeatStream) run(ctx context.Context) {
	defer close(h.records)
	defer close(h.errs)

	lastID := "$"
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := h.client.XRead(ctx, &goredis.XReadArgs{
			Streams: []string{h.streamName, lastID},
			Block:   time.Second,
			Count:   50,
		}).Result()

		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			select {
			case h.errs <- err:
			default:
			}
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				lastID = msg.ID
				rec, parseErr := parseHeartbeat(msg)
				if parseErr != nil {
					select {
					case h.errs <- parseErr:
					default:
					}
					continue
				}
				select {
				case h.records <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func parseHeartbeat(msg goredis.XMessage) (stream.HeartbeatRecord, error) {
	get := func(k string) string {
		v, _ := msg.Values[k].(string)
		return v
	}

	cpu, err := strconv.ParseFloat(get("cpuUsage"), 64)
	if err != nil {
		return stream.HeartbeatRecord{}, err
	}
	mem, err := strconv.ParseFloat(get("memoryUsage"), 64)
	if err != nil {
		return stream.HeartbeatRecord{}, err
	}
	depth, err := strconv.Atoi(get("queueDepth"))
	if err != nil {
		return stream.HeartbeatRecord{}, err
	}
	ts, err := strconv.ParseInt(get("timestampMs"), 10, 64)
	if err != nil {
		return stream.HeartbeatRecord{}, err
	}

	return stream.HeartbeatRecord{
		WorkerID:    get("workerId"),
		CPUUsage:    cpu,
		MemoryUsage: mem,
		QueueDepth:  depth,
		TimestampMs: ts,
	}, nil
}

// Records returns the heartbeat sample channel.
func (h *HeartbeatStream) Records() <-chan stream.HeartbeatRecord { return h.records }

// Errors returns the stream-level error channel.
func (h *HeartbeatStream) Errors() <-chan error { return h.errs }

// Cancel stops the background tail goroutine; safe to call more than once.
func (h *HeartbeatStream) Cancel() {
	h.once.Do(h.cancel)
}

// CompletionStream implements stream.CompletionStream the same way,
// tailing the completion-events stream.
type CompletionStream struct {
	client     *goredis.Client
	streamName string
	records    chan stream.CompletionRecord
	errs       chan error
	cancel     context.CancelFunc
	once       sync.Once
}

// NewCompletionStream starts tailing streamName for new completion events.
func NewCompletionStream(ctx context.Context, client *goredis.Client, streamName string) *CompletionStream {
	runCtx, cancel := context.WithCancel(ctx)
	c := &CompletionStream{
		client:     client,
		streamName: streamName,
		records:    make(chan stream.CompletionRecord, 256),
		errs:       make(chan error, 16),
		cancel:     cancel,
	}
	go c.run(runCtx)
	return c
}

func (c *CompletionStream) run(ctx context.Context) {
	defer close(c.records)
	defer close(c.errs)

	lastID := "$"
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := c.client.XRead(ctx, &goredis.XReadArgs{
			Streams: []string{c.streamName, lastID},
			Block:   time.Second,
			Count:   50,
		}).Result()

		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			select {
			case c.errs <- err:
			default:
			}
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				lastID = msg.ID
				rec, parseErr := parseCompletion(msg)
				if parseErr != nil {
					select {
					case c.errs <- parseErr:
					default:
					}
					continue
				}
				select {
				case c.records <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func parseCompletion(msg goredis.XMessage) (stream.CompletionRecord, error) {
	get := func(k string) string {
		v, _ := msg.Values[k].(string)
		return v
	}

	duration, err := strconv.ParseInt(get("durationMs"), 10, 64)
	if err != nil {
		return stream.CompletionRecord{}, err
	}
	success, err := strconv.ParseBool(get("success"))
	if err != nil {
		return stream.CompletionRecord{}, err
	}
	startedAt, err := time.Parse(time.RFC3339, get("startedAt"))
	if err != nil {
		return stream.CompletionRecord{}, err
	}
	completedAt, err := time.Parse(time.RFC3339, get("completedAt"))
	if err != nil {
		return stream.CompletionRecord{}, err
	}

	rec := stream.CompletionRecord{
		TaskID:      get("taskId"),
		TaskType:    get("taskType"),
		WorkerID:    get("workerId"),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		DurationMs:  duration,
		Success:     success,
	}

	if raw := get("predictedDurationMs"); raw != "" {
		predicted, perr := strconv.ParseInt(raw, 10, 64)
		if perr == nil {
			rec.PredictedDurationMs = predicted
			rec.HasPredictedDuration = true
		}
	}

	return rec, nil
}

// Records returns the completion event channel.
func (c *CompletionStream) Records() <-chan stream.CompletionRecord { return c.records }

// Errors returns the stream-level error channel.
func (c *CompletionStream) Errors() <-chan error { return c.errs }

// Cancel stops the background tail goroutine; safe to call more than once.
func (c *CompletionStream) Cancel() {
	c.once.Do(c.cancel)
}
