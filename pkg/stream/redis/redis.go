// Package redis implements pkg/stream's interfaces on top of Redis
// Streams, using XADD/XREADGROUP/XACK for durable, consumer-group
// delivery.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/predictive-scheduler/logger"
	"github.com/kart-io/predictive-scheduler/pkg/stream"
)

// ConnectionConfig carries the Redis connection parameters, kept separate
// from stream-shape configuration so the same connection can back task,
// heartbeat, completion, and persistence access.
type ConnectionConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewClient dials a Redis client and verifies connectivity with a PING.
func NewClient(ctx context.Context, cfg ConnectionConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// TaskStream implements stream.TaskStream over a Redis stream with a
// consumer group.
type TaskStream struct {
	client   *goredis.Client
	log      logger.Interface
	stream   string
	group    string
	consumer string
}

// NewTaskStream creates the consumer group (idempotently) and returns a
// TaskStream bound to it.
func NewTaskStream(ctx context.Context, client *goredis.Client, streamName, group, consumer string, log logger.Interface) (*TaskStream, error) {
	if log == nil {
		log = logger.Discard
	}
	err := client.XGroupCreateMkStream(ctx, streamName, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &TaskStream{client: client, log: log, stream: streamName, group: group, consumer: consumer}, nil
}

// Read blocks up to one second and returns up to count task records.
func (t *TaskStream) Read(ctx context.Context, count int) ([]stream.TaskRecord, error) {
	res, err := t.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    t.group,
		Consumer: t.consumer,
		Streams:  []string{t.stream, ">"},
		Count:    int64(count),
		Block:    time.Second,
	}).Result()

	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("read from stream: %w", err)
	}
	if len(res) == 0 {
		return nil, nil
	}

	records := make([]stream.TaskRecord, 0, len(res[0].Messages))
	for _, msg := range res[0].Messages {
		rec, parseErr := parseTaskMessage(msg)
		if parseErr != nil {
			t.log.Error(ctx, "malformed task payload, draining", "entryId", msg.ID, "error", parseErr)
			_ = t.Ack(ctx, msg.ID)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseTaskMessage(msg goredis.XMessage) (stream.TaskRecord, error) {
	get := func(k string) string {
		v, _ := msg.Values[k].(string)
		return v
	}

	priority, err := strconv.Atoi(get("priority"))
	if err != nil {
		return stream.TaskRecord{}, fmt.Errorf("invalid priority: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339, get("createdAt"))
	if err != nil {
		return stream.TaskRecord{}, fmt.Errorf("invalid createdAt: %w", err)
	}

	var metadata map[string]string
	if raw := get("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return stream.TaskRecord{}, fmt.Errorf("invalid metadata: %w", err)
		}
	}

	id := get("id")
	if id == "" {
		return stream.TaskRecord{}, fmt.Errorf("missing id")
	}

	return stream.TaskRecord{
		EntryID:   msg.ID,
		ID:        id,
		Type:      get("type"),
		Payload:   []byte(get("payload")),
		Priority:  priority,
		CreatedAt: createdAt,
		Metadata:  metadata,
	}, nil
}

// Ack acknowledges a single stream entry.
func (t *TaskStream) Ack(ctx context.Context, entryID string) error {
	return t.client.XAck(ctx, t.stream, t.group, entryID).Err()
}

// Close is a no-op; the caller owns the underlying client's lifecycle
// since it is typically shared across streams.
func (t *TaskStream) Close() error {
	return nil
}

// Depth returns the current stream length, used to feed the stream-depth
// gauge.
func (t *TaskStream) Depth(ctx context.Context) (int64, error) {
	return t.client.XLen(ctx, t.stream).Result()
}

// DispatchPublisher implements stream.DispatchPublisher by appending to a
// per-worker Redis stream named "<prefix><workerId>".
type DispatchPublisher struct {
	client *goredis.Client
	prefix string
	maxLen int64
}

// NewDispatchPublisher returns a DispatchPublisher using the given channel
// name prefix.
func NewDispatchPublisher(client *goredis.Client, prefix string, maxLen int64) *DispatchPublisher {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &DispatchPublisher{client: client, prefix: prefix, maxLen: maxLen}
}

// Publish appends the dispatch payload to the worker's channel.
func (p *DispatchPublisher) Publish(ctx context.Context, workerID string, payload []byte) error {
	channel := p.prefix + workerID
	return p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: channel,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": string(payload)},
	}).Err()
}

// PredictionStore implements stream.PredictionStore as a single Redis key
// holding the JSON-encoded prediction document.
type PredictionStore struct {
	client *goredis.Client
	key    string
}

// NewPredictionStore returns a PredictionStore bound to key.
func NewPredictionStore(client *goredis.Client, key string) *PredictionStore {
	return &PredictionStore{client: client, key: key}
}

// Save writes the document under the configured key.
func (s *PredictionStore) Save(ctx context.Context, doc stream.PredictionDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal prediction document: %w", err)
	}
	return s.client.Set(ctx, s.key, data, 0).Err()
}

// Load reads and decodes the document. A missing key is not an error; it
// returns a zero-value document so the predictor starts cold.
func (s *PredictionStore) Load(ctx context.Context) (stream.PredictionDocument, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == goredis.Nil {
		return stream.PredictionDocument{Predictions: map[string]stream.PredictionSnapshot{}}, nil
	}
	if err != nil {
		return stream.PredictionDocument{}, fmt.Errorf("load prediction document: %w", err)
	}

	var doc stream.PredictionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return stream.PredictionDocument{}, fmt.Errorf("decode prediction document: %w", err)
	}
	if doc.Predictions == nil {
		doc.Predictions = map[string]stream.PredictionSnapshot{}
	}
	return doc, nil
}
