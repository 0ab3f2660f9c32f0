package redis

import (
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestParseTaskMessage(t *testing.T) {
	msg := goredis.XMessage{
		ID: "1-1",
		Values: map[string]interface{}{
			"id":        "t1",
			"type":      "resize",
			"payload":   `{"w":10}`,
			"priority":  "5",
			"createdAt": "2026-01-01T00:00:00Z",
			"metadata":  `{"region":"us"}`,
		},
	}

	rec, err := parseTaskMessage(msg)
	assert.NoError(t, err)
	assert.Equal(t, "t1", rec.ID)
	assert.Equal(t, "resize", rec.Type)
	assert.Equal(t, 5, rec.Priority)
	assert.Equal(t, "us", rec.Metadata["region"])
	assert.Equal(t, "1-1", rec.EntryID)
}

func TestParseTaskMessageMissingID(t *testing.T) {
	msg := goredis.XMessage{
		Values: map[string]interface{}{
			"priority":  "1",
			"createdAt": "2026-01-01T00:00:00Z",
		},
	}

	_, err := parseTaskMessage(msg)
	assert.Error(t, err)
}

func TestParseTaskMessageInvalidPriority(t *testing.T) {
	msg := goredis.XMessage{
		Values: map[string]interface{}{
			"id":        "t1",
			"priority":  "not-a-number",
			"createdAt": "2026-01-01T00:00:00Z",
		},
	}

	_, err := parseTaskMessage(msg)
	assert.Error(t, err)
}

func TestParseHeartbeat(t *testing.T) {
	msg := goredis.XMessage{
		Values: map[string]interface{}{
			"workerId":    "w1",
			"cpuUsage":    "0.5",
			"memoryUsage": "0.25",
			"queueDepth":  "3",
			"timestampMs": "1700000000000",
		},
	}

	rec, err := parseHeartbeat(msg)
	assert.NoError(t, err)
	assert.Equal(t, "w1", rec.WorkerID)
	assert.Equal(t, 0.5, rec.CPUUsage)
	assert.Equal(t, 3, rec.QueueDepth)
}

func TestParseCompletionWithPrediction(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	msg := goredis.XMessage{
		Values: map[string]interface{}{
			"taskId":              "t1",
			"taskType":            "resize",
			"workerId":            "w1",
			"startedAt":           now.Format(time.RFC3339),
			"completedAt":         now.Add(time.Second).Format(time.RFC3339),
			"durationMs":          "1000",
			"success":             "true",
			"predictedDurationMs": "900",
		},
	}

	rec, err := parseCompletion(msg)
	assert.NoError(t, err)
	assert.True(t, rec.Success)
	assert.True(t, rec.HasPredictedDuration)
	assert.Equal(t, int64(900), rec.PredictedDurationMs)
}

func TestParseCompletionWithoutPrediction(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	msg := goredis.XMessage{
		Values: map[string]interface{}{
			"taskId":      "t1",
			"taskType":    "resize",
			"workerId":    "w1",
			"startedAt":   now.Format(time.RFC3339),
			"completedAt": now.Format(time.RFC3339),
			"durationMs":  "1000",
			"success":     "false",
		},
	}

	rec, err := parseCompletion(msg)
	assert.NoError(t, err)
	assert.False(t, rec.HasPredictedDuration)
	assert.False(t, rec.Success)
}
