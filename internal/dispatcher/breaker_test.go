package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker(3, 10)
	assert.False(t, b.Open())
	assert.True(t, b.ShouldAttemptPredictor())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, 10)
	b.RecordFailure(time.Now())
	b.RecordFailure(time.Now())
	assert.False(t, b.Open())

	b.RecordFailure(time.Now())
	assert.True(t, b.Open())
	assert.Equal(t, 3, b.State().ConsecutiveFailures)
}

func TestBreakerNextCallAfterOpenSkipsPredictor(t *testing.T) {
	b := NewBreaker(3, 10)
	for i := 0; i < 3; i++ {
		b.RecordFailure(time.Now())
	}
	assert.True(t, b.Open())
	assert.False(t, b.ShouldAttemptPredictor())
}

func TestBreakerProbesPeriodically(t *testing.T) {
	b := NewBreaker(1, 3)
	b.RecordFailure(time.Now())
	assert.True(t, b.Open())

	assert.False(t, b.ShouldAttemptPredictor())
	assert.False(t, b.ShouldAttemptPredictor())
	assert.True(t, b.ShouldAttemptPredictor())
}

func TestBreakerSuccessResetsState(t *testing.T) {
	b := NewBreaker(3, 10)
	for i := 0; i < 3; i++ {
		b.RecordFailure(time.Now())
	}
	assert.True(t, b.Open())

	b.RecordSuccess()
	state := b.State()
	assert.False(t, state.Open)
	assert.Equal(t, 0, state.ConsecutiveFailures)
	assert.True(t, state.LastFailure.IsZero())
}

func TestBreakerInvariantOpenIffFailuresAtThreshold(t *testing.T) {
	b := NewBreaker(2, 10)
	b.RecordFailure(time.Now())
	assert.Equal(t, b.State().ConsecutiveFailures >= 2, b.State().Open)

	b.RecordSuccess()
	assert.Equal(t, 0, b.State().ConsecutiveFailures)
	assert.False(t, b.State().Open)
}
