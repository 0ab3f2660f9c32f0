package ema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBlendFirstSample(t *testing.T) {
	got := Blend(0, false, 1000, 0.3)
	assert.Equal(t, 1000.0, got)
}

func TestBlendSubsequentSample(t *testing.T) {
	got := Blend(1000, true, 2000, 0.5)
	assert.Equal(t, 1500.0, got)
}

func TestBlendConvergesTowardRepeatedSample(t *testing.T) {
	current := 5000.0
	for i := 0; i < 10; i++ {
		current = Blend(current, true, 1000, 0.3)
	}
	assert.InDelta(t, 1000, current, 500)
	assert.Less(t, current, 4000.0)
}

func TestBlendDuration(t *testing.T) {
	got := BlendDuration(5*time.Second, true, time.Second, 0.3)
	assert.Equal(t, time.Duration(0.3*float64(time.Second)+0.7*float64(5*time.Second)), got)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 0.0, Confidence(0, 100))
	assert.Equal(t, 0.1, Confidence(10, 100))
	assert.Equal(t, 1.0, Confidence(100, 100))
	assert.Equal(t, 1.0, Confidence(500, 100))
}

func TestConfidenceZeroThreshold(t *testing.T) {
	assert.Equal(t, 1.0, Confidence(0, 0))
}
