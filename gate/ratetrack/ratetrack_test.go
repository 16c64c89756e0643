package ratetrack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrack(t *testing.T) {
	assert := assert.New(t)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cfg := Config{MaxMessages: 3, Window: time.Hour}

	exceeded, win := Track(nil, now, cfg)
	assert.False(exceeded)
	assert.Equal([]time.Time{now}, win)

	history := []time.Time{
		now.Add(-2 * time.Hour),   // outside window
		now.Add(-time.Hour),       // window boundary, kept
		now.Add(-10 * time.Minute),
	}
	exceeded, win = Track(history, now, cfg)
	assert.False(exceeded)
	assert.Equal([]time.Time{now.Add(-time.Hour), now.Add(-10 * time.Minute), now}, win)

	history = append(history, now.Add(-time.Minute))
	exceeded, win = Track(history, now, cfg)
	assert.True(exceeded)
	assert.Equal(4, len(win))
	// input untouched
	assert.Equal(4, len(history))
	assert.Equal(now.Add(-2*time.Hour), history[0])
}

func TestTrackDisabled(t *testing.T) {
	assert := assert.New(t)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	history := make([]time.Time, 100)
	for i := range history {
		history[i] = now.Add(-time.Duration(i) * time.Second)
	}
	exceeded, win := Track(history, now, Config{MaxMessages: 0, Window: time.Minute})
	assert.False(exceeded)
	assert.Equal(62, len(win))
}

func TestPruneDropsFuture(t *testing.T) {
	assert := assert.New(t)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := Prune([]time.Time{now.Add(time.Minute), now}, now, time.Hour)
	assert.Equal([]time.Time{now}, out)
}
