package udptracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySchedulerSchedule(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	r := NewRetryScheduler(clock, 15*time.Second, 8)

	var fired []time.Duration
	var exhausted []bool
	var onTimeout func(bool)
	onTimeout = func(last bool) {
		fired = append(fired, clock.Now().Sub(start))
		exhausted = append(exhausted, last)
		if !last {
			require.True(t, r.Arm(onTimeout))
		}
	}
	require.True(t, r.Arm(onTimeout))

	clock.Advance(24 * time.Hour)

	expected := []time.Duration{15, 45, 105, 225, 465, 945, 1905, 3825, 7665}
	require.Len(t, fired, len(expected))
	for i, e := range expected {
		assert.Equal(t, e*time.Second, fired[i], "timeout %d", i)
		assert.Equal(t, i == len(expected)-1, exhausted[i], "timeout %d", i)
	}
	assert.Equal(t, 8, r.Attempt())
	assert.False(t, r.Arm(func(bool) {}))
	assert.Equal(t, 0, clock.pending())
}

func TestRetrySchedulerCancel(t *testing.T) {
	clock := newFakeClock()
	r := NewRetryScheduler(clock, 15*time.Second, 8)

	var calls int
	require.True(t, r.Arm(func(bool) { calls++ }))
	r.Cancel()

	clock.Advance(time.Hour)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, r.Attempt())
}

func TestRetrySchedulerRearmReplacesTimer(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	r := NewRetryScheduler(clock, 15*time.Second, 8)

	var first, second int
	var at time.Duration
	require.True(t, r.Arm(func(bool) { first++ }))
	require.True(t, r.Arm(func(bool) {
		second++
		at = clock.Now().Sub(start)
	}))

	clock.Advance(time.Hour)
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 30*time.Second, at)
}

func TestRetrySchedulerReset(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	r := NewRetryScheduler(clock, 15*time.Second, 8)

	require.True(t, r.Arm(func(bool) {}))
	require.True(t, r.Arm(func(bool) {}))
	r.Reset()
	assert.Equal(t, -1, r.Attempt())

	var at time.Duration
	require.True(t, r.Arm(func(bool) { at = clock.Now().Sub(start) }))
	clock.Advance(time.Hour)
	assert.Equal(t, 15*time.Second, at)
}

func TestRetrySchedulerMaxRetries(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	r := NewRetryScheduler(clock, time.Second, 2)

	var fired []time.Duration
	var last bool
	var onTimeout func(bool)
	onTimeout = func(exhausted bool) {
		fired = append(fired, clock.Now().Sub(start))
		last = exhausted
		if !exhausted {
			r.Arm(onTimeout)
		}
	}
	require.True(t, r.Arm(onTimeout))
	clock.Advance(time.Hour)

	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second, 7 * time.Second}, fired)
	assert.True(t, last)
}
