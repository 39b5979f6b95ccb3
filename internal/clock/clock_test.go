package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClock_SleepAdvancesAndRecords(t *testing.T) {
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	require.NoError(t, c.Sleep(context.Background(), 500*time.Millisecond))
	require.NoError(t, c.Sleep(context.Background(), time.Second))

	assert.Equal(t, start.Add(1500*time.Millisecond), c.Now())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, c.Sleeps())
}

func TestMockClock_SleepHonoursCancelledContext(t *testing.T) {
	c := NewMockClock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Sleep(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, c.Sleeps())
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	c.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), c.Now())
}

func TestRealClock_Sleep(t *testing.T) {
	c := NewRealClock()

	begin := time.Now()
	require.NoError(t, c.Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(begin), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Sleep(ctx, time.Hour), context.Canceled)
}
