package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock_StartsAtEpoch(t *testing.T) {
	c := NewFakeClock()
	assert.Equal(t, Epoch, c.Now())
	assert.Zero(t, c.Elapsed())
}

func TestFakeClock_SleepAdvances(t *testing.T) {
	c := NewFakeClock()
	require.NoError(t, c.Sleep(context.Background(), 250*time.Millisecond))
	require.NoError(t, c.Sleep(context.Background(), time.Second))

	assert.Equal(t, 1250*time.Millisecond, c.Elapsed())
	assert.Equal(t, []time.Duration{250 * time.Millisecond, time.Second}, c.Sleeps())
}

func TestFakeClock_SleepCancelled(t *testing.T) {
	c := NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Sleep(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, c.Elapsed(), "cancelled sleep must not move time")
	assert.Empty(t, c.Sleeps())
}

func TestFakeClock_AdvanceNotRecorded(t *testing.T) {
	c := NewFakeClock()
	c.Advance(3 * time.Second)

	assert.Equal(t, 3*time.Second, c.Elapsed())
	assert.Empty(t, c.Sleeps())
}

func TestFakeClock_Reset(t *testing.T) {
	c := NewFakeClock()
	require.NoError(t, c.Sleep(context.Background(), time.Minute))
	c.Reset()

	assert.Equal(t, Epoch, c.Now())
	assert.Empty(t, c.Sleeps())
}

func TestFakeClock_ConcurrentSleeps(t *testing.T) {
	c := NewFakeClock()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Sleep(context.Background(), time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50*time.Millisecond, c.Elapsed())
	assert.Len(t, c.Sleeps(), 50)
}
