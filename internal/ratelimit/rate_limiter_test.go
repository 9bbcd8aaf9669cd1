package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	t.Run("Should allow bursts up to the bucket capacity", func(t *testing.T) {
		rl := NewRateLimiter(3, time.Hour)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			start := time.Now()
			require.NoError(t, rl.Wait(ctx))
			assert.Less(t, time.Since(start), 50*time.Millisecond)
		}
	})

	t.Run("Should unblock a drained bucket when the context is canceled", func(t *testing.T) {
		rl := NewRateLimiter(1, time.Hour)
		require.NoError(t, rl.Wait(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()

		err := rl.Wait(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Should refill over time", func(t *testing.T) {
		rl := NewRateLimiter(1, 50*time.Millisecond)
		ctx := context.Background()
		require.NoError(t, rl.Wait(ctx))

		start := time.Now()
		require.NoError(t, rl.Wait(ctx))
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	})
}
