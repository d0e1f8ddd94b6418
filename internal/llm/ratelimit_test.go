package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campwire/bunkmate/internal/model"
)

func TestRateLimiter(t *testing.T) {
	t.Run("allows up to capacity immediately", func(t *testing.T) {
		rl := NewRateLimiter(10)
		defer rl.Close()

		ctx := context.Background()
		for i := 0; i < 10; i++ {
			require.NoError(t, rl.Wait(ctx))
		}
		assert.False(t, rl.tryAcquire(), "tokens exhausted after capacity acquisitions")
	})

	t.Run("canceled context unblocks a waiter", func(t *testing.T) {
		rl := NewRateLimiter(1)
		defer rl.Close()

		require.NoError(t, rl.Wait(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- rl.Wait(ctx)
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()

		err := <-done
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limiter canceled")
	})

	t.Run("zero rate defaults to sixty per minute", func(t *testing.T) {
		rl := NewRateLimiter(0)
		defer rl.Close()

		for i := 0; i < 50; i++ {
			require.True(t, rl.tryAcquire())
		}
	})
}

func TestProviderClientsRateLimit(t *testing.T) {
	openai, err := newOpenAIClient(Config{APIKey: "test-key", RateLimit: 1})
	require.NoError(t, err)
	anthropic, err := newAnthropicClient(Config{APIKey: "test-key", RateLimit: 1})
	require.NoError(t, err)
	require.NotNil(t, openai.(*openAIClient).limiter)
	require.NotNil(t, anthropic.(*anthropicClient).limiter)

	// Drain the single token; the next call must block in the limiter
	// until the context gives up, before any request leaves the process.
	require.NoError(t, openai.(*openAIClient).limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = openai.Extract(ctx, "wants to bunk with Emma", model.FieldBunkRequest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter canceled")
}
