package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/agentloop/agentloop/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitRejectMode(t *testing.T) {
	p := New()
	require.NoError(t, p.Use(NewRateLimitMiddleware(func(o *RateLimitOptions) {
		o.RPS = 10
		o.Burst = 10
		o.Mode = RateLimitReject
	})))

	ok := func(context.Context, *Context) error { return nil }
	passed, rejected := 0, 0
	for i := 0; i < 11; i++ {
		err := p.Execute(context.Background(), NewContext("s1", "m", "x"), ok)
		if err != nil {
			require.ErrorIs(t, err, core.ErrRateLimited)
			rejected++
		} else {
			passed++
		}
	}

	// The bucket holds ten tokens; the eleventh burst request is rejected
	// with an explicit error, never dropped on the floor.
	assert.Equal(t, 10, passed)
	assert.Equal(t, 1, rejected)
	assert.True(t, core.Retryable(core.ErrRateLimited))
}

func TestRateLimitWaitModeDelays(t *testing.T) {
	p := New()
	require.NoError(t, p.Use(NewRateLimitMiddleware(func(o *RateLimitOptions) {
		o.RPS = 50
		o.Burst = 1
		o.Mode = RateLimitWait
	})))

	ok := func(context.Context, *Context) error { return nil }
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Execute(context.Background(), NewContext("s1", "m", "x"), ok))
	}
	// Two refills at 20ms each after the initial token.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRateLimitWaitRespectsContext(t *testing.T) {
	p := New()
	require.NoError(t, p.Use(NewRateLimitMiddleware(func(o *RateLimitOptions) {
		o.RPS = 0.1
		o.Burst = 1
		o.Mode = RateLimitWait
	})))

	ok := func(context.Context, *Context) error { return nil }
	require.NoError(t, p.Execute(context.Background(), NewContext("s1", "m", "x"), ok))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Execute(ctx, NewContext("s1", "m", "x"), ok)
	assert.Error(t, err)
}
