package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AllowRespectsBurst(t *testing.T) {
	l := NewLimiter(2.0, 2)

	assert.True(t, l.Allow(), "first request within burst should be allowed")
	assert.True(t, l.Allow(), "second request within burst should be allowed")
	assert.False(t, l.Allow(), "third request should be blocked once burst is spent")
}

func TestLimiter_Wait(t *testing.T) {
	l := NewLimiter(10.0, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	assert.Less(t, time.Since(start), 10*time.Millisecond, "first call should not wait")

	start = time.Now()
	require.NoError(t, l.Wait(ctx))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestLimiter_WaitTimeout(t *testing.T) {
	l := NewLimiter(0.1, 1)
	l.Allow() // spend the burst

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	assert.Error(t, err, "Wait should time out once the context deadline is shorter than the refill delay")
}

func TestLimiter_SetRPSTakesEffectImmediately(t *testing.T) {
	l := NewLimiter(1.0, 2)
	l.Allow()
	l.Allow()
	assert.False(t, l.Allow(), "should be throttled at 1 rps with burst spent")

	l.SetRPS(50.0)
	time.Sleep(60 * time.Millisecond)
	assert.True(t, l.Allow(), "raising rps should allow new tokens to accrue")
}

func TestLimiter_Reset(t *testing.T) {
	l := NewLimiter(1.0, 1)
	l.Allow()
	assert.False(t, l.Allow())

	l.Reset()
	assert.True(t, l.Allow(), "reset should restore a fresh bucket")
}

// TestLimiter_ConcurrentAccessBoundsByBurst exercises testable property #1
// (rate-limit compliance): with a 100rps/burst-10 bucket hit concurrently,
// admissions in the first instant cannot exceed burst + a small refill
// slop, even though every goroutine is unblocked at once.
func TestLimiter_ConcurrentAccessBoundsByBurst(t *testing.T) {
	l := NewLimiter(100.0, 10)

	const goroutines = 50
	var allowed, blocked int64
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow() {
				atomic.AddInt64(&allowed, 1)
			} else {
				atomic.AddInt64(&blocked, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines), allowed+blocked)
	assert.GreaterOrEqual(t, allowed, int64(10), "burst admissions should be allowed")
	assert.Less(t, allowed, int64(goroutines), "not every concurrent caller should be admitted past burst")
}

func TestManager_WaitUnconfiguredProviderNeverBlocks(t *testing.T) {
	m := NewManager()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, m.Wait(ctx, "unregistered"))
}

// TestManager_EffectiveLimitSlidingWindow models scenario S3: a provider
// configured for 200/min then reconfigured mid-run to 100/min. Burst lets
// the first window admit up to L+burst before settling at the new rate.
func TestManager_EffectiveLimitSlidingWindow(t *testing.T) {
	m := NewManager()
	const burst = 10
	m.AddProvider("akshare", 200.0/60.0, burst)

	limiter, ok := m.GetLimiter("akshare")
	require.True(t, ok)

	admitted := 0
	for i := 0; i < burst+2; i++ {
		if limiter.Allow() {
			admitted++
		}
	}
	assert.LessOrEqual(t, admitted, burst, "admissions without waiting cannot exceed burst capacity")

	limiter.SetRPS(100.0 / 60.0)
	stats := limiter.Stats()
	assert.InDelta(t, 100.0/60.0, stats.RPS, 1e-9)
}
