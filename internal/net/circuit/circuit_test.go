package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		Window:           time.Second,
		OpenDuration:     50 * time.Millisecond,
		RequestTimeout:   100 * time.Millisecond,
	}
}

func TestBreaker_StartsClosed(t *testing.T) {
	b := NewBreaker(testConfig())
	assert.Equal(t, StateClosed, b.State())

	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

// TestBreaker_OpensAfterThresholdWithinWindow is testable property #2:
// FailureThreshold failures within Window opens the breaker, and once
// open the wrapped function is never invoked again until the probe.
func TestBreaker_OpensAfterThresholdWithinWindow(t *testing.T) {
	b := NewBreaker(testConfig())

	for i := 0; i < 3; i++ {
		err := b.Call(context.Background(), func(ctx context.Context) error {
			return errors.New("boom")
		})
		assert.Error(t, err)
	}
	assert.Equal(t, StateOpen, b.State())

	invoked := false
	err := b.Call(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, invoked, "an open breaker must not invoke the wrapped function")
}

func TestBreaker_FailuresOutsideWindowDoNotAccumulate(t *testing.T) {
	cfg := testConfig()
	cfg.Window = 30 * time.Millisecond
	b := NewBreaker(cfg)

	err := b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	require.Error(t, err)
	err = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	require.Error(t, err)
	assert.Equal(t, StateClosed, b.State(), "two failures below threshold should not open the breaker")

	time.Sleep(40 * time.Millisecond) // failures age out of the window

	err = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	require.Error(t, err)
	assert.Equal(t, StateClosed, b.State(), "a failure after the window rolled should not combine with aged-out ones")
}

// TestBreaker_HalfOpenProbe is scenario S4: breaker open -> half-open
// probe after OpenDuration, closing on a successful probe.
func TestBreaker_HalfOpenProbe(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	cfg.OpenDuration = 30 * time.Millisecond
	b := NewBreaker(cfg)

	err := b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.State())

	// Still within OpenDuration: rejected without a probe.
	err = b.Call(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(40 * time.Millisecond)

	// First call after OpenDuration is admitted as the half-open probe.
	err = b.Call(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State(), "a successful half-open probe should close the breaker")
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	cfg.OpenDuration = 30 * time.Millisecond
	b := NewBreaker(cfg)

	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	time.Sleep(40 * time.Millisecond)

	err := b.Call(context.Background(), func(ctx context.Context) error { return errors.New("still failing") })
	assert.Error(t, err)
	assert.Equal(t, StateOpen, b.State(), "a failed probe should reopen the breaker")
}

func TestBreaker_RequestTimeoutCountsAsFailure(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 20 * time.Millisecond
	b := NewBreaker(cfg)

	err := b.Call(context.Background(), func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.Equal(t, int64(1), b.Stats().TotalTimeouts)
}

// TestManager_IsolatesProvidersFromEachOther is the isolation half of
// property #2: one provider's breaker opening must not affect another.
func TestManager_IsolatesProvidersFromEachOther(t *testing.T) {
	m := NewManager()
	m.AddProvider("akshare", testConfig())
	m.AddProvider("tushare", testConfig())

	for i := 0; i < 3; i++ {
		_ = m.Call(context.Background(), "akshare", func(ctx context.Context) error {
			return errors.New("boom")
		})
	}

	err := m.Call(context.Background(), "akshare", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)

	err = m.Call(context.Background(), "tushare", func(ctx context.Context) error { return nil })
	assert.NoError(t, err, "tushare's breaker must be unaffected by akshare's failures")
}

func TestManager_UnconfiguredProviderCallsDirectly(t *testing.T) {
	m := NewManager()
	err := m.Call(context.Background(), "unknown", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}
