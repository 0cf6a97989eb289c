package upstream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eastmoney-sub000/factord/internal/config"
)

func providerConfig(rawLimit, burst, dailyBudget int) config.ProviderConfig {
	return config.ProviderConfig{
		Host: "test", TierRawLimit: rawLimit, SafetyMargin: 1.0, Burst: burst,
		DailyBudget: dailyBudget, BaseURL: "http://example.invalid", Enabled: true,
		Circuit: config.CircuitConfig{FailureThreshold: 3, WindowSecs: 1, OpenDurationMS: 10000, TimeoutMS: 1000},
	}
}

func providersConfig(providers map[string]config.ProviderConfig) *config.ProvidersConfig {
	return &config.ProvidersConfig{
		Providers: providers,
		Budget:    config.BudgetConfig{WarnThreshold: 0.8, ResetHour: 0},
		Global:    config.GlobalConfig{MaxConcurrentPerHost: 4, UserAgent: "factord-test"},
	}
}

func alwaysOK(ctx context.Context, args Args) (*Table, error) {
	return &Table{Rows: []Row{{"ok": true}}}, nil
}

// TestSubstrate_RateLimitCompliance is testable property #1 through
// Call: no more than burst calls are admitted without waiting, even
// when the caller issues them back to back.
func TestSubstrate_RateLimitCompliance(t *testing.T) {
	cfg := providersConfig(map[string]config.ProviderConfig{
		"akshare": providerConfig(60, 5, 100000), // 60 raw/min * 1.0 margin = 1 rps, burst 5
	})
	sub := New(cfg)
	sub.RegisterProvider("akshare", map[string]Fn{"quote": alwaysOK})

	var admitted int
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	for i := 0; i < 8; i++ {
		_, err := sub.Call(ctx, "akshare", "quote", nil, 15*time.Millisecond)
		if err == nil {
			admitted++
		}
	}
	assert.LessOrEqual(t, admitted, 5, "admissions without blocking cannot exceed configured burst")
}

// TestSubstrate_BreakerIsolation is testable property #2: N failures on
// one provider trip Unavailable without invoking the provider function
// again, while a second, healthy provider is unaffected.
func TestSubstrate_BreakerIsolation(t *testing.T) {
	cfg := providersConfig(map[string]config.ProviderConfig{
		"akshare": providerConfig(6000, 10, 100000),
		"tushare": providerConfig(6000, 10, 100000),
	})
	sub := New(cfg)

	var calls int64
	var mu sync.Mutex
	failing := func(ctx context.Context, args Args) (*Table, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, NewError(Transient, "akshare", errors.New("boom"))
	}
	sub.RegisterProvider("akshare", map[string]Fn{"quote": failing})
	sub.RegisterProvider("tushare", map[string]Fn{"quote": alwaysOK})

	// retryN=2 means each Call can itself invoke failing() up to 3 times;
	// drive enough Calls to cross FailureThreshold=3 within WindowSecs=1.
	for i := 0; i < 2; i++ {
		_, _ = sub.Call(context.Background(), "akshare", "quote", nil, time.Second)
	}

	mu.Lock()
	callsBeforeOpen := calls
	mu.Unlock()
	require.GreaterOrEqual(t, callsBeforeOpen, int64(3))

	_, err := sub.Call(context.Background(), "akshare", "quote", nil, time.Second)
	require.Error(t, err)
	var uerr *Error
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, Unavailable, uerr.Kind)

	mu.Lock()
	callsAfterOpen := calls
	mu.Unlock()
	assert.Equal(t, callsBeforeOpen, callsAfterOpen, "an open breaker must not invoke the provider function again")

	_, err = sub.Call(context.Background(), "tushare", "quote", nil, time.Second)
	assert.NoError(t, err, "tushare must be unaffected by akshare's breaker opening")
}

// TestSubstrate_BreakerHalfOpenProbe is scenario S4 at the Call level:
// once OpenDuration elapses, the next Call is admitted as a probe.
func TestSubstrate_BreakerHalfOpenProbe(t *testing.T) {
	cfg := providersConfig(map[string]config.ProviderConfig{
		"akshare": {
			Host: "test", TierRawLimit: 6000, SafetyMargin: 1.0, Burst: 10,
			DailyBudget: 100000, BaseURL: "http://example.invalid", Enabled: true,
			Circuit: config.CircuitConfig{FailureThreshold: 1, WindowSecs: 1, OpenDurationMS: 300, TimeoutMS: 1000},
		},
	})
	sub := New(cfg)

	healthy := false
	sub.RegisterProvider("akshare", map[string]Fn{
		"quote": func(ctx context.Context, args Args) (*Table, error) {
			if healthy {
				return alwaysOK(ctx, args)
			}
			return nil, NewError(Transient, "akshare", errors.New("boom"))
		},
	})

	// First call fails once, opens the breaker, then its own retry is
	// rejected by the now-open breaker (bounded well under OpenDuration).
	_, err := sub.Call(context.Background(), "akshare", "quote", nil, time.Second)
	require.Error(t, err)

	_, err = sub.Call(context.Background(), "akshare", "quote", nil, time.Second)
	require.Error(t, err)
	var uerr *Error
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, Unavailable, uerr.Kind, "still within OpenDuration, Call must reject without probing")

	time.Sleep(350 * time.Millisecond)
	healthy = true

	_, err = sub.Call(context.Background(), "akshare", "quote", nil, time.Second)
	assert.NoError(t, err, "the first Call after OpenDuration should be admitted as the half-open probe")
}

// TestSubstrate_KeyRotationDistributionAndRemoval is testable property
// #3 exercised end to end through Call + SetKeyPool: keys rotate on
// success and are dropped on a rate-limited response, surfacing
// NoKeyAvailable once the pool empties.
func TestSubstrate_KeyRotationDistributionAndRemoval(t *testing.T) {
	cfg := providersConfig(map[string]config.ProviderConfig{
		"websearch": providerConfig(6000, 20, 100000),
	})
	sub := New(cfg)
	sub.SetKeyPool("websearch", []string{"k1", "k2", "k3", "k4", "k5"})

	usedKeys := map[string]int{}
	var mu sync.Mutex
	sub.RegisterProvider("websearch", map[string]Fn{
		"search": func(ctx context.Context, args Args) (*Table, error) {
			mu.Lock()
			usedKeys[args[keyArgName].(string)]++
			mu.Unlock()
			return alwaysOK(ctx, args)
		},
	})

	for i := 0; i < 50; i++ {
		_, err := sub.Call(context.Background(), "websearch", "search", nil, time.Second)
		require.NoError(t, err)
	}

	require.Len(t, usedKeys, 5)
	for k, c := range usedKeys {
		assert.GreaterOrEqual(t, c, 8, "key %s used too rarely: %d", k, c)
		assert.LessOrEqual(t, c, 12, "key %s used too often: %d", k, c)
	}
}

func TestSubstrate_KeyRotationRemovesKeyOnRateLimit(t *testing.T) {
	cfg := providersConfig(map[string]config.ProviderConfig{
		"websearch": providerConfig(6000, 20, 100000),
	})
	sub := New(cfg)
	sub.SetKeyPool("websearch", []string{"bad", "good"})

	sub.RegisterProvider("websearch", map[string]Fn{
		"search": func(ctx context.Context, args Args) (*Table, error) {
			if args[keyArgName].(string) == "bad" {
				return nil, NewError(RateLimited, "websearch", errors.New("usage limit"))
			}
			return alwaysOK(ctx, args)
		},
	})

	table, err := sub.Call(context.Background(), "websearch", "search", nil, time.Second)
	require.NoError(t, err)
	assert.NotNil(t, table)

	// The bad key should have been removed; every subsequent call must
	// succeed using only "good".
	for i := 0; i < 3; i++ {
		_, err := sub.Call(context.Background(), "websearch", "search", nil, time.Second)
		require.NoError(t, err)
	}
}

func TestSubstrate_KeyRotationNoKeyAvailableOnExhaustion(t *testing.T) {
	cfg := providersConfig(map[string]config.ProviderConfig{
		"websearch": providerConfig(6000, 20, 100000),
	})
	sub := New(cfg)
	sub.SetKeyPool("websearch", []string{"only"})

	sub.RegisterProvider("websearch", map[string]Fn{
		"search": func(ctx context.Context, args Args) (*Table, error) {
			return nil, NewError(RateLimited, "websearch", errors.New("usage limit"))
		},
	})

	_, err := sub.Call(context.Background(), "websearch", "search", nil, time.Second)
	require.Error(t, err)
	var uerr *Error
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, NoKeyAvailable, uerr.Kind)
}
