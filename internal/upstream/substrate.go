// Package upstream is the single mediated entry point for every
// external HTTP call the core makes. Every provider call passes through
// a token bucket, a circuit breaker, and a retry policy; a provider
// with a key pool attached (SetKeyPool) additionally rotates through
// its keys on every call.
package upstream

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eastmoney-sub000/factord/internal/config"
	"github.com/eastmoney-sub000/factord/internal/net/budget"
	"github.com/eastmoney-sub000/factord/internal/net/circuit"
	"github.com/eastmoney-sub000/factord/internal/net/keypool"
	"github.com/eastmoney-sub000/factord/internal/net/ratelimit"
)

// callMetrics is the narrow interface Call uses to record outcomes.
// internal/metrics.Registry satisfies it; left nil, Call records nothing.
type callMetrics interface {
	ObserveUpstreamCall(provider, function, outcome string)
}

// Row is one row of an upstream tabular result: scalar/string cells
// keyed by column name, exactly as returned by the provider (before any
// safenum coercion happens in the factor computers).
type Row map[string]interface{}

// Table is a full tabular result: headers in display order plus rows.
type Table struct {
	Headers []string
	Rows    []Row
}

// Args is the typed argument record for a provider call.
type Args map[string]interface{}

// Fn is a provider function identified by name: given args, return a
// Table or a typed *Error.
type Fn func(ctx context.Context, args Args) (*Table, error)

// Substrate mediates calls to every registered provider.
type Substrate struct {
	limiters  *ratelimit.Manager
	breakers  *circuit.Manager
	budgets   *budget.Manager
	keyPools  map[string]*keypool.Pool
	providers map[string]registeredProvider
	retryN    int
	metrics   callMetrics
}

type registeredProvider struct {
	name string
	fns  map[string]Fn
}

// New builds a Substrate with one rate limiter, circuit breaker, and
// (where DailyBudget > 0) budget tracker per configured provider. These
// are constructed once and held for the process lifetime — the only
// legitimate global mutable state in the core.
func New(cfg *config.ProvidersConfig) *Substrate {
	s := &Substrate{
		limiters:  ratelimit.NewManager(),
		breakers:  circuit.NewManager(),
		budgets:   budget.NewManager(),
		keyPools:  make(map[string]*keypool.Pool),
		providers: make(map[string]registeredProvider),
		retryN:    2,
	}
	for name, pc := range cfg.Providers {
		effectiveLimit := pc.EffectiveLimit()
		rps := float64(effectiveLimit) / 60.0
		if rps <= 0 {
			rps = 1
		}
		s.limiters.AddProvider(name, rps, pc.Burst)
		s.breakers.AddProvider(name, circuit.Config{
			FailureThreshold: pc.Circuit.FailureThreshold,
			Window:           pc.Circuit.WindowDuration(),
			OpenDuration:     pc.Circuit.OpenDurationMS.Duration(),
			RequestTimeout:   pc.GetRequestTimeout(),
		})
		if pc.DailyBudget > 0 {
			s.budgets.AddProvider(name, int64(pc.DailyBudget), cfg.Budget.ResetHour, cfg.Budget.WarnThreshold)
		}
	}
	return s
}

// RegisterProvider attaches the named functions a provider exposes.
func (s *Substrate) RegisterProvider(provider string, fns map[string]Fn) {
	s.providers[provider] = registeredProvider{name: provider, fns: fns}
}

// SetKeyPool attaches a rotating key pool to a provider. Once attached,
// every Call to that provider acquires a key from the pool and injects
// it into args under keyArgName.
func (s *Substrate) SetKeyPool(provider string, keys []string) {
	s.keyPools[provider] = keypool.New(keys)
}

// keyArgName is the Args key a rotated pool key is injected under.
const keyArgName = "api_key"

// SetMetrics attaches a metrics sink; m may be nil to disable recording.
func (s *Substrate) SetMetrics(m callMetrics) {
	s.metrics = m
}

func (s *Substrate) recordCall(provider, function, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveUpstreamCall(provider, function, outcome)
	}
}

// Call invokes provider.function(args), applying rate limiting, circuit
// breaking, retry, and (where configured) key rotation. deadline, if
// non-zero, bounds the whole call including retries.
func (s *Substrate) Call(ctx context.Context, provider, function string, args Args, deadline time.Duration) (*Table, error) {
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	reg, ok := s.providers[provider]
	if !ok {
		return nil, NewError(InvalidArgument, provider, errors.New("unknown provider"))
	}
	fn, ok := reg.fns[function]
	if !ok {
		return nil, NewError(InvalidArgument, provider, errors.New("unknown function: "+function))
	}

	if err := s.budgets.Allow(provider); err != nil {
		var exhausted *budget.BudgetExhaustedError
		if errors.As(err, &exhausted) {
			return nil, NewError(Unavailable, provider, err)
		}
		log.Warn().Str("provider", provider).Err(err).Msg("provider budget warning")
	}

	var lastErr error
	for attempt := 0; attempt <= s.retryN; attempt++ {
		if attempt > 0 {
			if werr := backoffWait(ctx, attempt); werr != nil {
				return nil, NewError(Deadline, provider, werr)
			}
		}

		if err := s.limiters.Wait(ctx, provider); err != nil {
			return nil, NewError(Deadline, provider, err)
		}

		var table *Table
		var err error
		if pool, ok := s.keyPools[provider]; ok {
			table, err = s.callWithKeyRotation(ctx, provider, pool, fn, args)
		} else {
			table, err = s.callOnce(ctx, provider, fn, args)
		}
		_ = s.budgets.Consume(provider)
		if err == nil {
			s.recordCall(provider, function, "success")
			return table, nil
		}

		var uerr *Error
		if errors.As(err, &uerr) {
			lastErr = uerr
			if uerr.Kind == NotFound || uerr.Kind == InvalidArgument || uerr.Kind == NoKeyAvailable {
				s.recordCall(provider, function, string(uerr.Kind))
				return nil, uerr
			}
			if !uerr.Kind.IsRetryable() {
				s.recordCall(provider, function, string(uerr.Kind))
				return nil, uerr
			}
			continue
		}
		lastErr = NewError(Transient, provider, err)
	}
	s.recordCall(provider, function, "failed")
	return nil, lastErr
}

func (s *Substrate) callOnce(ctx context.Context, provider string, fn Fn, args Args) (*Table, error) {
	var table *Table
	err := s.breakers.Call(ctx, provider, func(ctx context.Context) error {
		t, ferr := fn(ctx, args)
		if ferr != nil {
			return ferr
		}
		table = t
		return nil
	})
	if err != nil {
		if errors.Is(err, circuit.ErrCircuitOpen) {
			return nil, NewError(Unavailable, provider, err)
		}
		if errors.Is(err, circuit.ErrRequestTimeout) {
			return nil, NewError(Deadline, provider, err)
		}
		var uerr *Error
		if errors.As(err, &uerr) {
			return nil, uerr
		}
		return nil, NewError(Transient, provider, err)
	}
	return table, nil
}

// callWithKeyRotation acquires the head key from pool, injects it into
// args under keyArgName, and calls fn through callOnce. On success the
// key is rotated to the tail; on a usage-limit (RateLimited) error the
// key is removed and the next key is tried, up to the pool's starting
// size. NoKeyAvailable is returned once the pool empties.
func (s *Substrate) callWithKeyRotation(ctx context.Context, provider string, pool *keypool.Pool, fn Fn, args Args) (*Table, error) {
	attempts := pool.Size()
	if attempts == 0 {
		return nil, NewError(NoKeyAvailable, provider, keypool.ErrNoKeyAvailable)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		key, err := pool.Next()
		if err != nil {
			return nil, NewError(NoKeyAvailable, provider, err)
		}

		keyed := make(Args, len(args)+1)
		for k, v := range args {
			keyed[k] = v
		}
		keyed[keyArgName] = key

		table, err := s.callOnce(ctx, provider, fn, keyed)
		if err == nil {
			pool.Succeeded(key)
			return table, nil
		}

		var uerr *Error
		if errors.As(err, &uerr) && uerr.Kind == RateLimited {
			pool.Failed(key)
			lastErr = uerr
			continue
		}
		return nil, err
	}
	return nil, NewError(NoKeyAvailable, provider, lastErr)
}

func backoffWait(ctx context.Context, attempt int) error {
	base := 200 * time.Millisecond
	max := 5 * time.Second
	d := base * time.Duration(1<<uint(attempt-1))
	if d > max {
		d = max
	}
	jittered := time.Duration(rand.Int63n(int64(d)))
	t := time.NewTimer(jittered)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stats is a point-in-time snapshot of one provider's rate, budget, and
// breaker state.
type Stats struct {
	Provider       string  `json:"provider"`
	EffectiveLimit int     `json:"effective_limit"`
	CallsInWindow  int64   `json:"calls_in_window"`
	Utilization    float64 `json:"utilization"`
	BreakerState   string  `json:"breaker_state"`
}

func (s *Substrate) ProviderStats(provider string, cfg *config.ProvidersConfig) Stats {
	pc, _ := cfg.GetProvider(provider)
	effLimit := 0
	if pc != nil {
		effLimit = pc.EffectiveLimit()
	}
	bstats := s.breakers.Stats()[provider]
	budStats := s.budgets.Stats()[provider]
	return Stats{
		Provider:       provider,
		EffectiveLimit: effLimit,
		CallsInWindow:  budStats.Used,
		Utilization:    budStats.UtilizationRate,
		BreakerState:   bstats.State.String(),
	}
}
