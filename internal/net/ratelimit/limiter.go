package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps a single provider's token bucket. One provider maps to
// exactly one host in this system, so unlike a multi-host limiter this
// holds a single *rate.Limiter rather than a per-host map.
type Limiter struct {
	mu    sync.RWMutex
	rl    *rate.Limiter
	rps   float64
	burst int
}

// NewLimiter creates a limiter with the given effective rate and burst.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		rl:    rate.NewLimiter(rate.Limit(rps), burst),
		rps:   rps,
		burst: burst,
	}
}

// Allow returns true if a call is allowed right now.
func (l *Limiter) Allow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rl.Allow()
}

// Wait blocks until a token is available or ctx (the call deadline) fires.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.RLock()
	rl := l.rl
	l.mu.RUnlock()
	return rl.Wait(ctx)
}

// Reserve reserves a token and returns the reservation.
func (l *Limiter) Reserve() *rate.Reservation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rl.Reserve()
}

// SetRPS updates the fill rate.
func (l *Limiter) SetRPS(rps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rps = rps
	l.rl.SetLimit(rate.Limit(rps))
}

// SetBurst updates the burst capacity.
func (l *Limiter) SetBurst(burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.burst = burst
	l.rl.SetBurst(burst)
}

// Stats returns the current state of this limiter.
func (l *Limiter) Stats() LimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	reservation := l.rl.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()

	return LimiterStats{
		RPS:             float64(l.rl.Limit()),
		Burst:           l.rl.Burst(),
		TokensAvailable: l.rl.Tokens(),
		NextAllowedAt:   time.Now().Add(delay),
		Delay:           delay,
	}
}

// Reset replaces the underlying bucket, clearing accrued tokens.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rl = rate.NewLimiter(rate.Limit(l.rps), l.burst)
}

// LimiterStats is a point-in-time snapshot of a Limiter.
type LimiterStats struct {
	RPS             float64       `json:"rps"`
	Burst           int           `json:"burst"`
	TokensAvailable float64       `json:"tokens_available"`
	NextAllowedAt   time.Time     `json:"next_allowed_at"`
	Delay           time.Duration `json:"delay"`
}

func (s *LimiterStats) IsThrottled() bool { return s.Delay > 0 }

// Manager owns one Limiter per provider.
type Manager struct {
	limiters map[string]*Limiter
	mu       sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{limiters: make(map[string]*Limiter)}
}

// AddProvider registers a token bucket for a provider at the given
// effective rate (calls per second) and burst capacity.
func (m *Manager) AddProvider(name string, rps float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = NewLimiter(rps, burst)
}

func (m *Manager) GetLimiter(provider string) (*Limiter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.limiters[provider]
	return l, ok
}

// Allow returns true if a call for provider is allowed right now.
func (m *Manager) Allow(provider string) bool {
	l, ok := m.GetLimiter(provider)
	if !ok {
		return true
	}
	return l.Allow()
}

// Wait blocks until a token for provider is available or ctx expires.
// If no limiter is configured for provider, it returns immediately.
func (m *Manager) Wait(ctx context.Context, provider string) error {
	l, ok := m.GetLimiter(provider)
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}

func (m *Manager) Stats() map[string]LimiterStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]LimiterStats, len(m.limiters))
	for name, l := range m.limiters {
		out[name] = l.Stats()
	}
	return out
}

func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.limiters {
		l.Reset()
	}
}
