// Package keypool implements the multi-key rotation pool a Substrate
// attaches to a provider via SetKeyPool: a shared pool of API keys
// protected by a mutex, round-robin on success, removed on a
// usage-limit error.
package keypool

import (
	"errors"
	"sync"
)

// ErrNoKeyAvailable is returned once the pool has been exhausted.
var ErrNoKeyAvailable = errors.New("keypool: no key available")

// Pool is a mutex-guarded round-robin deque of API keys.
type Pool struct {
	mu   sync.Mutex
	keys []string
}

// New creates a pool seeded with the given keys, in order.
func New(keys []string) *Pool {
	cp := make([]string, len(keys))
	copy(cp, keys)
	return &Pool{keys: cp}
}

// Next returns the key at the head of the pool without rotating it.
// Call Succeeded or Failed after the call completes to advance state.
func (p *Pool) Next() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", ErrNoKeyAvailable
	}
	return p.keys[0], nil
}

// Succeeded rotates key to the tail of the pool (round-robin).
func (p *Pool) Succeeded(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 || p.keys[0] != key {
		return
	}
	p.keys = append(p.keys[1:], key)
}

// Failed removes key from the pool after a usage-limit error. A key not
// currently at the head (e.g. already rotated by a racing caller) is
// still removed if present.
func (p *Pool) Failed(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			return
		}
	}
}

// Size returns the number of keys currently in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Snapshot returns a copy of the current key order, for tests/inspection.
func (p *Pool) Snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}
