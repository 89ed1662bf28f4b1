// Package ratelimit tracks per-endpoint backoff for upstream calls that the
// provider throttles. It is advisory and process local; nothing is persisted.
package ratelimit

import (
	"net/http"
	"sync"
	"time"
)

// Options configures a Limiter. Zero values fall back to the defaults below.
type Options struct {
	// DefaultCooldown is the minimum spacing between calls for a key with no backoff.
	DefaultCooldown time.Duration
	// Floor is the first backoff applied after a 429 when no backoff is active.
	Floor time.Duration
	// Factor multiplies the current backoff on every further 429.
	Factor float64
	// Max caps the backoff.
	Max time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

const (
	defaultFloor  = time.Second
	defaultFactor = 2
	defaultMax    = 60 * time.Second
)

type state struct {
	lastRequestAt time.Time
	backoff       time.Duration
}

// Limiter holds backoff state per endpoint key.
type Limiter struct {
	mu     sync.Mutex
	states map[string]*state
	opts   Options
}

// New creates a Limiter.
func New(opts Options) *Limiter {
	if opts.Floor <= 0 {
		opts.Floor = defaultFloor
	}
	if opts.Factor <= 1 {
		opts.Factor = defaultFactor
	}
	if opts.Max <= 0 {
		opts.Max = defaultMax
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Limiter{
		states: make(map[string]*state),
		opts:   opts,
	}
}

// CanProceed reports whether the wait interval for key has elapsed.
func (l *Limiter) CanProceed(key string) bool {
	return l.WaitTimeRemaining(key) == 0
}

// RecordSuccess stamps the call and clears any backoff.
func (l *Limiter) RecordSuccess(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.get(key)
	s.lastRequestAt = l.opts.Now()
	s.backoff = 0
}

// RecordFailure stamps the call. A 429 grows the backoff: floor first, then
// multiplied by Factor up to Max. Other status codes leave the backoff alone.
func (l *Limiter) RecordFailure(key string, statusCode int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.get(key)
	s.lastRequestAt = l.opts.Now()
	if statusCode != http.StatusTooManyRequests {
		return
	}

	next := l.opts.Floor
	if s.backoff > 0 {
		next = time.Duration(float64(s.backoff) * l.opts.Factor)
	}
	if next > l.opts.Max {
		next = l.opts.Max
	}
	s.backoff = next
}

// WaitTimeRemaining returns how long a caller should wait before calling key again.
func (l *Limiter) WaitTimeRemaining(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.states[key]
	if !ok {
		return 0
	}
	interval := s.backoff
	if interval == 0 {
		interval = l.opts.DefaultCooldown
	}
	remaining := interval - l.opts.Now().Sub(s.lastRequestAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Backoff returns the current backoff for key.
func (l *Limiter) Backoff(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.states[key]; ok {
		return s.backoff
	}
	return 0
}

func (l *Limiter) get(key string) *state {
	s, ok := l.states[key]
	if !ok {
		s = &state{}
		l.states[key] = s
	}
	return s
}
