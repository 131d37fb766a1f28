// Package ratelimit provides per-client fixed-window admission control.
//
// Windows live in process memory only; a restart forgets every counter. The
// limiter is a best-effort guard against accidental hammering of the paid model
// APIs, not a security boundary.
package ratelimit

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Window is the admission state for one client identity.
type Window struct {
	Count int
	Start time.Time
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Count      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits at most limit requests per identity per window.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	// mu serializes check-and-increment so two concurrent requests from the
	// same identity cannot both observe count < limit.
	mu      sync.Mutex
	windows *cache.Cache
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter. Idle windows are evicted by the cache janitor once a
// full window has passed since they started.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: cache.New(window, window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the configured per-window request ceiling.
func (l *Limiter) Limit() int { return l.limit }

// Admit records a request from identity and reports whether it may proceed.
func (l *Limiter) Admit(identity string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	var w *Window
	if v, ok := l.windows.Get(identity); ok {
		w = v.(*Window)
	}

	if w == nil || now.Sub(w.Start) > l.window {
		w = &Window{Count: 1, Start: now}
		l.windows.Set(identity, w, cache.DefaultExpiration)
		return Decision{Allowed: true, Count: 1, Remaining: l.limit - 1}
	}

	if w.Count >= l.limit {
		retry := l.window - now.Sub(w.Start)
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, Count: w.Count, RetryAfter: retry}
	}

	w.Count++
	return Decision{Allowed: true, Count: w.Count, Remaining: l.limit - w.Count}
}

// Snapshot returns a copy of identity's current window, if one exists.
func (l *Limiter) Snapshot(identity string) (Window, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.windows.Get(identity)
	if !ok {
		return Window{}, false
	}
	return *v.(*Window), true
}
