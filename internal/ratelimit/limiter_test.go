package ratelimit

import (
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAdmit_FixedWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := New(15, 15*time.Minute, WithClock(clock.Now))

	for i := 1; i <= 15; i++ {
		d := l.Admit("203.0.113.7")
		require.True(t, d.Allowed, "request %d should be admitted", i)
		assert.Equal(t, i, d.Count)
		assert.Equal(t, 15-i, d.Remaining)
	}

	clock.Advance(5 * time.Minute)
	denied := l.Admit("203.0.113.7")
	assert.False(t, denied.Allowed)
	assert.Equal(t, 10*time.Minute, denied.RetryAfter)

	// Other identities are unaffected.
	assert.True(t, l.Admit("198.51.100.1").Allowed)

	clock.Advance(10*time.Minute + time.Second)
	fresh := l.Admit("203.0.113.7")
	assert.True(t, fresh.Allowed)
	assert.Equal(t, 1, fresh.Count)

	w, ok := l.Snapshot("203.0.113.7")
	require.True(t, ok)
	assert.Equal(t, 1, w.Count)
	assert.Equal(t, clock.Now(), w.Start)
}

func TestAdmit_DeniedDoesNotExtendWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(1, time.Minute, WithClock(clock.Now))

	require.True(t, l.Admit("a").Allowed)
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		assert.False(t, l.Admit("a").Allowed)
	}
	w, _ := l.Snapshot("a")
	assert.Equal(t, 1, w.Count)

	clock.Advance(11 * time.Second)
	assert.True(t, l.Admit("a").Allowed)
}

func TestAdmit_ConcurrentCheckAndIncrement(t *testing.T) {
	l := New(10, time.Hour)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit("same-client").Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), admitted.Load())
}

func TestClientIdentity(t *testing.T) {
	tests := []struct {
		name       string
		realIP     string
		forwarded  string
		remoteAddr string
		trust      bool
		want       string
	}{
		{name: "real ip wins", realIP: "203.0.113.9", forwarded: "198.51.100.2", remoteAddr: "10.0.0.1:5555", trust: true, want: "203.0.113.9"},
		{name: "first valid forwarded", forwarded: "garbage, 198.51.100.2, 10.0.0.3", remoteAddr: "10.0.0.1:5555", trust: true, want: "198.51.100.2"},
		{name: "invalid real ip falls through", realIP: "nope", forwarded: "198.51.100.4", trust: true, remoteAddr: "10.0.0.1:1", want: "198.51.100.4"},
		{name: "peer address", remoteAddr: "192.0.2.10:44321", trust: true, want: "192.0.2.10"},
		{name: "peer without port", remoteAddr: "192.0.2.11", trust: true, want: "192.0.2.11"},
		{name: "ipv6 peer", remoteAddr: "[2001:db8::1]:443", trust: true, want: "2001:db8::1"},
		{name: "untrusted headers ignored", realIP: "203.0.113.9", forwarded: "198.51.100.2", remoteAddr: "192.0.2.12:80", trust: false, want: "192.0.2.12"},
		{name: "unknown bucket", remoteAddr: "pipe", trust: true, want: UnknownIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/generate", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, ClientIdentity(r, tt.trust))
		})
	}
}
