package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Default call policy values.
const (
	DefaultCallTimeout = 60 * time.Second
	DefaultMaxRetries  = 2
)

// CallPolicy bounds every model call with a per-attempt deadline, a small
// retry budget for transient failures and an optional process-wide pacer.
// A CallPolicy is safe for concurrent use.
type CallPolicy struct {
	timeout         time.Duration
	maxRetries      int
	limiter         *rate.Limiter
	initialInterval time.Duration
}

// NewCallPolicy builds a policy. rps <= 0 disables pacing.
func NewCallPolicy(timeout time.Duration, maxRetries int, rps float64) *CallPolicy {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	p := &CallPolicy{
		timeout:         timeout,
		maxRetries:      maxRetries,
		initialInterval: 500 * time.Millisecond,
	}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return p
}

// Do runs fn until it succeeds, fails permanently, or the retry budget is
// spent. A final attempt timeout is returned wrapping context.DeadlineExceeded.
func (p *CallPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		start := time.Now()
		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%s: attempt timed out after %s: %w", op, p.timeout, context.DeadlineExceeded)
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}

		log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("elapsed", time.Since(start)).
			Msg("Transient model call failure")
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialInterval
	b.MaxElapsedTime = 0
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.maxRetries)), ctx))
}
