// Package retry paces channel restarts.  A Backoff describes the delay
// curve, a Schedule walks it and can be rewound after a run that stayed
// up long enough, and a CircuitBreaker stops hammering a modem that
// keeps failing setup.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError marks a failure that no amount of retrying will fix,
// such as a channel built with a nil transport factory.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.  Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff describes an exponential delay curve.  Zero fields fall back
// to the defaults noted below.
type Backoff struct {
	// InitialDelay is the first delay (default 1s).
	InitialDelay time.Duration
	// MaxDelay caps every delay (default 60s).
	MaxDelay time.Duration
	// Multiplier grows the delay after each step (default 2.0).
	Multiplier float64
	// MaxAttempts bounds Do, first try included.  0 means unlimited.
	MaxAttempts int
	// Jitter spreads each delay by ±25%.
	Jitter bool
}

// DefaultBackoff returns the curve used for channel restarts.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  0,
		Jitter:       true,
	}
}

// Schedule returns a fresh walker over the curve.
func (b *Backoff) Schedule() *Schedule {
	s := &Schedule{
		initial:    b.InitialDelay,
		max:        b.MaxDelay,
		multiplier: b.Multiplier,
		jitter:     b.Jitter,
	}
	if s.initial <= 0 {
		s.initial = time.Second
	}
	if s.max <= 0 {
		s.max = 60 * time.Second
	}
	if s.max < s.initial {
		s.max = s.initial
	}
	if s.multiplier <= 0 {
		s.multiplier = 2.0
	}
	s.Reset()
	return s
}

// Do calls fn until it succeeds, returns a permanent error, runs out of
// attempts or ctx is done.  attempt is 1-based.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	sched := b.Schedule()
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			return fmt.Errorf("max retries (%d) exceeded: %w", b.MaxAttempts, err)
		}
		if err := Sleep(ctx, sched.Next()); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// ── Schedule ─────────────────────────────────────────────────────────

// Schedule hands out successive delays of a Backoff.  It is not safe
// for concurrent use; each supervisor owns one.
type Schedule struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     bool

	next time.Duration
}

// Next returns the delay to wait now and advances the curve.
func (s *Schedule) Next() time.Duration {
	d := s.next
	grown := time.Duration(float64(s.next) * s.multiplier)
	if grown > s.max || grown < s.next {
		grown = s.max
	}
	s.next = grown
	if s.jitter {
		return addJitter(d)
	}
	return d
}

// Reset rewinds the curve to the initial delay.
func (s *Schedule) Reset() { s.next = s.initial }

// Sleep waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// addJitter spreads d by ±25%, never below a millisecond.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	return time.Duration(math.Max(float64(d)+delta, float64(time.Millisecond)))
}
