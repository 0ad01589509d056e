package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"modemlink/internal/channel"
	ncerr "modemlink/internal/errors"
	"modemlink/internal/metrics"
	"modemlink/internal/retry"
	"modemlink/util"
)

// Supervisor keeps one channel up: create, run the read loop, destroy,
// and after a failure wait out the back-off before trying again.  A run
// that lasted StableAfter rewinds the back-off and clears the breaker.
type Supervisor struct {
	Client      *channel.Client
	Dispatcher  channel.Dispatcher
	Backoff     *retry.Backoff        // nil = retry.DefaultBackoff()
	Breaker     *retry.CircuitBreaker // nil = no breaker
	StableAfter time.Duration
	Metrics     *metrics.Channel
	Logger      *util.Logger
}

// Run supervises until ctx is cancelled (nil) or the channel cannot be
// restarted: a programming error such as a nil dispatcher, or an
// exhausted Backoff.MaxAttempts budget.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.Client == nil || s.Dispatcher == nil {
		return fmt.Errorf("supervisor: %w: nil client or dispatcher", ncerr.ErrInvalidArgument)
	}
	logger := s.Logger
	if logger == nil {
		logger = util.NopLogger()
	}
	backoff := s.Backoff
	if backoff == nil {
		backoff = retry.DefaultBackoff()
	}
	name := s.Client.Profile().Name
	sched := backoff.Schedule()

	failures := 0
	for {
		started := time.Now()
		err := s.attempt(ctx, started)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ncerr.ErrInvalidArgument) || errors.Is(err, ncerr.ErrAlreadyCreated) {
			return err
		}
		if err == nil {
			err = errors.New("read loop exited")
		}

		if s.stable(started) {
			sched.Reset()
			failures = 0
		}
		failures++
		if backoff.MaxAttempts > 0 && failures >= backoff.MaxAttempts {
			return fmt.Errorf("%s: giving up after %d attempts: %w", name, failures, err)
		}

		wait := sched.Next()
		s.Metrics.Restarted()
		if step := ncerr.FailedStep(err); step != "" {
			logger.Warn("%s: setup failed at %s: %v; retrying in %v", name, step, err, wait.Truncate(time.Millisecond))
		} else {
			logger.Warn("%s: %v; retrying in %v", name, err, wait.Truncate(time.Millisecond))
		}
		if retry.Sleep(ctx, wait) != nil {
			return nil
		}
	}
}

// attempt runs one create/run/destroy cycle through the breaker.
func (s *Supervisor) attempt(ctx context.Context, started time.Time) error {
	if err := s.Breaker.Allow(); err != nil {
		return err
	}
	err := s.cycle(ctx)
	if s.stable(started) {
		s.Breaker.Reset()
	} else if ctx.Err() == nil {
		s.Breaker.Record(err)
	}
	return err
}

func (s *Supervisor) cycle(ctx context.Context) error {
	if err := s.Client.Create(ctx); err != nil {
		return err
	}
	defer s.Client.Destroy() //nolint:errcheck
	return s.Client.Run(ctx, s.Dispatcher)
}

func (s *Supervisor) stable(started time.Time) bool {
	return s.StableAfter > 0 && time.Since(started) >= s.StableAfter
}
