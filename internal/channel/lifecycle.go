package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	ncerr "modemlink/internal/errors"
	"modemlink/internal/transport"
)

// step is one bring-up action.  undo reverses it and is nil for steps
// that leave nothing behind.
type step struct {
	name  string
	state State
	do    func(ctx context.Context) error
	undo  func() error
}

// plan returns the bring-up sequence for the profile.  Every closure
// acts on *h, which the "handle" step fills in.
func (c *Client) plan(h *transport.Client) []step {
	steps := []step{
		{
			name:  "handle",
			state: StateHandleCreated,
			do: func(context.Context) error {
				hc, err := c.factory(c.profile.Kind)
				if err != nil {
					return err
				}
				if hc == nil {
					return errors.New("factory returned no handle")
				}
				*h = hc
				return nil
			},
			undo: func() error { return (*h).Destroy() },
		},
		{
			name:  "log-sink",
			state: StateLogSinkAttached,
			do:    func(context.Context) error { return (*h).SetLogSink(c.sink) },
		},
		{
			name:  "data",
			state: StateDataCreated,
			do:    func(context.Context) error { return (*h).CreateData() },
			undo:  func() error { return (*h).DestroyData() },
		},
	}
	if c.profile.NeedsBootstrap {
		steps = append(steps, step{
			name:  "bootstrap",
			state: StateBootstrapped,
			do:    func(ctx context.Context) error { return (*h).Bootstrap(ctx) },
		})
	}
	steps = append(steps, step{
		name:  "open",
		state: StateOpen,
		do:    func(ctx context.Context) error { return (*h).Open(ctx) },
		undo:  func() error { return (*h).Close() },
	})
	if c.profile.NeedsPowerOn {
		steps = append(steps, step{
			name:  "power-on",
			state: StatePoweredOn,
			do:    func(ctx context.Context) error { return (*h).PowerOn(ctx) },
			undo:  func() error { return (*h).PowerOff() },
		})
	}
	return steps
}

// readyState is the state a fully created channel rests in.
func (c *Client) readyState() State {
	if c.profile.NeedsPowerOn {
		return StatePoweredOn
	}
	return StateOpen
}

// ── Create ───────────────────────────────────────────────────────────

// Create brings the channel up.  Steps run in order and the first
// failure unwinds the completed ones in reverse; the handle is
// published only once every step has succeeded.  Failures match
// [ncerr.ErrCreateFailed]; [ncerr.FailedStep] names the step.
func (c *Client) Create(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("create: %w: nil client", ncerr.ErrInvalidArgument)
	}
	if c.factory == nil {
		return fmt.Errorf("%s: create: %w: nil transport factory", c.profile.Name, ncerr.ErrInvalidArgument)
	}

	c.life.Lock()
	defer c.life.Unlock()

	if c.Live() {
		return fmt.Errorf("%s: %w", c.profile.Name, ncerr.ErrAlreadyCreated)
	}

	c.log.Debug("creating channel")

	var h transport.Client
	var cleanup []step
	for _, s := range c.plan(&h) {
		c.log.Debug("setup step", zap.String("step", s.name))
		if err := s.do(ctx); err != nil {
			c.log.Error("setup step failed", zap.String("step", s.name), zap.Error(err))
			c.unwind(cleanup)
			c.setState(StateUninitialized)
			c.metrics.CreateFailed()
			return ncerr.Step(c.profile.Name, s.name, err)
		}
		if s.undo != nil {
			cleanup = append(cleanup, s)
		}
		c.setState(s.state)
	}

	id := uuid.NewString()
	c.instance.Store(id)
	c.guard.swap(h)
	c.metrics.SetUp(true)
	c.log.Info("channel created", zap.String("instance", id))
	return nil
}

// unwind runs the undo of every step in cleanup, last first.  Errors
// are logged and do not stop the remaining undos.
func (c *Client) unwind(cleanup []step) {
	var errs error
	for i := len(cleanup) - 1; i >= 0; i-- {
		s := cleanup[i]
		c.log.Debug("undo step", zap.String("step", s.name))
		if err := s.undo(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("undo %s: %w", s.name, err))
		}
	}
	if errs != nil {
		c.log.Warn("teardown incomplete", zap.Errors("errors", multierr.Errors(errs)))
	}
}

// ── Destroy ──────────────────────────────────────────────────────────

// Destroy tears the channel down in reverse bring-up order.  It is a
// no-op on a channel that is not live and always returns nil; teardown
// errors are logged.  The handle is unpublished before teardown starts,
// so concurrent senders drop instead of writing to a closing handle.
// A running read loop must be stopped first.
func (c *Client) Destroy() error {
	if c == nil {
		return nil
	}

	c.life.Lock()
	defer c.life.Unlock()

	h := c.guard.swap(nil)
	if h == nil {
		c.log.Debug("channel already destroyed")
		return nil
	}
	c.metrics.SetUp(false)
	c.log.Debug("destroying channel", zap.String("instance", c.Instance()))

	var cleanup []step
	for _, s := range c.plan(&h) {
		if s.undo != nil {
			cleanup = append(cleanup, s)
		}
	}
	c.unwind(cleanup)

	c.setState(StateDestroyed)
	c.log.Info("channel destroyed")
	return nil
}
