package channel

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	ncerr "modemlink/internal/errors"
	"modemlink/internal/transport"
)

// Run is the channel's single inbound consumer.  Each iteration waits
// for data without the handle lock, receives one envelope under it,
// then dispatches and frees the envelope with the lock released.
//
// Run returns nil once ctx is cancelled.  A wait or receive failure
// ends the loop with an error matching [ncerr.ErrLoopAborted]; there is
// no reconnect, restarting is up to the caller.
func (c *Client) Run(ctx context.Context, d Dispatcher) error {
	if c == nil {
		return fmt.Errorf("run: %w: nil client", ncerr.ErrInvalidArgument)
	}
	if d == nil {
		return fmt.Errorf("%s: run: %w: nil dispatcher", c.profile.Name, ncerr.ErrInvalidArgument)
	}

	var h transport.Client
	c.guard.withLock(func(cur transport.Client) { h = cur })
	if h == nil {
		return fmt.Errorf("%s: run: %w: channel not created", c.profile.Name, ncerr.ErrInvalidArgument)
	}

	c.setState(StateRunning)
	defer c.state.CompareAndSwap(int32(StateRunning), int32(c.readyState()))
	c.log.Debug("read loop started")

	for {
		if ctx.Err() != nil {
			c.log.Debug("read loop stopped")
			return nil
		}

		if err := h.WaitReady(c.poll); err != nil {
			if errors.Is(err, ncerr.ErrReadyTimeout) {
				continue
			}
			return c.abort("wait", err)
		}

		var env *transport.Envelope
		var err error
		c.guard.withLock(func(cur transport.Client) {
			if cur != h {
				err = ncerr.ErrNotConnected
				return
			}
			env, err = cur.Receive()
		})
		if err == nil && env == nil {
			err = errors.New("receive returned no envelope")
		}
		if err != nil {
			return c.abort("receive", err)
		}

		c.metrics.Received(len(env.Data))
		d.Dispatch(env)
		h.FreeEnvelope(env)
	}
}

func (c *Client) abort(op string, err error) error {
	c.log.Error("read loop aborted", zap.String("op", op), zap.Error(err))
	c.metrics.LoopAborted()
	return &ncerr.LoopError{Channel: c.profile.Name, Op: op, Err: err}
}
