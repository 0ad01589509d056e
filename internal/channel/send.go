package channel

import (
	"go.uber.org/zap"

	"modemlink/internal/transport"
)

// Send writes one outbound message.  It never reports failure: a send
// on a channel that is not live is dropped without touching the
// transport, and transport errors are logged.  Both are counted.
// The type tag is ignored on untyped channels.
func (c *Client) Send(cmd uint16, typ uint8, data []byte, seq uint8) {
	if c == nil {
		return
	}
	if !c.profile.typed() {
		typ = 0
	}

	live := false
	var err error
	c.guard.withLock(func(h transport.Client) {
		if h == nil {
			return
		}
		live = true
		err = h.Send(cmd, typ, data, seq)
	})

	switch {
	case !live:
		c.metrics.Dropped()
		c.log.Debug("send dropped, channel not live",
			zap.Uint16("cmd", cmd), zap.Uint8("seq", seq))
	case err != nil:
		c.metrics.SendError()
		c.log.Warn("send failed",
			zap.Uint16("cmd", cmd), zap.Uint8("seq", seq), zap.Error(err))
	default:
		c.metrics.Sent(len(data))
	}
}
