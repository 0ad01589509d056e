package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// NetDialer establishes plain TCP or unix-socket connections,
// optionally binding TCP connections to a specific source port.
type NetDialer struct {
	Timeout   time.Duration
	LocalPort int // tcp only: source-port binding (0 = ephemeral)
}

// Dial connects to address over network ("tcp", "tcp4", "tcp6", "unix").
func (d *NetDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}

	if d.LocalPort > 0 && network != "unix" {
		local := fmt.Sprintf(":%d", d.LocalPort)
		a, err := net.ResolveTCPAddr(network, local)
		if err != nil {
			return nil, fmt.Errorf("resolve local addr: %w", err)
		}
		dialer.LocalAddr = a
	}

	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op for stateless dialers.
func (d *NetDialer) Close() error { return nil }
