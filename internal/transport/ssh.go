package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"modemlink/tunnel"
	"modemlink/util"
)

// SSHDialer routes connections through an SSH tunnel, for modems whose
// IPC endpoint is only reachable from a bastion.  The tunnel is
// connected lazily on the first Dial call, shared by every channel that
// uses the dialer, and torn down on Close.
type SSHDialer struct {
	// OnReconnect, if set, runs each time a dropped tunnel is
	// re-established.
	OnReconnect func()

	tunnel    tunnel.Tunnel
	logger    *util.Logger
	mu        sync.Mutex
	connected bool // a tunnel was up at least once
}

// NewSSHDialer creates a dialer that forwards connections through an
// SSH tunnel.  The tunnel is not connected until the first Dial.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{
		tunnel: tunnel.NewSSHTunnel(cfg, logger),
		logger: logger,
	}
}

// connect establishes the SSH tunnel if it is not up.  A tunnel that
// dropped since the last call is reconnected.
func (d *SSHDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tunnel.IsAlive() {
		return nil
	}

	d.logger.Verbose("establishing SSH tunnel")
	if err := d.tunnel.Connect(ctx); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	d.logger.Verbose("SSH tunnel established")
	if d.connected && d.OnReconnect != nil {
		d.OnReconnect()
	}
	d.connected = true
	return nil
}

// Dial connects to address through the SSH tunnel, lazily establishing
// the tunnel on the first call.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d.tunnel.Dial(ctx, network, address)
}

// Close tears down the underlying SSH tunnel.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tunnel.Close()
}
