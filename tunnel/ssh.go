package tunnel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "modemlink/internal/errors"
	"modemlink/util"
)

// DefaultPort is the standard SSH port.
const DefaultPort = 22

// SSHConfig holds everything needed to reach a modem's SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// KeepAlive is the interval between keepalive@openssh.com probes.
	// A failed probe closes the connection so the channels riding on it
	// fail fast instead of waiting on a dead gateway.  0 disables.
	KeepAlive time.Duration
}

// Addr returns the gateway's host:port.
func (c *SSHConfig) Addr() string { return util.FormatAddr(c.Host, c.Port) }

// SSHTunnel implements [Tunnel] over one SSH client connection.  Modem
// endpoints are reached with ssh.Client.Dial, so both "tcp" addresses
// and "unix" socket paths (streamlocal forwarding) work.
type SSHTunnel struct {
	config *SSHConfig
	logger *util.Logger

	mu     sync.RWMutex
	client *ssh.Client
	alive  bool
}

// NewSSHTunnel creates a tunnel that is ready to [SSHTunnel.Connect].
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = util.NopLogger()
	}
	return &SSHTunnel{config: cfg, logger: logger}
}

// clientConfig assembles authentication and host key checking.
func (t *SSHTunnel) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := BuildAuthMethods(t.config)
	if err != nil {
		return nil, ncerr.WrapSSH("auth", t.config.Host, t.config.Port, err)
	}
	hostKey, err := hostKeyCallback(t.config)
	if err != nil {
		return nil, ncerr.WrapSSH("hostkey", t.config.Host, t.config.Port, err)
	}
	return &ssh.ClientConfig{
		User:            t.config.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         t.config.ConnTimeout,
	}, nil
}

// Connect dials the gateway and completes the handshake.  A previous
// client, dead or alive, is replaced and closed.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	sshCfg, err := t.clientConfig()
	if err != nil {
		return err
	}

	addr := t.config.Addr()
	t.logger.Debug("ssh: dialing %s as %s", addr, t.config.User)

	dialer := net.Dialer{Timeout: t.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ncerr.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return ncerr.WrapSSH("handshake", t.config.Host, t.config.Port, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	t.mu.Lock()
	old := t.client
	t.client = client
	t.alive = true
	t.mu.Unlock()
	if old != nil {
		old.Close()
	}

	go t.monitor(client)
	if t.config.KeepAlive > 0 {
		go t.keepalive(client, t.config.KeepAlive)
	}
	return nil
}

// Dial opens a connection to a modem endpoint through the gateway.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	t.mu.RLock()
	client, alive := t.client, t.alive
	t.mu.RUnlock()

	if !alive || client == nil {
		return nil, ncerr.ErrNotConnected
	}

	t.logger.Debug("ssh: forwarding %s %s", network, address)
	conn, err := client.DialContext(ctx, network, address)
	if err != nil {
		return nil, ncerr.WrapSSH("dial", t.config.Host, t.config.Port, fmt.Errorf("%s: %w", address, err))
	}
	return conn, nil
}

// Close shuts down the SSH connection.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.alive = false
	t.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}

// IsAlive reports whether the tunnel is still connected.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// current reports whether client is still the tunnel's live client.
func (t *SSHTunnel) current(client *ssh.Client) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.client == client && t.alive
}

// monitor waits for client's connection to end and marks the tunnel
// dead, unless a newer client has replaced it.
func (t *SSHTunnel) monitor(client *ssh.Client) {
	err := client.Wait()

	t.mu.Lock()
	if t.client == client {
		t.alive = false
	}
	t.mu.Unlock()

	if err != nil {
		t.logger.Debug("ssh: tunnel closed: %v", err)
	} else {
		t.logger.Debug("ssh: tunnel closed")
	}
}

// keepalive probes client every interval and closes it on the first
// unanswered probe.  It stops once client is replaced or closed.
func (t *SSHTunnel) keepalive(client *ssh.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if !t.current(client) {
			return
		}
		if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
			t.logger.Warn("ssh: keepalive to %s failed: %v", t.config.Addr(), err)
			client.Close()
			return
		}
		t.logger.Debug("ssh: keepalive ok")
	}
}
