// Package config defines the runtime configuration for the modemlink
// daemon and the helpers that load, resolve and validate it.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	ncerr "modemlink/internal/errors"
	"modemlink/util"
)

// Config holds every tuneable for one daemon process.
type Config struct {
	// ── Channels ─────────────────────────────────────────────────────
	FMT          Endpoint      `yaml:"fmt"`
	RFS          Endpoint      `yaml:"rfs"`
	PollInterval time.Duration `yaml:"pollInterval"`
	BootTimeout  time.Duration `yaml:"bootTimeout"`
	FrameTimeout time.Duration `yaml:"frameTimeout"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`

	// ── SSH tunnel ───────────────────────────────────────────────────
	Tunnel TunnelConfig `yaml:"tunnel"`

	// ── Inbound handling ─────────────────────────────────────────────
	Execute string `yaml:"exec"`    // -e: handler program fed relay lines
	Command string `yaml:"command"` // -c: handler shell command

	// ── Supervision ──────────────────────────────────────────────────
	Restart RestartConfig `yaml:"restart"`

	// ── Surfaces ─────────────────────────────────────────────────────
	MetricsAddr string `yaml:"metricsAddr"`
	ControlAddr string `yaml:"controlAddr"`

	// ── Output ───────────────────────────────────────────────────────
	Log util.LogConfig `yaml:"log"`
}

// Endpoint locates one channel's modem socket.  Address accepts a URL
// form ("tcp://host:port", "unix:///path") or a bare host:port.
type Endpoint struct {
	Enabled     bool   `yaml:"enabled"`
	Network     string `yaml:"network"`
	Address     string `yaml:"address"`
	BootAddress string `yaml:"bootAddress"`
}

// TunnelConfig reaches the modem through an SSH gateway.
type TunnelConfig struct {
	Spec          string `yaml:"spec"` // [user@]host[:port]
	KeyPath       string `yaml:"keyPath"`
	Password      bool   `yaml:"password"` // prompt interactively
	Agent         bool   `yaml:"agent"`
	StrictHostKey bool   `yaml:"strictHostKey"`
	KnownHosts    string `yaml:"knownHosts"`

	KeepAlive time.Duration `yaml:"keepAlive"` // 0 disables

	// Filled in by Resolve from Spec.
	User string `yaml:"-"`
	Host string `yaml:"-"`
	Port int    `yaml:"-"`
}

// Enabled reports whether a tunnel was requested.
func (t TunnelConfig) Enabled() bool { return t.Spec != "" }

// RestartConfig bounds how the supervisor re-creates failed channels.
type RestartConfig struct {
	InitialDelay    time.Duration `yaml:"initialDelay"`
	MaxDelay        time.Duration `yaml:"maxDelay"`
	MaxAttempts     int           `yaml:"maxAttempts"` // 0 = unlimited
	StableAfter     time.Duration `yaml:"stableAfter"`
	BreakerFailures int           `yaml:"breakerFailures"`
	BreakerReset    time.Duration `yaml:"breakerReset"`
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		FMT:          Endpoint{Enabled: true, Address: DefaultFMTAddress},
		RFS:          Endpoint{Enabled: true, Address: DefaultRFSAddress},
		PollInterval: DefaultPollInterval,
		BootTimeout:  DefaultBootTimeout,
		FrameTimeout: DefaultFrameTimeout,
		DialTimeout:  DefaultConnTimeout,
		Tunnel:       TunnelConfig{KeepAlive: DefaultKeepAlive},
		Restart: RestartConfig{
			InitialDelay:    DefaultRestartInitialDelay,
			MaxDelay:        DefaultRestartMaxDelay,
			StableAfter:     DefaultRestartStableAfter,
			BreakerFailures: DefaultBreakerFailures,
			BreakerReset:    DefaultBreakerReset,
		},
		Log: util.LogConfig{Format: "console", Outputs: []string{"stderr"}},
	}
}

// ── Resolution ───────────────────────────────────────────────────────

// Resolve derives the fields that are computed from others: endpoint
// networks from their addresses and the tunnel user/host/port from the
// spec.  Call it after every source has been applied.
func (c *Config) Resolve() error {
	for _, ep := range []struct {
		name string
		e    *Endpoint
	}{{"fmt", &c.FMT}, {"rfs", &c.RFS}} {
		if !ep.e.Enabled || ep.e.Address == "" {
			continue
		}
		network, address, err := util.ParseEndpoint(ep.e.Address)
		if err != nil {
			return &ncerr.ConfigError{
				Field:   ep.name + ".address",
				Value:   ep.e.Address,
				Message: err.Error(),
				Hint:    "use host:port, tcp://host:port or unix:///path/to/socket",
			}
		}
		if ep.e.Network == "" {
			ep.e.Network = network
		}
		ep.e.Address = address
		if ep.e.BootAddress != "" {
			if _, boot, err := util.ParseEndpoint(ep.e.BootAddress); err == nil {
				ep.e.BootAddress = boot
			}
		}
	}

	if c.Tunnel.Enabled() {
		user, host, port, err := ParseTunnelSpec(c.Tunnel.Spec)
		if err != nil {
			return &ncerr.ConfigError{Field: "tunnel.spec", Value: c.Tunnel.Spec, Message: err.Error()}
		}
		c.Tunnel.User, c.Tunnel.Host, c.Tunnel.Port = user, host, port
	}
	return nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// It expects Resolve to have run.
func (c *Config) Validate() error {
	if !c.FMT.Enabled && !c.RFS.Enabled {
		return &ncerr.ConfigError{
			Field:   "channels",
			Message: "both channels are disabled",
			Hint:    "enable at least one of fmt.enabled / rfs.enabled",
		}
	}

	for _, ch := range []struct {
		name string
		ep   Endpoint
	}{{"fmt", c.FMT}, {"rfs", c.RFS}} {
		name, ep := ch.name, ch.ep
		if !ep.Enabled {
			continue
		}
		if ep.Address == "" {
			return &ncerr.ConfigError{
				Field:   name + ".address",
				Message: "endpoint address is required",
				Hint:    fmt.Sprintf("pass --%s host:port or set MODEMLINK_%s", name, envName(name)),
			}
		}
		switch ep.Network {
		case "tcp", "tcp4", "tcp6", "unix":
		default:
			return &ncerr.ConfigError{Field: name + ".network", Value: ep.Network, Message: "unsupported network"}
		}
	}

	if c.PollInterval < 0 {
		return &ncerr.ConfigError{Field: "pollInterval", Value: c.PollInterval, Message: "must not be negative"}
	}
	if c.BootTimeout < 0 {
		return &ncerr.ConfigError{Field: "bootTimeout", Value: c.BootTimeout, Message: "must not be negative"}
	}
	if c.FrameTimeout < 0 {
		return &ncerr.ConfigError{Field: "frameTimeout", Value: c.FrameTimeout, Message: "must not be negative"}
	}

	if c.Execute != "" && c.Command != "" {
		return &ncerr.ConfigError{Field: "exec", Message: "-e and -c are mutually exclusive"}
	}

	if c.Tunnel.KeepAlive < 0 {
		return &ncerr.ConfigError{Field: "tunnel.keepAlive", Value: c.Tunnel.KeepAlive, Message: "must not be negative"}
	}
	if c.Tunnel.Enabled() && c.Tunnel.Host == "" {
		return &ncerr.ConfigError{Field: "tunnel.spec", Value: c.Tunnel.Spec, Message: "tunnel host is required"}
	}

	if c.Restart.MaxAttempts < 0 {
		return &ncerr.ConfigError{Field: "restart.maxAttempts", Value: c.Restart.MaxAttempts, Message: "must not be negative", Hint: "0 means unlimited"}
	}
	if c.Restart.MaxDelay > 0 && c.Restart.InitialDelay > c.Restart.MaxDelay {
		return &ncerr.ConfigError{Field: "restart.initialDelay", Value: c.Restart.InitialDelay, Message: "exceeds restart.maxDelay"}
	}

	if c.MetricsAddr != "" && c.MetricsAddr == c.ControlAddr {
		return &ncerr.ConfigError{Field: "controlAddr", Value: c.ControlAddr, Message: "collides with metricsAddr"}
	}
	return nil
}

func envName(channel string) string {
	if channel == "fmt" {
		return "FMT_ADDRESS"
	}
	return "RFS_ADDRESS"
}
