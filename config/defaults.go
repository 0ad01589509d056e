package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultFMTAddress is where the FMT channel listens on a modem
	// bridge running on the same host.
	DefaultFMTAddress = "127.0.0.1:6000"

	// DefaultRFSAddress is the RFS counterpart of DefaultFMTAddress.
	DefaultRFSAddress = "127.0.0.1:6001"

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultPollInterval bounds each readiness wait of a read loop.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultBootTimeout bounds the modem boot request/ack exchange.
	DefaultBootTimeout = 10 * time.Second

	// DefaultFrameTimeout bounds how long a frame that has started to
	// arrive may take to complete.
	DefaultFrameTimeout = 5 * time.Second

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultKeepAlive is the SSH keepalive probe interval.
	DefaultKeepAlive = 30 * time.Second

	// DefaultRestartInitialDelay is the first supervisor back-off.
	DefaultRestartInitialDelay = 1 * time.Second

	// DefaultRestartMaxDelay caps the exponential back-off between
	// channel re-creations.
	DefaultRestartMaxDelay = 60 * time.Second

	// DefaultRestartStableAfter is how long a channel must stay up for
	// the back-off to start over.
	DefaultRestartStableAfter = 30 * time.Second

	// DefaultBreakerFailures opens the circuit breaker after this many
	// consecutive failed runs.
	DefaultBreakerFailures = 5

	// DefaultBreakerReset is how long an open breaker waits before a
	// probe.
	DefaultBreakerReset = 30 * time.Second

	// DefaultGracePeriod is how long shutdown waits for servers.
	DefaultGracePeriod = 5 * time.Second
)
