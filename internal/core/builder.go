package core

import (
	"fmt"
	"io"
	"os"

	"modemlink/config"
	"modemlink/internal/channel"
	"modemlink/internal/control"
	"modemlink/internal/dispatch"
	"modemlink/internal/metrics"
	"modemlink/internal/retry"
	"modemlink/internal/transport"
	"modemlink/tunnel"
	"modemlink/util"
)

// Overrides replaces parts Build would otherwise derive from the
// configuration.  Zero fields keep the defaults.
type Overrides struct {
	// Factory builds transport handles instead of the stream transport.
	Factory transport.Factory
	// Output receives relay lines instead of os.Stdout.
	Output io.Writer
}

// Build constructs the daemon described by cfg.  cfg must already be
// resolved and validated.
func Build(cfg *config.Config, logger *util.Logger) (*Daemon, error) {
	return BuildWith(cfg, logger, Overrides{})
}

// BuildWith is Build with parts swapped out, mainly for tests.
func BuildWith(cfg *config.Config, logger *util.Logger, o Overrides) (*Daemon, error) {
	if logger == nil {
		logger = util.NopLogger()
	}
	out := o.Output
	if out == nil {
		out = os.Stdout
	}

	m := metrics.New()
	d := &Daemon{
		MetricsAddr: cfg.MetricsAddr,
		Metrics:     m,
		Exec:        dispatch.Exec{Program: cfg.Execute, Command: cfg.Command},
		GracePeriod: config.DefaultGracePeriod,
		Logger:      logger,
		routers:     make(map[string]*dispatch.Router),
	}
	if o.Factory == nil {
		d.Dialer = buildDialer(cfg, m, logger)
	}

	channels := make(map[string]control.Channel)
	for _, ch := range []struct {
		profile channel.Profile
		ep      config.Endpoint
	}{{channel.FMT, cfg.FMT}, {channel.RFS, cfg.RFS}} {
		if !ch.ep.Enabled {
			continue
		}
		factory := o.Factory
		if factory == nil {
			if ch.ep.Address == "" {
				return nil, fmt.Errorf("%s: no address configured", ch.profile.Name)
			}
			factory = transport.StreamConfig{
				Dialer:       d.Dialer,
				Network:      ch.ep.Network,
				Address:      ch.ep.Address,
				BootAddress:  ch.ep.BootAddress,
				BootTimeout:  cfg.BootTimeout,
				FrameTimeout: cfg.FrameTimeout,
			}.Factory()
		}

		chLogger := logger.Named(ch.profile.Name)
		client := channel.New(ch.profile, factory,
			channel.WithLogger(chLogger),
			channel.WithMetrics(m),
			channel.WithPollInterval(cfg.PollInterval),
		)

		relay := dispatch.NewRelay(ch.profile.Kind, out, chLogger)
		router := dispatch.NewRouter(relay.Dispatch)
		d.routers[ch.profile.Name] = router
		channels[ch.profile.Name] = client

		d.Supervisors = append(d.Supervisors, &Supervisor{
			Client:      client,
			Dispatcher:  router,
			Backoff:     buildBackoff(cfg.Restart),
			Breaker:     buildBreaker(cfg.Restart, chLogger),
			StableAfter: cfg.Restart.StableAfter,
			Metrics:     m.Channel(ch.profile.Name),
			Logger:      chLogger,
		})
	}
	if len(d.Supervisors) == 0 {
		return nil, fmt.Errorf("no channel enabled")
	}

	if cfg.ControlAddr != "" {
		d.Control = &control.Server{
			Address:  cfg.ControlAddr,
			Channels: channels,
			Metrics:  m,
			Logger:   logger.Named("control"),
		}
	}
	return d, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the transport.Dialer both channels share.
func buildDialer(cfg *config.Config, m *metrics.Collector, logger *util.Logger) transport.Dialer {
	if cfg.Tunnel.Enabled() {
		sd := transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.Tunnel.User,
			Host:          cfg.Tunnel.Host,
			Port:          cfg.Tunnel.Port,
			KeyPath:       cfg.Tunnel.KeyPath,
			PromptPass:    cfg.Tunnel.Password,
			UseAgent:      cfg.Tunnel.Agent,
			StrictHostKey: cfg.Tunnel.StrictHostKey,
			KnownHosts:    cfg.Tunnel.KnownHosts,
			ConnTimeout:   cfg.DialTimeout,
			KeepAlive:     cfg.Tunnel.KeepAlive,
		}, logger.Named("tunnel"))
		sd.OnReconnect = m.TunnelReconnect
		return sd
	}
	return &transport.NetDialer{Timeout: cfg.DialTimeout}
}

func buildBackoff(rc config.RestartConfig) *retry.Backoff {
	return &retry.Backoff{
		InitialDelay: rc.InitialDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   2.0,
		MaxAttempts:  rc.MaxAttempts,
		Jitter:       true,
	}
}

func buildBreaker(rc config.RestartConfig, logger *util.Logger) *retry.CircuitBreaker {
	if rc.BreakerFailures <= 0 {
		return nil
	}
	return retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{
		MaxFailures:  rc.BreakerFailures,
		ResetTimeout: rc.BreakerReset,
		HalfOpenMax:  1,
		OnStateChange: func(from, to retry.State) {
			logger.Verbose("restart breaker %s → %s", from, to)
		},
	})
}
