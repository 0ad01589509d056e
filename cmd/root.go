// Package cmd wires up the CLI flags and hands the resulting
// configuration to the daemon core.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"modemlink/config"
	"modemlink/internal/core"
	"modemlink/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X modemlink/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives --version, --dry-run and usage output.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// options holds raw flag values.  They are applied on top of the file
// and environment only when the flag was actually given.
type options struct {
	configPath string

	fmtAddr, fmtBoot, rfsAddr string
	noFMT, noRFS              bool
	pollInterval, bootTimeout, frameTimeout time.Duration
	dialTimeout               time.Duration

	tunnel, sshKey, knownHosts        string
	sshPassword, sshAgent, strictHost bool
	sshKeepAlive                      time.Duration

	execute, command string

	maxAttempts int

	metricsAddr, controlAddr string

	verbose             int
	logFormat, logFile  string
	dryRun, showVersion bool
	showHelp            bool
}

// Execute parses args and runs the modemlink daemon.
func Execute(ctx context.Context, args []string) error {
	var o options
	fs := flag.NewFlagSet("modemlink", flag.ContinueOnError)
	fs.SetOutput(stdout)

	// ── configuration ────────────────────────────────────────────
	fs.StringVarP(&o.configPath, "config", "f", "", "YAML configuration file")

	// ── channels ─────────────────────────────────────────────────
	fs.StringVar(&o.fmtAddr, "fmt", "", "FMT endpoint (host:port, tcp://, unix://)")
	fs.StringVar(&o.fmtBoot, "fmt-boot", "", "FMT bootstrap endpoint (default: --fmt)")
	fs.StringVar(&o.rfsAddr, "rfs", "", "RFS endpoint (host:port, tcp://, unix://)")
	fs.BoolVar(&o.noFMT, "no-fmt", false, "Disable the FMT channel")
	fs.BoolVar(&o.noRFS, "no-rfs", false, "Disable the RFS channel")
	fs.DurationVar(&o.pollInterval, "poll-interval", config.DefaultPollInterval, "Readiness wait per read-loop iteration (0 = unbounded)")
	fs.DurationVar(&o.bootTimeout, "boot-timeout", config.DefaultBootTimeout, "Modem bootstrap timeout")
	fs.DurationVar(&o.frameTimeout, "frame-timeout", config.DefaultFrameTimeout, "Limit for completing a partially received frame")
	fs.DurationVarP(&o.dialTimeout, "timeout", "w", config.DefaultConnTimeout, "Connection timeout")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&o.tunnel, "tunnel", "T", "", "Reach the modem via SSH [user@]host[:port]")
	fs.StringVar(&o.sshKey, "ssh-key", "", "SSH private key file")
	fs.BoolVar(&o.sshPassword, "ssh-password", false, "Prompt for SSH password")
	fs.BoolVar(&o.sshAgent, "ssh-agent", false, "Use SSH agent")
	fs.BoolVar(&o.strictHost, "strict-hostkey", false, "Verify SSH host keys")
	fs.StringVar(&o.knownHosts, "known-hosts", "", "Custom known_hosts path")
	fs.DurationVar(&o.sshKeepAlive, "ssh-keepalive", config.DefaultKeepAlive, "SSH keepalive interval (0 = off)")

	// ── inbound handling ─────────────────────────────────────────
	fs.StringVarP(&o.execute, "exec", "e", "", "Feed inbound envelopes to a program's stdin")
	fs.StringVarP(&o.command, "command", "c", "", "Feed inbound envelopes to a shell command's stdin")

	// ── supervision & surfaces ───────────────────────────────────
	fs.IntVar(&o.maxAttempts, "max-restarts", 0, "Give up after this many failed attempts (0 = never)")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve /metrics, /stats and /healthz on this address")
	fs.StringVar(&o.controlAddr, "control-addr", "", "Serve the control line protocol on this address")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&o.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&o.logFormat, "log-format", "", "Log format: console or json")
	fs.StringVar(&o.logFile, "log-file", "", "Write logs to this file instead of stderr")

	fs.BoolVar(&o.dryRun, "dry-run", false, "Print the effective configuration and exit")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&o.showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if o.showHelp {
		printUsage(fs)
		return nil
	}
	if o.showVersion {
		fmt.Fprintf(stdout, "modemlink %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v (use --help for usage)", fs.Args())
	}

	// ── defaults → file → env → flags ────────────────────────────
	cfg := config.Default()
	if o.configPath != "" {
		if err := config.LoadFile(o.configPath, cfg); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)
	applyFlags(fs, &o, cfg)

	if err := cfg.Resolve(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if o.dryRun {
		out, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = stdout.Write(out)
		return err
	}

	// ── build & run ──────────────────────────────────────────────
	logger, err := util.SetupLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	d, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

// applyFlags copies every flag the user set onto cfg.
func applyFlags(fs *flag.FlagSet, o *options, cfg *config.Config) {
	set := fs.Changed

	if set("fmt") {
		cfg.FMT.Address = o.fmtAddr
	}
	if set("fmt-boot") {
		cfg.FMT.BootAddress = o.fmtBoot
	}
	if set("rfs") {
		cfg.RFS.Address = o.rfsAddr
	}
	if set("no-fmt") {
		cfg.FMT.Enabled = !o.noFMT
	}
	if set("no-rfs") {
		cfg.RFS.Enabled = !o.noRFS
	}
	if set("poll-interval") {
		cfg.PollInterval = o.pollInterval
	}
	if set("boot-timeout") {
		cfg.BootTimeout = o.bootTimeout
	}
	if set("frame-timeout") {
		cfg.FrameTimeout = o.frameTimeout
	}
	if set("timeout") {
		cfg.DialTimeout = o.dialTimeout
	}

	if set("tunnel") {
		cfg.Tunnel.Spec = o.tunnel
	}
	if set("ssh-key") {
		cfg.Tunnel.KeyPath = o.sshKey
	}
	if set("ssh-password") {
		cfg.Tunnel.Password = o.sshPassword
	}
	if set("ssh-agent") {
		cfg.Tunnel.Agent = o.sshAgent
	}
	if set("strict-hostkey") {
		cfg.Tunnel.StrictHostKey = o.strictHost
	}
	if set("known-hosts") {
		cfg.Tunnel.KnownHosts = o.knownHosts
	}
	if set("ssh-keepalive") {
		cfg.Tunnel.KeepAlive = o.sshKeepAlive
	}

	if set("exec") {
		cfg.Execute = o.execute
	}
	if set("command") {
		cfg.Command = o.command
	}
	if set("max-restarts") {
		cfg.Restart.MaxAttempts = o.maxAttempts
	}
	if set("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if set("control-addr") {
		cfg.ControlAddr = o.controlAddr
	}

	if set("verbose") {
		cfg.Log.Verbose = o.verbose
	}
	if set("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if set("log-file") {
		cfg.Log.Outputs = []string{o.logFile}
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stdout, `modemlink – modem IPC channel daemon v%s

Brings up the FMT and RFS modem IPC channels, relays inbound envelopes
and restarts a channel whenever its read loop fails.

Usage:
  modemlink [options]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stdout, `
Examples:
  modemlink --fmt 10.0.0.5:6000 --rfs 10.0.0.5:6001    Both channels over TCP
  modemlink --no-rfs --fmt unix:///run/modem/fmt.sock  FMT only, unix socket
  modemlink -T ops@bastion --fmt modem:6000 --no-rfs   Through an SSH gateway
  modemlink -c 'jq -R .' --control-addr 127.0.0.1:7000 Handler plus control port
  modemlink -f /etc/modemlink.yaml --dry-run           Show effective config
`)
}
