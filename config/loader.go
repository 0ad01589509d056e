package config

// loader.go - configuration loading from a YAML file and environment
// variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. YAML file  (LoadFile)
//   4. Defaults   (defaults.go)

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// LoadFile overlays the YAML document at path onto cfg.  Unknown keys
// are rejected so typos do not silently fall back to defaults.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

// Marshal renders cfg as YAML, as used by --dry-run.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the MODEMLINK_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive); durations use Go
// syntax ("500ms", "10s") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	// Channels
	if v := os.Getenv("MODEMLINK_FMT_ADDRESS"); v != "" {
		cfg.FMT.Address = v
	}
	if v := os.Getenv("MODEMLINK_FMT_BOOT_ADDRESS"); v != "" {
		cfg.FMT.BootAddress = v
	}
	if v := os.Getenv("MODEMLINK_RFS_ADDRESS"); v != "" {
		cfg.RFS.Address = v
	}
	if envBool("MODEMLINK_NO_FMT") {
		cfg.FMT.Enabled = false
	}
	if envBool("MODEMLINK_NO_RFS") {
		cfg.RFS.Enabled = false
	}
	if v, ok := envDuration("MODEMLINK_POLL_INTERVAL"); ok {
		cfg.PollInterval = v
	}
	if v, ok := envDuration("MODEMLINK_BOOT_TIMEOUT"); ok {
		cfg.BootTimeout = v
	}
	if v, ok := envDuration("MODEMLINK_FRAME_TIMEOUT"); ok {
		cfg.FrameTimeout = v
	}
	if v, ok := envDuration("MODEMLINK_DIAL_TIMEOUT"); ok {
		cfg.DialTimeout = v
	}

	// SSH tunnel
	if v := os.Getenv("MODEMLINK_TUNNEL"); v != "" {
		cfg.Tunnel.Spec = v
	}
	if v := os.Getenv("MODEMLINK_SSH_KEY"); v != "" {
		cfg.Tunnel.KeyPath = v
	}
	if envBool("MODEMLINK_SSH_PASSWORD") {
		cfg.Tunnel.Password = true
	}
	if envBool("MODEMLINK_SSH_AGENT") {
		cfg.Tunnel.Agent = true
	}
	if envBool("MODEMLINK_STRICT_HOSTKEY") {
		cfg.Tunnel.StrictHostKey = true
	}
	if v := os.Getenv("MODEMLINK_KNOWN_HOSTS"); v != "" {
		cfg.Tunnel.KnownHosts = v
	}
	if v, ok := envDuration("MODEMLINK_SSH_KEEPALIVE"); ok {
		cfg.Tunnel.KeepAlive = v
	}

	// Handler
	if v := os.Getenv("MODEMLINK_EXEC"); v != "" {
		cfg.Execute = v
	}
	if v := os.Getenv("MODEMLINK_COMMAND"); v != "" {
		cfg.Command = v
	}

	// Supervision
	if v, ok := envDuration("MODEMLINK_RESTART_INITIAL_DELAY"); ok {
		cfg.Restart.InitialDelay = v
	}
	if v, ok := envDuration("MODEMLINK_RESTART_MAX_DELAY"); ok {
		cfg.Restart.MaxDelay = v
	}
	if v := envInt("MODEMLINK_RESTART_MAX_ATTEMPTS"); v > 0 {
		cfg.Restart.MaxAttempts = v
	}

	// Surfaces
	if v := os.Getenv("MODEMLINK_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("MODEMLINK_CONTROL_ADDR"); v != "" {
		cfg.ControlAddr = v
	}

	// Output
	if v := envInt("MODEMLINK_VERBOSE"); v > 0 {
		cfg.Log.Verbose = v
	}
	if v := os.Getenv("MODEMLINK_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("MODEMLINK_LOG_FILE"); v != "" {
		cfg.Log.Outputs = []string{v}
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil {
		return secondsDuration(n), true
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
