// Package core is the orchestration layer.  It turns a Config into a
// running daemon: one supervisor per enabled channel plus the optional
// control and metrics listeners.
//
// Architecture layers (bottom → top):
//
//	transport  →  channel  →  dispatch / control  →  core  →  cmd (CLI)
//
// Build is the single place where configuration is mapped onto
// concrete dialers, transport factories and dispatchers.
package core

import "context"

// Runner is anything the daemon runs until its context is cancelled.
// Supervisors, the control server and the metrics server all satisfy
// it.
type Runner interface {
	Run(ctx context.Context) error
}
