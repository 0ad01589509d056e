// Package errors provides domain-specific error types for modemlink.
//
// Channel callers only ever need the sentinels (errors.Is).  The
// structured types carry the step, operation or address for logs and
// for callers that want more than "create failed".
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrCreateFailed    = errors.New("channel creation failed")
	ErrAlreadyCreated  = errors.New("channel already created")
	ErrLoopAborted     = errors.New("read loop aborted")
	ErrNotConnected    = errors.New("not connected")
	ErrReadyTimeout    = errors.New("no data ready before timeout")
	ErrTimeout         = errors.New("operation timed out")
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTunnelClosed    = errors.New("tunnel is closed")
	ErrAuthFailed      = errors.New("authentication failed")
)

// ── Structured error types ───────────────────────────────────────────

// StepError records which bootstrap step of a channel failed.  It
// matches ErrCreateFailed with errors.Is, so callers that only care
// about the generic outcome never need to know about it.
type StepError struct {
	Channel string // "fmt", "rfs"
	Step    string // "handle", "log-sink", "data", "bootstrap", "open", "power-on"
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v: step %s: %v", e.Channel, ErrCreateFailed, e.Step, e.Err)
}

func (e *StepError) Unwrap() []error { return []error{ErrCreateFailed, e.Err} }

// LoopError records a fatal read-loop failure.
type LoopError struct {
	Channel string
	Op      string // "wait", "receive"
	Err     error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("%s: %v: %s: %v", e.Channel, ErrLoopAborted, e.Op, e.Err)
}

func (e *LoopError) Unwrap() []error { return []error{ErrLoopAborted, e.Err} }

// ProtocolError reports a framing violation on the wire.
type ProtocolError struct {
	Op  string // "decode", "encode", "boot"
	Msg string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol %s: %s", e.Op, e.Msg)
}

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "dial", "listen", "accept", "write", "read"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "dial"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: %s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// Step creates a StepError for channel ch.
func Step(ch, step string, err error) *StepError {
	return &StepError{Channel: ch, Step: step, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// FailedStep returns the bootstrap step recorded in err, or "".
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
