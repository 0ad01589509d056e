package errors

import (
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
)

func TestStepError_MatchesCreateFailed(t *testing.T) {
	cause := fmt.Errorf("power rail down")
	err := fmt.Errorf("create: %w", Step("fmt", "power-on", cause))

	if !Is(err, ErrCreateFailed) {
		t.Error("StepError should match ErrCreateFailed")
	}
	if !Is(err, cause) {
		t.Error("StepError should unwrap to its cause")
	}
	if got := FailedStep(err); got != "power-on" {
		t.Errorf("FailedStep = %q, want power-on", got)
	}
	want := "fmt: channel creation failed: step power-on: power rail down"
	if got := Step("fmt", "power-on", cause).Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFailedStep_Other(t *testing.T) {
	if got := FailedStep(io.EOF); got != "" {
		t.Errorf("FailedStep(io.EOF) = %q, want empty", got)
	}
}

func TestLoopError(t *testing.T) {
	err := &LoopError{Channel: "rfs", Op: "receive", Err: io.ErrUnexpectedEOF}
	if !Is(err, ErrLoopAborted) {
		t.Error("LoopError should match ErrLoopAborted")
	}
	if !Is(err, io.ErrUnexpectedEOF) {
		t.Error("LoopError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "rfs") || !strings.Contains(err.Error(), "receive") {
		t.Errorf("message missing context: %q", err.Error())
	}
}

func TestNetworkError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  NetworkError
		want string
	}{
		{
			name: "retryable",
			err:  NetworkError{Op: "dial", Addr: "modem.local:6000", Err: io.EOF, Retryable: true},
			want: "dial modem.local:6000: EOF (retryable)",
		},
		{
			name: "non-retryable",
			err:  NetworkError{Op: "dial", Addr: "/dev/socket/fmt", Err: fmt.Errorf("no such file")},
			want: "dial /dev/socket/fmt: no such file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	err := &NetworkError{Op: "dial", Addr: "x", Err: io.EOF}
	if !Is(err, io.EOF) {
		t.Error("should unwrap to io.EOF")
	}
}

func TestSSHError_Format(t *testing.T) {
	err := WrapSSH("handshake", "bastion.example.com", 22, fmt.Errorf("connection refused"))
	want := "ssh handshake bastion.example.com:22: connection refused"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !Is(err, err.Err) {
		t.Error("should unwrap to inner error")
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "fmt.address",
				Value:   "modem",
				Message: "missing port",
				Hint:    "use host:port or unix:///path",
			},
			want: "config: fmt.address=modem: missing port\n  hint: use host:port or unix:///path",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "channels",
				Message: "at least one channel must be enabled",
			},
			want: "config: channels: at least one channel must be enabled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestProtocolError_Format(t *testing.T) {
	err := &ProtocolError{Op: "decode", Msg: "length 3 shorter than header"}
	if got := err.Error(); got != "protocol decode: length 3 shorter than header" {
		t.Errorf("got %q", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable network", &NetworkError{Op: "dial", Addr: "x", Err: io.EOF, Retryable: true}, true},
		{"non-retryable network", &NetworkError{Op: "dial", Addr: "x", Err: io.EOF, Retryable: false}, false},
		{"plain error", fmt.Errorf("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyRetryable_NetOpError(t *testing.T) {
	opErr := &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: &net.DNSError{IsTemporary: true},
	}
	if !classifyRetryable(opErr) {
		t.Error("temporary OpError should be retryable")
	}
}

func TestSentinels(t *testing.T) {
	sentinels := []error{
		ErrInvalidArgument, ErrCreateFailed, ErrAlreadyCreated, ErrLoopAborted,
		ErrNotConnected, ErrReadyTimeout, ErrTimeout, ErrCircuitOpen,
		ErrTunnelClosed, ErrAuthFailed,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}
