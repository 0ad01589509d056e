// Package transport provides the primitive set a channel drives to talk
// to the modem: handle creation, data setup, bootstrap, open/close,
// power control, readiness wait, receive and send.  The channel core
// only sees the [Client] interface; [Stream] is the bundled
// implementation that frames envelopes over any [Dialer] connection
// (TCP, unix socket, or an SSH-tunnelled stream).
package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Kind selects which modem channel a handle talks to.
type Kind uint8

const (
	// KindFMT is the control-plane "formatted command" channel.
	KindFMT Kind = iota + 1
	// KindRFS is the bulk-data "remote filesystem" channel.
	KindRFS
)

func (k Kind) String() string {
	switch k {
	case KindFMT:
		return "fmt"
	case KindRFS:
		return "rfs"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Envelope is one decoded inbound message.  It is produced by
// [Client.Receive] and must be handed back with [Client.FreeEnvelope]
// once dispatched; nothing may hold on to it (or to Data) afterwards.
type Envelope struct {
	Command uint16 // group<<8 | index on FMT, the command byte on RFS
	Type    uint8  // FMT only
	Seq     uint8  // request sequence (FMT mseq, RFS id)
	AckSeq  uint8  // FMT only: sequence being answered
	Data    []byte
}

// Group returns the high byte of an FMT command.
func (e *Envelope) Group() uint8 { return uint8(e.Command >> 8) }

// Index returns the low byte of an FMT command.
func (e *Envelope) Index() uint8 { return uint8(e.Command) }

// LogSink receives diagnostic text from a transport handle.
type LogSink func(message string)

// Client is the transport primitive set for one channel handle.
// Implementations need not be safe for concurrent use: the channel
// serializes Receive and Send, and every lifecycle call happens from
// the goroutine that owns the handle.  WaitReady and FreeEnvelope are
// the calls that may run concurrently with Send.
type Client interface {
	// SetLogSink registers where the handle reports diagnostics.
	SetLogSink(sink LogSink) error
	// CreateData allocates the buffers used for framing.
	CreateData() error
	// DestroyData releases what CreateData allocated.
	DestroyData() error
	// Bootstrap brings the modem up.  FMT only.
	Bootstrap(ctx context.Context) error
	// Open connects the data path.
	Open(ctx context.Context) error
	// Close disconnects the data path.
	Close() error
	// PowerOn powers the modem radio on.  FMT only.
	PowerOn(ctx context.Context) error
	// PowerOff powers the modem radio off.  FMT only.
	PowerOff() error
	// WaitReady blocks until inbound data is available, the timeout
	// expires (ErrReadyTimeout) or the connection fails.  A zero
	// timeout waits indefinitely.
	WaitReady(timeout time.Duration) error
	// Receive decodes one full envelope.
	Receive() (*Envelope, error)
	// FreeEnvelope returns the envelope's resources.
	FreeEnvelope(env *Envelope)
	// Send frames and writes one outbound message.
	Send(command uint16, typ uint8, data []byte, seq uint8) error
	// Destroy releases the handle itself.
	Destroy() error
}

// Factory instantiates a new, unconfigured handle for kind.
type Factory func(kind Kind) (Client, error)

// Dialer opens outbound connections to the modem endpoint.
// Implementations include plain TCP/unix dialers and an SSH-tunnelled
// dialer that reaches a modem behind a bastion host.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
