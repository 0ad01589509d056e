package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	ncerr "modemlink/internal/errors"
	"modemlink/util"
)

const (
	// DefaultBootTimeout bounds the boot request/ack exchange.
	DefaultBootTimeout = 10 * time.Second

	// DefaultFrameTimeout bounds Receive once a frame has started to
	// arrive.
	DefaultFrameTimeout = 5 * time.Second
)

// StreamConfig describes how a [Stream] reaches its modem endpoint.
type StreamConfig struct {
	Kind    Kind
	Dialer  Dialer
	Network string // "tcp", "unix", ...
	Address string

	// BootAddress is dialled for the bootstrap exchange.  Empty means
	// Address.
	BootAddress string
	BootTimeout time.Duration

	// FrameTimeout is how long Receive waits for the rest of a frame.
	// Receive runs under the channel's handle lock, so a peer that
	// stalls mid-frame must not hold it for longer than this.
	FrameTimeout time.Duration
}

// Factory returns a [Factory] that builds Streams from c for whichever
// kind the channel asks for.
func (c StreamConfig) Factory() Factory {
	return func(kind Kind) (Client, error) {
		cfg := c
		cfg.Kind = kind
		return NewStream(cfg)
	}
}

// Stream implements [Client] over a byte-stream connection using the
// framing in frame.go.
type Stream struct {
	cfg  StreamConfig
	sink LogSink

	conn net.Conn
	r    *bufio.Reader
	rbuf []byte // backing store for r, owned by CreateData/DestroyData
	wbuf []byte // scratch for outbound frames; Send is serialized by the caller

	destroyed bool
}

// NewStream validates cfg and returns an unopened handle.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if cfg.Dialer == nil {
		return nil, fmt.Errorf("stream: %w: nil dialer", ncerr.ErrInvalidArgument)
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("stream: %w: empty address", ncerr.ErrInvalidArgument)
	}
	if cfg.Kind != KindFMT && cfg.Kind != KindRFS {
		return nil, fmt.Errorf("stream: %w: %s", ncerr.ErrInvalidArgument, cfg.Kind)
	}
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if cfg.BootTimeout <= 0 {
		cfg.BootTimeout = DefaultBootTimeout
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = DefaultFrameTimeout
	}
	return &Stream{cfg: cfg}, nil
}

func (s *Stream) logf(format string, args ...interface{}) {
	if s.sink != nil {
		s.sink(fmt.Sprintf(format, args...))
	}
}

// SetLogSink registers sink for diagnostics.
func (s *Stream) SetLogSink(sink LogSink) error {
	if sink == nil {
		return fmt.Errorf("log sink: %w", ncerr.ErrInvalidArgument)
	}
	s.sink = sink
	return nil
}

// CreateData allocates the read and write buffers.
func (s *Stream) CreateData() error {
	if s.rbuf != nil {
		return errors.New("data already created")
	}
	s.rbuf = make([]byte, util.DefaultBufSize)
	s.wbuf = make([]byte, 0, util.DefaultBufSize)
	return nil
}

// DestroyData releases the buffers.
func (s *Stream) DestroyData() error {
	if s.conn != nil {
		return errors.New("data still in use by an open connection")
	}
	s.rbuf, s.wbuf, s.r = nil, nil, nil
	return nil
}

// Bootstrap dials the boot endpoint, sends a boot request and waits
// for the matching acknowledgement.  The boot connection is closed
// before returning either way.
func (s *Stream) Bootstrap(ctx context.Context) error {
	if s.rbuf == nil {
		return errors.New("bootstrap before data was created")
	}
	addr := s.cfg.BootAddress
	if addr == "" {
		addr = s.cfg.Address
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.BootTimeout)
	defer cancel()

	conn, err := s.cfg.Dialer.Dial(ctx, s.cfg.Network, addr)
	if err != nil {
		return ncerr.Wrap("dial", addr, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl) //nolint:errcheck
	}

	s.logf("boot: request to %s", addr)
	req, err := AppendFrame(nil, KindFMT, &Envelope{Command: CmdBootRequest})
	if err != nil {
		return err
	}
	if _, err := conn.Write(req); err != nil {
		return ncerr.Wrap("write", addr, err)
	}

	ack, err := ReadFrame(bufio.NewReader(conn), KindFMT)
	if err != nil {
		if util.IsTimeout(err) {
			return fmt.Errorf("boot ack: %w", ncerr.ErrTimeout)
		}
		return ncerr.Wrap("read", addr, err)
	}
	defer FreeFrame(ack)

	if ack.Command != CmdBootAck {
		return &ncerr.ProtocolError{Op: "boot", Msg: fmt.Sprintf("expected boot ack, got command 0x%04x", ack.Command)}
	}
	s.logf("boot: acknowledged")
	return nil
}

// Open dials the data connection.
func (s *Stream) Open(ctx context.Context) error {
	if s.rbuf == nil {
		return errors.New("open before data was created")
	}
	if s.conn != nil {
		return errors.New("already open")
	}

	conn, err := s.cfg.Dialer.Dial(ctx, s.cfg.Network, s.cfg.Address)
	if err != nil {
		return ncerr.Wrap("dial", s.cfg.Address, err)
	}
	s.conn = conn
	s.r = bufio.NewReaderSize(conn, len(s.rbuf))
	s.logf("open: connected to %s (%s)", s.cfg.Address, s.cfg.Kind)
	return nil
}

// Close disconnects the data connection.
func (s *Stream) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.r = nil
	s.logf("close: disconnected")
	return err
}

// PowerOn sends the power-on control frame.
func (s *Stream) PowerOn(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.control(CmdPowerOn)
}

// PowerOff sends the power-off control frame.
func (s *Stream) PowerOff() error {
	return s.control(CmdPowerOff)
}

func (s *Stream) control(cmd uint16) error {
	if s.conn == nil {
		return ncerr.ErrNotConnected
	}
	frame, err := AppendFrame(s.wbuf[:0], KindFMT, &Envelope{Command: cmd})
	if err != nil {
		return err
	}
	if _, err := s.conn.Write(frame); err != nil {
		return ncerr.Wrap("write", s.cfg.Address, err)
	}
	return nil
}

// WaitReady peeks one byte without consuming it.
func (s *Stream) WaitReady(timeout time.Duration) error {
	conn, r := s.conn, s.r
	if conn == nil || r == nil {
		return ncerr.ErrNotConnected
	}
	if r.Buffered() > 0 {
		return nil
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return s.readErr(err)
	}

	if _, err := r.Peek(1); err != nil {
		if util.IsTimeout(err) {
			return ncerr.ErrReadyTimeout
		}
		return s.readErr(err)
	}
	return nil
}

// Receive decodes one frame.  The whole frame must arrive within
// FrameTimeout; a peer that stalls mid-frame yields an error matching
// [ncerr.ErrTimeout] and the stream should not be read again.
func (s *Stream) Receive() (*Envelope, error) {
	if s.conn == nil || s.r == nil {
		return nil, ncerr.ErrNotConnected
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.FrameTimeout)); err != nil {
		return nil, s.readErr(err)
	}
	env, err := ReadFrame(s.r, s.cfg.Kind)
	if err != nil {
		var pe *ncerr.ProtocolError
		if errors.As(err, &pe) {
			return nil, err
		}
		if util.IsTimeout(err) {
			return nil, fmt.Errorf("partial frame from %s after %v: %w", s.cfg.Address, s.cfg.FrameTimeout, ncerr.ErrTimeout)
		}
		return nil, s.readErr(err)
	}
	return env, nil
}

// readErr classifies a read-side failure: a closed connection maps to
// ErrNotConnected, anything else is a network error.
func (s *Stream) readErr(err error) error {
	if util.IsClosed(err) {
		return fmt.Errorf("%w: %v", ncerr.ErrNotConnected, err)
	}
	return ncerr.Wrap("read", s.cfg.Address, err)
}

// FreeEnvelope returns the payload buffer to the pool.
func (s *Stream) FreeEnvelope(env *Envelope) { FreeFrame(env) }

// Send frames and writes one message.
func (s *Stream) Send(command uint16, typ uint8, data []byte, seq uint8) error {
	if s.conn == nil {
		return ncerr.ErrNotConnected
	}
	env := Envelope{Command: command, Type: typ, Seq: seq, Data: data}
	frame, err := AppendFrame(s.wbuf[:0], s.cfg.Kind, &env)
	if err != nil {
		return err
	}
	s.wbuf = frame[:0]
	if _, err := s.conn.Write(frame); err != nil {
		return ncerr.Wrap("write", s.cfg.Address, err)
	}
	return nil
}

// Destroy drops the handle.  It closes a connection left open by a
// caller that skipped Close.
func (s *Stream) Destroy() error {
	if s.destroyed {
		return errors.New("already destroyed")
	}
	s.destroyed = true
	var err error
	if s.conn != nil {
		err = s.Close()
	}
	s.sink = nil
	return err
}
