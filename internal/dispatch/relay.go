package dispatch

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"sync"

	"modemlink/internal/transport"
	"modemlink/util"
)

// Relay writes one text line per envelope to W:
//
//	fmt cmd=0x0101 type=0x03 seq=7 len=4 data=deadbeef
//	rfs cmd=0x0011 seq=2 len=0 data=
//
// Write errors are logged once and further envelopes are discarded
// until [Relay.Reset].
type Relay struct {
	Kind   transport.Kind
	W      io.Writer
	Logger *util.Logger

	mu     sync.Mutex
	buf    []byte
	failed bool
}

// NewRelay returns a relay for kind writing to w.
func NewRelay(kind transport.Kind, w io.Writer, logger *util.Logger) *Relay {
	if logger == nil {
		logger = util.NopLogger()
	}
	return &Relay{Kind: kind, W: w, Logger: logger}
}

// Dispatch implements Dispatcher.
func (r *Relay) Dispatch(env *transport.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed {
		return
	}
	r.buf = AppendLine(r.buf[:0], r.Kind, env)
	if _, err := r.W.Write(r.buf); err != nil {
		r.failed = true
		r.Logger.Warn("%s relay: %v; discarding further envelopes", r.Kind, err)
	}
}

// Reset clears a previous write failure.
func (r *Relay) Reset() {
	r.mu.Lock()
	r.failed = false
	r.mu.Unlock()
}

// AppendLine renders env as a relay line, newline included.
func AppendLine(dst []byte, kind transport.Kind, env *transport.Envelope) []byte {
	dst = append(dst, kind.String()...)
	dst = append(dst, " cmd=0x"...)
	dst = appendHex16(dst, env.Command)
	if kind == transport.KindFMT {
		dst = append(dst, " type=0x"...)
		dst = appendHex8(dst, env.Type)
	}
	dst = append(dst, " seq="...)
	dst = strconv.AppendUint(dst, uint64(env.Seq), 10)
	dst = append(dst, " len="...)
	dst = strconv.AppendInt(dst, int64(len(env.Data)), 10)
	dst = append(dst, " data="...)
	dst = append(dst, hex.EncodeToString(env.Data)...)
	return append(dst, '\n')
}

// FormatLine is AppendLine into a fresh string without the newline.
func FormatLine(kind transport.Kind, env *transport.Envelope) string {
	b := AppendLine(nil, kind, env)
	return string(b[:len(b)-1])
}

func appendHex16(dst []byte, v uint16) []byte {
	return append(dst, fmt.Sprintf("%04x", v)...)
}

func appendHex8(dst []byte, v uint8) []byte {
	return append(dst, fmt.Sprintf("%02x", v)...)
}
