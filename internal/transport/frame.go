package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	ncerr "modemlink/internal/errors"
	"modemlink/util"
)

// ── Wire layout ──────────────────────────────────────────────────────
//
// FMT:  len u16le | mseq u8 | aseq u8 | group u8 | index u8 | type u8 | data
// RFS:  len u32le | cmd u8  | id u8   | data
//
// len counts the header as well as the payload.

const (
	FMTHeaderSize = 7
	RFSHeaderSize = 6

	// MaxFMTFrame is bounded by the 16-bit length field.
	MaxFMTFrame = 0xFFFF
	// MaxRFSFrame caps RFS transfers; the field allows more but no
	// filesystem request the modem issues comes close.
	MaxRFSFrame = 1 << 20
)

// Commands reserved by the stream transport for bring-up and power
// control.  They travel on the FMT framing and never reach a dispatcher.
const (
	CmdBootRequest uint16 = 0xFF01
	CmdBootAck     uint16 = 0xFF02
	CmdPowerOn     uint16 = 0xFF03
	CmdPowerOff    uint16 = 0xFF04
)

// HeaderSize returns the frame header length for kind.
func HeaderSize(kind Kind) int {
	if kind == KindRFS {
		return RFSHeaderSize
	}
	return FMTHeaderSize
}

// AppendFrame encodes env for kind onto dst and returns the extended
// slice.
func AppendFrame(dst []byte, kind Kind, env *Envelope) ([]byte, error) {
	switch kind {
	case KindFMT:
		total := FMTHeaderSize + len(env.Data)
		if total > MaxFMTFrame {
			return dst, &ncerr.ProtocolError{Op: "encode", Msg: fmt.Sprintf("fmt frame of %d bytes exceeds %d", total, MaxFMTFrame)}
		}
		dst = binary.LittleEndian.AppendUint16(dst, uint16(total))
		dst = append(dst, env.Seq, env.AckSeq, env.Group(), env.Index(), env.Type)
	case KindRFS:
		total := RFSHeaderSize + len(env.Data)
		if total > MaxRFSFrame {
			return dst, &ncerr.ProtocolError{Op: "encode", Msg: fmt.Sprintf("rfs frame of %d bytes exceeds %d", total, MaxRFSFrame)}
		}
		if env.Command > 0xFF {
			return dst, &ncerr.ProtocolError{Op: "encode", Msg: fmt.Sprintf("rfs command 0x%04x does not fit in a byte", env.Command)}
		}
		dst = binary.LittleEndian.AppendUint32(dst, uint32(total))
		dst = append(dst, uint8(env.Command), env.Seq)
	default:
		return dst, fmt.Errorf("encode: %w: %s", ncerr.ErrInvalidArgument, kind)
	}
	return append(dst, env.Data...), nil
}

// ReadFrame reads one full frame of kind from r.  The payload is taken
// from the util buffer pool; release it with [FreeFrame].
func ReadFrame(r io.Reader, kind Kind) (*Envelope, error) {
	var hdr [FMTHeaderSize]byte
	size := HeaderSize(kind)
	if _, err := io.ReadFull(r, hdr[:size]); err != nil {
		return nil, err
	}

	env := &Envelope{}
	var total int
	switch kind {
	case KindFMT:
		total = int(binary.LittleEndian.Uint16(hdr[0:2]))
		env.Seq = hdr[2]
		env.AckSeq = hdr[3]
		env.Command = uint16(hdr[4])<<8 | uint16(hdr[5])
		env.Type = hdr[6]
	case KindRFS:
		n := binary.LittleEndian.Uint32(hdr[0:4])
		if n > MaxRFSFrame {
			return nil, &ncerr.ProtocolError{Op: "decode", Msg: fmt.Sprintf("rfs frame of %d bytes exceeds %d", n, MaxRFSFrame)}
		}
		total = int(n)
		env.Command = uint16(hdr[4])
		env.Seq = hdr[5]
	default:
		return nil, fmt.Errorf("decode: %w: %s", ncerr.ErrInvalidArgument, kind)
	}

	if total < size {
		return nil, &ncerr.ProtocolError{Op: "decode", Msg: fmt.Sprintf("length %d shorter than %d-byte header", total, size)}
	}

	if n := total - size; n > 0 {
		env.Data = util.GetBuf(n)
		if _, err := io.ReadFull(r, env.Data); err != nil {
			util.PutBuf(env.Data)
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return env, nil
}

// FreeFrame hands the payload of an envelope from [ReadFrame] back to
// the pool.
func FreeFrame(env *Envelope) {
	if env == nil {
		return
	}
	if env.Data != nil {
		util.PutBuf(env.Data)
		env.Data = nil
	}
}
