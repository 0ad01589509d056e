package util

import "sync"

// DefaultBufSize is the largest payload served from the pool (32 KiB).
// Larger requests fall back to a plain allocation.
const DefaultBufSize = 32 * 1024

// BufPool provides reusable payload buffers for inbound frames, so the
// read loop does not allocate once per envelope.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// GetBuf returns a buffer of length n.  Callers must hand it back with
// [PutBuf] when finished.
func GetBuf(n int) []byte {
	if n > DefaultBufSize {
		return make([]byte, n)
	}
	bp := BufPool.Get().(*[]byte)
	return (*bp)[:n]
}

// PutBuf returns a buffer obtained from [GetBuf] to the pool.  Buffers
// that did not come from the pool are dropped.
func PutBuf(buf []byte) {
	if cap(buf) != DefaultBufSize {
		return
	}
	buf = buf[:DefaultBufSize]
	BufPool.Put(&buf)
}
