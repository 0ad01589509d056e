package core

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	ncerr "modemlink/internal/errors"
	"modemlink/internal/transport"
)

// stubHandle is a transport.Client driven by a small script: an
// optional open failure, an optional wait failure, and a queue of
// envelopes to deliver.
type stubHandle struct {
	openErr error
	waitErr error

	mu        sync.Mutex
	queue     []*transport.Envelope
	sent      int
	destroyed atomic.Bool
	done      chan struct{}
}

func newStubHandle() *stubHandle { return &stubHandle{done: make(chan struct{})} }

func (h *stubHandle) SetLogSink(transport.LogSink) error { return nil }
func (h *stubHandle) CreateData() error { return nil }
func (h *stubHandle) DestroyData() error { return nil }
func (h *stubHandle) Bootstrap(context.Context) error { return nil }
func (h *stubHandle) Open(context.Context) error { return h.openErr }
func (h *stubHandle) Close() error { return nil }
func (h *stubHandle) PowerOn(context.Context) error { return nil }
func (h *stubHandle) PowerOff() error { return nil }
func (h *stubHandle) FreeEnvelope(*transport.Envelope) {}

func (h *stubHandle) Destroy() error {
	if h.destroyed.CompareAndSwap(false, true) {
		close(h.done)
	}
	return nil
}

func (h *stubHandle) WaitReady(timeout time.Duration) error {
	if h.waitErr != nil {
		return h.waitErr
	}
	h.mu.Lock()
	n := len(h.queue)
	h.mu.Unlock()
	if n > 0 {
		return nil
	}
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-expired:
		return ncerr.ErrReadyTimeout
	case <-h.done:
		return ncerr.ErrNotConnected
	}
}

func (h *stubHandle) Receive() (*transport.Envelope, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	env := h.queue[0]
	h.queue = h.queue[1:]
	return env, nil
}

func (h *stubHandle) Send(uint16, uint8, []byte, uint8) error {
	h.mu.Lock()
	h.sent++
	h.mu.Unlock()
	return nil
}

// stubFactory hands out handles built by script, numbered from 1.
type stubFactory struct {
	script func(n int) *stubHandle

	mu      sync.Mutex
	handles []*stubHandle
}

func (f *stubFactory) New(transport.Kind) (transport.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.script(len(f.handles) + 1)
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *stubFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

func (f *stubFactory) all() []*stubHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*stubHandle(nil), f.handles...)
}

// syncBuffer is a bytes.Buffer safe for a writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
