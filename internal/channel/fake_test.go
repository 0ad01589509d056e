package channel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	ncerr "modemlink/internal/errors"
	"modemlink/internal/transport"
)

// recorder is the ordered call log shared by a factory and the handles
// it builds.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.list() {
		if c == call {
			n++
		}
	}
	return n
}

type sentMsg struct {
	cmd  uint16
	typ  uint8
	data []byte
	seq  uint8
}

// fakeHandle is an in-memory transport.Client.  Receive and Send flag
// any overlap of their critical sections.
type fakeHandle struct {
	rec  *recorder
	fail map[string]error
	sink transport.LogSink

	mu      sync.Mutex
	queue   []*transport.Envelope
	sent    []sentMsg
	waitErr error
	signal  chan struct{}

	waiting  atomic.Bool
	critical atomic.Int32
	overlap  atomic.Bool
	freed    atomic.Int32
}

func newFakeHandle(rec *recorder, fail map[string]error) *fakeHandle {
	return &fakeHandle{rec: rec, fail: fail, signal: make(chan struct{}, 1)}
}

func (f *fakeHandle) call(name string) error {
	f.rec.add(name)
	return f.fail[name]
}

func (f *fakeHandle) enter() {
	if f.critical.Add(1) != 1 {
		f.overlap.Store(true)
	}
	runtime.Gosched()
}

func (f *fakeHandle) exit() { f.critical.Add(-1) }

func (f *fakeHandle) SetLogSink(sink transport.LogSink) error {
	if err := f.call("set-log-sink"); err != nil {
		return err
	}
	f.sink = sink
	sink("log sink attached")
	return nil
}

func (f *fakeHandle) CreateData() error { return f.call("create-data") }
func (f *fakeHandle) DestroyData() error { return f.call("destroy-data") }
func (f *fakeHandle) Bootstrap(context.Context) error { return f.call("bootstrap") }
func (f *fakeHandle) Open(context.Context) error { return f.call("open") }
func (f *fakeHandle) Close() error { return f.call("close") }
func (f *fakeHandle) PowerOn(context.Context) error { return f.call("power-on") }
func (f *fakeHandle) PowerOff() error { return f.call("power-off") }
func (f *fakeHandle) Destroy() error { return f.call("destroy") }
func (f *fakeHandle) FreeEnvelope(*transport.Envelope) { f.freed.Add(1) }

// push queues an inbound envelope and wakes a waiting reader.
func (f *fakeHandle) push(env *transport.Envelope) {
	f.mu.Lock()
	f.queue = append(f.queue, env)
	f.mu.Unlock()
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// failWait makes the next readiness wait return err.
func (f *fakeHandle) failWait(err error) {
	f.mu.Lock()
	f.waitErr = err
	f.mu.Unlock()
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *fakeHandle) WaitReady(timeout time.Duration) error {
	f.waiting.Store(true)
	defer f.waiting.Store(false)

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	for {
		f.mu.Lock()
		n, err := len(f.queue), f.waitErr
		f.mu.Unlock()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		select {
		case <-f.signal:
		case <-expired:
			return ncerr.ErrReadyTimeout
		}
	}
}

func (f *fakeHandle) Receive() (*transport.Envelope, error) {
	f.enter()
	defer f.exit()

	if err := f.fail["receive"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, errors.New("receive with nothing queued")
	}
	env := f.queue[0]
	f.queue = f.queue[1:]
	return env, nil
}

func (f *fakeHandle) Send(cmd uint16, typ uint8, data []byte, seq uint8) error {
	f.enter()
	defer f.exit()

	f.rec.add("send")
	if err := f.fail["send"]; err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, sentMsg{cmd: cmd, typ: typ, data: append([]byte(nil), data...), seq: seq})
	f.mu.Unlock()
	return nil
}

func (f *fakeHandle) sentMsgs() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.sent...)
}

// fakeFactory builds a fresh fakeHandle per Create.
type fakeFactory struct {
	rec  *recorder
	fail map[string]error

	mu      sync.Mutex
	handles []*fakeHandle
}

func newFakeFactory(fail map[string]error) *fakeFactory {
	if fail == nil {
		fail = map[string]error{}
	}
	return &fakeFactory{rec: &recorder{}, fail: fail}
}

func (ff *fakeFactory) New(kind transport.Kind) (transport.Client, error) {
	ff.rec.add("handle")
	if err := ff.fail["handle"]; err != nil {
		return nil, err
	}
	h := newFakeHandle(ff.rec, ff.fail)
	ff.mu.Lock()
	ff.handles = append(ff.handles, h)
	ff.mu.Unlock()
	return h, nil
}

// last returns the most recently built handle.
func (ff *fakeFactory) last() *fakeHandle {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.handles) == 0 {
		return nil
	}
	return ff.handles[len(ff.handles)-1]
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
