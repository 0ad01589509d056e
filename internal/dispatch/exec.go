package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"

	"modemlink/internal/transport"
	"modemlink/util"
)

// Exec describes an external handler process that receives relay
// lines on its stdin.  Either Program (-e) or Command (-c) must be set.
type Exec struct {
	Program string // -e: execute a program directly
	Command string // -c: execute via the system shell

	// QueueSize bounds the lines waiting for the handler's stdin.  Lines
	// arriving while the queue is full are dropped.  0 means
	// DefaultExecQueue.
	QueueSize int
}

// DefaultExecQueue is the default handler line queue length.
const DefaultExecQueue = 256

// Enabled reports whether a handler process is configured.
func (e Exec) Enabled() bool { return e.Program != "" || e.Command != "" }

// Process is a running handler.  It implements Dispatcher for any
// number of channels.  Dispatch only queues the line; a single writer
// goroutine feeds stdin, so a handler that stops reading costs dropped
// lines, never a stalled read loop.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *util.Logger

	mu     sync.Mutex
	lines  chan []byte
	closed bool

	broken  atomic.Bool
	dropped atomic.Int64

	written  chan struct{}
	closeErr error

	done    chan struct{}
	waitErr error
}

// Start launches the handler with its stdout/stderr inherited from the
// daemon.  The process is killed when ctx is cancelled.
func (e Exec) Start(ctx context.Context, logger *util.Logger) (*Process, error) {
	var cmd *exec.Cmd

	switch {
	case e.Command != "":
		if runtime.GOOS == "windows" {
			cmd = exec.CommandContext(ctx, "cmd.exe", "/C", e.Command)
		} else {
			cmd = exec.CommandContext(ctx, "/bin/sh", "-c", e.Command)
		}
	case e.Program != "":
		cmd = exec.CommandContext(ctx, e.Program)
	default:
		return nil, fmt.Errorf("no command specified for exec handler")
	}
	if logger == nil {
		logger = util.NopLogger()
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("exec %q: %w", cmd.Path, err)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	logger.Debug("exec: %s", cmd.String())
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec %q: %w", cmd.Path, err)
	}

	size := e.QueueSize
	if size <= 0 {
		size = DefaultExecQueue
	}
	p := &Process{
		cmd:     cmd,
		stdin:   stdin,
		logger:  logger,
		lines:   make(chan []byte, size),
		written: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.feed()
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// feed copies queued lines to stdin until the queue is closed, then
// closes stdin.
func (p *Process) feed() {
	defer close(p.written)
	for line := range p.lines {
		if p.broken.Load() {
			continue
		}
		if _, err := p.stdin.Write(line); err != nil {
			p.broken.Store(true)
			p.logger.Warn("exec handler stopped accepting input: %v", err)
		}
	}
	p.closeErr = p.stdin.Close()
}

// For returns a Dispatcher that tags lines with kind.
func (p *Process) For(kind transport.Kind) Dispatcher {
	return processDispatcher{p: p, kind: kind}
}

type processDispatcher struct {
	p    *Process
	kind transport.Kind
}

func (d processDispatcher) Dispatch(env *transport.Envelope) { d.p.write(d.kind, env) }

func (p *Process) write(kind transport.Kind, env *transport.Envelope) {
	if p.broken.Load() {
		return
	}
	line := AppendLine(nil, kind, env)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.lines <- line:
	default:
		if p.dropped.Add(1) == 1 {
			p.logger.Warn("exec handler is not keeping up, dropping lines")
		}
	}
}

// Dropped returns how many lines were discarded because the queue was
// full.
func (p *Process) Dropped() int64 { return p.dropped.Load() }

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the exit status after Done is closed.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// Close flushes queued lines, closes the handler's stdin and waits for
// it to exit.
func (p *Process) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.lines)
	}
	p.mu.Unlock()

	<-p.written
	<-p.done
	return errors.Join(p.closeErr, p.waitErr)
}
