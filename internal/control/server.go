// Package control implements the daemon's line-oriented control
// listener.  Each accepted connection becomes a session that can inject
// outbound frames into a channel's send gate and inspect channel state
// and counters.
//
// Any number of sessions may send concurrently; they all funnel into
// the same channel.Client send gate.
package control

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"modemlink/internal/channel"
	"modemlink/internal/metrics"
	"modemlink/internal/session"
	"modemlink/util"
)

// Channel is the part of channel.Client the control server uses.
type Channel interface {
	Send(cmd uint16, typ uint8, data []byte, seq uint8)
	Live() bool
	State() channel.State
	Instance() string
}

// Server accepts control connections and spawns a goroutine per
// session.
type Server struct {
	Address     string
	Channels    map[string]Channel
	Metrics     *metrics.Collector
	IdleTimeout time.Duration // per-session read deadline, 0 = none
	Logger      *util.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// Run listens on Address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("control: listen on %s: %w", s.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled, then closes
// every open session and waits for their handlers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.logger().Verbose("control listening on %s", ln.Addr())

	var wg sync.WaitGroup
	defer wg.Wait()

	// Shut the listener and open sessions down when the context expires.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
		s.closeAll()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("control: accept: %w", err)
			}
		}

		sess := session.New(conn, s.logger())
		s.track(sess)
		if ctx.Err() != nil {
			sess.Close()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.untrack(sess)
			s.serveSession(ctx, sess)
		}()
	}
}

func (s *Server) logger() *util.Logger {
	if s.Logger == nil {
		return util.NopLogger()
	}
	return s.Logger
}

func (s *Server) track(sess *session.Session) {
	s.mu.Lock()
	if s.sessions == nil {
		s.sessions = make(map[string]*session.Session)
	}
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	s.Metrics.SessionOpened()
	sess.Logger.Verbose("control session opened")
}

func (s *Server) untrack(sess *session.Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	s.mu.Unlock()
	sess.Close()
	s.Metrics.SessionClosed()
	sess.Logger.Verbose("control session closed after %s", time.Since(sess.Started).Truncate(time.Millisecond))
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.Close()
	}
}

// ── Session handling ─────────────────────────────────────────────────

func (s *Server) serveSession(ctx context.Context, sess *session.Session) {
	for {
		if s.IdleTimeout > 0 {
			sess.Conn.SetReadDeadline(time.Now().Add(s.IdleTimeout)) //nolint:errcheck
		}
		line, ok := sess.ReadLine()
		if !ok {
			if err := sess.Err(); err != nil && ctx.Err() == nil && !util.IsClosed(err) {
				sess.Logger.Debug("control read: %v", err)
			}
			return
		}
		if line == "" {
			continue
		}

		quit := s.execute(sess, line)
		if err := sess.Flush(); err != nil {
			sess.Logger.Debug("control write: %v", err)
			return
		}
		if quit {
			return
		}
	}
}

// execute runs one line and reports whether the session should end.
func (s *Server) execute(sess *session.Session, line string) bool {
	cmd, err := ParseCommand(line)
	if err != nil {
		sess.Printf("err %v", err)
		return false
	}

	switch cmd.Verb {
	case VerbSend:
		ch, ok := s.Channels[cmd.Channel]
		if !ok {
			sess.Printf("err unknown channel %q", cmd.Channel)
			return false
		}
		live := ch.Live()
		ch.Send(cmd.Cmd, cmd.Type, cmd.Data, cmd.Seq)
		sess.Logger.Debug("send %s cmd=0x%04x seq=%d len=%d", cmd.Channel, cmd.Cmd, cmd.Seq, len(cmd.Data))
		if !live {
			sess.Printf("ok dropped (channel not live)")
		} else {
			sess.Printf("ok")
		}
	case VerbStatus:
		for _, name := range s.channelNames() {
			ch := s.Channels[name]
			sess.Printf("%s state=%s live=%t instance=%s", name, ch.State(), ch.Live(), orDash(ch.Instance()))
		}
		sess.Printf("ok")
	case VerbStats:
		sess.Printf("%s", s.Metrics.JSON())
		sess.Printf("ok")
	case VerbHelp:
		sess.Printf("%s", usage)
		sess.Printf("ok")
	case VerbQuit:
		sess.Printf("bye")
		return true
	}
	return false
}

func (s *Server) channelNames() []string {
	names := make([]string, 0, len(s.Channels))
	for name := range s.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
