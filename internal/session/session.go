// Package session represents a single control connection, binding the
// network connection with a line reader, an identity and a logger.
//
// The control server hands sessions to its command handler rather than
// raw connections, so handlers can be driven from net.Pipe in tests.
package session

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"modemlink/util"
)

// MaxLineLength caps one control line.  A hex payload of a full FMT
// frame fits with room to spare.
const MaxLineLength = 256 * 1024

// Session encapsulates the runtime context for a single connection.
type Session struct {
	ID      string
	Conn    net.Conn
	Started time.Time
	Logger  *util.Logger

	scanner *bufio.Scanner
	w       *bufio.Writer
}

// New creates a Session bound to conn.  The logger is tagged with the
// session ID and remote address.
func New(conn net.Conn, logger *util.Logger) *Session {
	id := uuid.NewString()
	if logger == nil {
		logger = util.NopLogger()
	}
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), MaxLineLength)
	return &Session{
		ID:      id,
		Conn:    conn,
		Started: time.Now(),
		Logger:  logger.With("session", id, "remote", conn.RemoteAddr().String()),
		scanner: sc,
		w:       bufio.NewWriter(conn),
	}
}

// ReadLine returns the next line without its terminator.  ok is false
// once the peer is done or reading failed; see Err.
func (s *Session) ReadLine() (line string, ok bool) {
	if !s.scanner.Scan() {
		return "", false
	}
	return s.scanner.Text(), true
}

// Err reports why ReadLine stopped, nil on clean EOF.
func (s *Session) Err() error { return s.scanner.Err() }

// Printf buffers one formatted line.  Call Flush to send it.
func (s *Session) Printf(format string, args ...interface{}) {
	fmt.Fprintf(s.w, format, args...)
	s.w.WriteByte('\n') //nolint:errcheck
}

// Flush writes buffered output to the peer.
func (s *Session) Flush() error { return s.w.Flush() }

// Close closes the connection.
func (s *Session) Close() error { return s.Conn.Close() }
