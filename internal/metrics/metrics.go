// Package metrics provides lightweight, lock-free counters for tracking
// runtime statistics of the modem channels and the daemon around them.
//
// All methods are safe for concurrent use.  A nil *Collector (and a nil
// *Channel) is a valid no-op receiver, so callers never need to
// nil-check.  The Collector also implements prometheus.Collector so the
// same counters back both the JSON snapshot and the /metrics endpoint.
package metrics

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Channel tracks the counters of one modem channel.
type Channel struct {
	name string

	received       atomic.Int64
	bytesIn        atomic.Int64
	sends          atomic.Int64
	bytesOut       atomic.Int64
	dropped        atomic.Int64
	sendErrors     atomic.Int64
	createFailures atomic.Int64
	loopAborts     atomic.Int64
	restarts       atomic.Int64
	up             atomic.Bool
}

// Collector tracks runtime metrics for the daemon.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsActive   atomic.Int64
	sessionsTotal    atomic.Int64
	tunnelReconnects atomic.Int64
	errorsTotal      atomic.Int64

	mu           sync.RWMutex
	channels     map[string]*Channel
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{
		startTime: time.Now(),
		channels:  make(map[string]*Channel),
	}
}

// Channel returns the counters for the named channel, creating them on
// first use.  It returns nil on a nil Collector.
func (c *Collector) Channel(name string) *Channel {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	ch := c.channels[name]
	c.mu.RUnlock()
	if ch != nil {
		return ch
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ch = c.channels[name]; ch == nil {
		ch = &Channel{name: name}
		c.channels[name] = ch
	}
	return ch
}

// channelList returns the channels sorted by name.
func (c *Collector) channelList() []*Channel {
	c.mu.RLock()
	out := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// ── Channel counters ─────────────────────────────────────────────────

// Received records one inbound envelope carrying n payload bytes.
func (m *Channel) Received(n int) {
	if m == nil {
		return
	}
	m.received.Add(1)
	m.bytesIn.Add(int64(n))
}

// Sent records one outbound message of n payload bytes handed to the
// transport.
func (m *Channel) Sent(n int) {
	if m == nil {
		return
	}
	m.sends.Add(1)
	m.bytesOut.Add(int64(n))
}

// Dropped records a send discarded because the channel was not live.
func (m *Channel) Dropped() {
	if m == nil {
		return
	}
	m.dropped.Add(1)
}

// SendError records a send the transport rejected.
func (m *Channel) SendError() {
	if m == nil {
		return
	}
	m.sendErrors.Add(1)
}

// CreateFailed records a failed bring-up.
func (m *Channel) CreateFailed() {
	if m == nil {
		return
	}
	m.createFailures.Add(1)
}

// LoopAborted records a read loop that exited on error.
func (m *Channel) LoopAborted() {
	if m == nil {
		return
	}
	m.loopAborts.Add(1)
}

// Restarted records a supervisor restart.
func (m *Channel) Restarted() {
	if m == nil {
		return
	}
	m.restarts.Add(1)
}

// SetUp records whether the channel handle is live.
func (m *Channel) SetUp(up bool) {
	if m == nil {
		return
	}
	m.up.Store(up)
}

// ChannelSnapshot is a point-in-time view of one channel.
type ChannelSnapshot struct {
	Up             bool  `json:"up"`
	Received       int64 `json:"received"`
	BytesIn        int64 `json:"bytes_in"`
	Sends          int64 `json:"sends"`
	BytesOut       int64 `json:"bytes_out"`
	Dropped        int64 `json:"dropped"`
	SendErrors     int64 `json:"send_errors"`
	CreateFailures int64 `json:"create_failures"`
	LoopAborts     int64 `json:"loop_aborts"`
	Restarts       int64 `json:"restarts"`
}

// Snapshot returns a copy of the channel counters.
func (m *Channel) Snapshot() ChannelSnapshot {
	if m == nil {
		return ChannelSnapshot{}
	}
	return ChannelSnapshot{
		Up:             m.up.Load(),
		Received:       m.received.Load(),
		BytesIn:        m.bytesIn.Load(),
		Sends:          m.sends.Load(),
		BytesOut:       m.bytesOut.Load(),
		Dropped:        m.dropped.Load(),
		SendErrors:     m.sendErrors.Load(),
		CreateFailures: m.createFailures.Load(),
		LoopAborts:     m.loopAborts.Load(),
		Restarts:       m.restarts.Load(),
	}
}

// ── Control sessions ─────────────────────────────────────────────────

// SessionOpened increments both the active and total session counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the current number of control sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime control session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ── Tunnel metrics ───────────────────────────────────────────────────

// TunnelReconnect records a tunnel reconnection event.
func (c *Collector) TunnelReconnect() {
	if c == nil {
		return
	}
	c.tunnelReconnects.Add(1)
}

// TunnelReconnects returns the total tunnel reconnection count.
func (c *Collector) TunnelReconnects() int64 {
	if c == nil {
		return 0
	}
	return c.tunnelReconnects.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string                     `json:"uptime"`
	Channels         map[string]ChannelSnapshot `json:"channels"`
	SessionsActive   int64                      `json:"sessions_active"`
	SessionsTotal    int64                      `json:"sessions_total"`
	TunnelReconnects int64                      `json:"tunnel_reconnects"`
	ErrorsTotal      int64                      `json:"errors_total"`
	LastError        string                     `json:"last_error,omitempty"`
	LastErrorMessage string                     `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}

	s := Snapshot{
		Channels:         make(map[string]ChannelSnapshot),
		SessionsActive:   c.sessionsActive.Load(),
		SessionsTotal:    c.sessionsTotal.Load(),
		TunnelReconnects: c.tunnelReconnects.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
	}
	for _, ch := range c.channelList() {
		s.Channels[ch.name] = ch.Snapshot()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	s.Uptime = time.Since(c.startTime).Truncate(time.Second).String()
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
