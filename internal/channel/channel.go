// Package channel implements the per-channel modem IPC client: an
// ordered bring-up with reverse rollback, a read loop that waits for
// inbound data without holding the handle lock, and a send gate that
// serializes outbound frames against the same handle.
//
// One [Client] type serves both channels; the [Profile] decides which
// optional bring-up steps apply.
//
//	c := channel.New(channel.FMT, factory, channel.WithLogger(log))
//	if err := c.Create(ctx); err != nil { ... }
//	defer c.Destroy()
//	go c.Run(ctx, dispatcher)
//	c.Send(cmd, typ, payload, seq)
package channel

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"modemlink/internal/metrics"
	"modemlink/internal/transport"
	"modemlink/util"
)

// DefaultPollInterval bounds each readiness wait so Run notices
// cancellation.
const DefaultPollInterval = 500 * time.Millisecond

// ── Profiles ─────────────────────────────────────────────────────────

// Profile selects which optional bring-up steps a channel runs.
type Profile struct {
	Name           string
	Kind           transport.Kind
	NeedsBootstrap bool
	NeedsPowerOn   bool
}

var (
	// FMT is the control-plane channel: modem bootstrap before open,
	// power-on after.
	FMT = Profile{Name: "fmt", Kind: transport.KindFMT, NeedsBootstrap: true, NeedsPowerOn: true}
	// RFS is the bulk-data channel: open only.
	RFS = Profile{Name: "rfs", Kind: transport.KindRFS}
)

// typed reports whether outbound messages carry a type tag.
func (p Profile) typed() bool { return p.Kind == transport.KindFMT }

// ── State ────────────────────────────────────────────────────────────

// State is the lifecycle position of a channel.
type State int32

const (
	StateUninitialized State = iota
	StateHandleCreated
	StateLogSinkAttached
	StateDataCreated
	StateBootstrapped
	StateOpen
	StatePoweredOn
	StateRunning
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateHandleCreated:
		return "HANDLE_CREATED"
	case StateLogSinkAttached:
		return "LOG_SINK_ATTACHED"
	case StateDataCreated:
		return "DATA_CREATED"
	case StateBootstrapped:
		return "BOOTSTRAPPED"
	case StateOpen:
		return "OPEN"
	case StatePoweredOn:
		return "POWERED_ON"
	case StateRunning:
		return "RUNNING"
	case StateDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// ── Dispatcher ───────────────────────────────────────────────────────

// Dispatcher consumes inbound envelopes.  Dispatch is called from the
// read loop, one envelope at a time, in receipt order.  It must not
// block indefinitely and must not keep env (or env.Data) after it
// returns.
type Dispatcher interface {
	Dispatch(env *transport.Envelope)
}

// DispatchFunc adapts a function to [Dispatcher].
type DispatchFunc func(env *transport.Envelope)

// Dispatch calls f(env).
func (f DispatchFunc) Dispatch(env *transport.Envelope) { f(env) }

// ── Client ───────────────────────────────────────────────────────────

// Client owns one transport handle and drives it through its
// lifecycle.  Create and Destroy belong to the owning goroutine, Run
// to one reader goroutine, and Send may be called from anywhere.
type Client struct {
	profile Profile
	factory transport.Factory
	poll    time.Duration
	log     *zap.Logger
	metrics *metrics.Channel

	life     sync.Mutex // serializes Create and Destroy
	guard    guard
	state    atomic.Int32
	instance atomic.Value // string, set per successful Create
}

// Option configures a [Client].
type Option func(*Client)

// WithLogger sets the logger.  Messages are tagged with the channel
// name.
func WithLogger(l *util.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l.Zap()
		}
	}
}

// WithMetrics records channel counters in m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m.Channel(c.profile.Name) }
}

// WithPollInterval bounds each readiness wait in Run.  Zero waits
// without a timeout, in which case cancellation is only noticed
// between envelopes.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.poll = d
		}
	}
}

// New returns an uncreated client for profile.  Handles are obtained
// from factory on each Create.
func New(profile Profile, factory transport.Factory, opts ...Option) *Client {
	c := &Client{
		profile: profile,
		factory: factory,
		poll:    DefaultPollInterval,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.Named("channel").With(zap.String("channel", profile.Name))
	c.instance.Store("")
	return c
}

// Profile returns the profile the client was built with.
func (c *Client) Profile() Profile { return c.profile }

// State returns the current lifecycle state.
func (c *Client) State() State {
	if c == nil {
		return StateUninitialized
	}
	return State(c.state.Load())
}

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// Live reports whether a handle is published.
func (c *Client) Live() bool {
	if c == nil {
		return false
	}
	live := false
	c.guard.withLock(func(h transport.Client) { live = h != nil })
	return live
}

// Instance identifies the current handle generation.  It changes on
// every successful Create and is empty before the first one.
func (c *Client) Instance() string {
	if c == nil {
		return ""
	}
	return c.instance.Load().(string)
}

// sink forwards transport diagnostics into the channel log.
func (c *Client) sink(message string) {
	c.log.Debug("ipc: " + message)
}
