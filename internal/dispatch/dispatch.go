// Package dispatch provides the stock consumers for inbound envelopes:
// a per-command routing table, a relay that renders envelopes as text
// lines, a fan-out, and a child process fed with relay lines.
//
// Every type here satisfies channel.Dispatcher.  Dispatchers run on the
// read loop goroutine and must neither block for long nor keep the
// envelope once they return.
package dispatch

import (
	"sync"

	"modemlink/internal/transport"
)

// Dispatcher consumes one envelope.  It has the same method set as
// channel.Dispatcher.
type Dispatcher interface {
	Dispatch(env *transport.Envelope)
}

// Handler processes one envelope for a [Router].
type Handler func(env *transport.Envelope)

// Dispatch calls h(env).
func (h Handler) Dispatch(env *transport.Envelope) { h(env) }

// Router picks a handler by exact command, then by FMT command group,
// then falls back.  Envelopes nothing claims are dropped.
type Router struct {
	mu       sync.RWMutex
	commands map[uint16]Handler
	groups   map[uint8]Handler
	fallback Handler
}

// NewRouter returns an empty router.  fallback may be nil.
func NewRouter(fallback Handler) *Router {
	return &Router{
		commands: make(map[uint16]Handler),
		groups:   make(map[uint8]Handler),
		fallback: fallback,
	}
}

// Handle registers h for one command, replacing any earlier handler.
func (r *Router) Handle(cmd uint16, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.commands, cmd)
		return
	}
	r.commands[cmd] = h
}

// HandleGroup registers h for every command whose high byte is group.
func (r *Router) HandleGroup(group uint8, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.groups, group)
		return
	}
	r.groups[group] = h
}

// SetFallback replaces the handler for envelopes nothing else claims.
func (r *Router) SetFallback(h Handler) {
	r.mu.Lock()
	r.fallback = h
	r.mu.Unlock()
}

// Dispatch implements Dispatcher.
func (r *Router) Dispatch(env *transport.Envelope) {
	if h := r.lookup(env); h != nil {
		h(env)
	}
}

func (r *Router) lookup(env *transport.Envelope) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.commands[env.Command]; ok {
		return h
	}
	if h, ok := r.groups[env.Group()]; ok {
		return h
	}
	return r.fallback
}

// Fanout hands each envelope to every dispatcher in order.
type Fanout []Dispatcher

// Dispatch implements Dispatcher.
func (f Fanout) Dispatch(env *transport.Envelope) {
	for _, d := range f {
		d.Dispatch(env)
	}
}
