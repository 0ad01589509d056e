package channel

import (
	"sync"

	"modemlink/internal/transport"
)

// guard owns the published handle.  The handle is only reachable
// through withLock and swap, so every use happens under mu.
type guard struct {
	mu     sync.Mutex
	handle transport.Client
}

// withLock runs fn with the mutex held.  h is nil when no handle is
// published.
func (g *guard) withLock(fn func(h transport.Client)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.handle)
}

// swap publishes h and returns the handle it replaced.
func (g *guard) swap(h transport.Client) transport.Client {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.handle
	g.handle = h
	return old
}
