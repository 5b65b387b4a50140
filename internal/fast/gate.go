package fast

import "sync"

// gate is a binary signal that goroutines can wait on. It starts open.
// An open gate is represented by a closed channel.
type gate struct {
	mu sync.Mutex
	ch chan struct{}
}

func newGate() *gate {
	ch := make(chan struct{})
	close(ch)
	return &gate{ch: ch}
}

// open releases all current and future waiters until the next close
func (g *gate) open() {
	g.mu.Lock()
	defer g.mu.Unlock()

	select {
	case <-g.ch:
	default:
		close(g.ch)
	}
}

// close makes future waiters block until open is called
func (g *gate) close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	select {
	case <-g.ch:
		g.ch = make(chan struct{})
	default:
	}
}

func (g *gate) isOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// wait returns a channel that is closed once the gate is open
func (g *gate) wait() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ch
}
