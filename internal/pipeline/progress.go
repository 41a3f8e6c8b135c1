package pipeline

import (
	"sync"
)

// progressForwarder hands engine progress to a single consumer goroutine.
// Sends never block the engine: a pending value is replaced by a newer one.
// The highest value seen is kept so it can be applied once the engine
// returns, even if the consumer never observed it.
type progressForwarder struct {
	mu     sync.Mutex
	ch     chan float64
	max    float64
	closed bool
}

func newProgressForwarder() *progressForwarder {
	return &progressForwarder{ch: make(chan float64, 1)}
}

// send is safe to call from any goroutine, including after close.
func (f *progressForwarder) send(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if v > f.max {
		f.max = v
	}
	select {
	case f.ch <- v:
	default:
		select {
		case <-f.ch:
		default:
		}
		f.ch <- v
	}
}

// close stops accepting values and returns the highest one seen.
func (f *progressForwarder) close() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
	return f.max
}
