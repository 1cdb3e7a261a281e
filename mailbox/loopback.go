package mailbox

import "sync/atomic"

// Loopback is an in-memory doorbell for hosted runs and tests. Send invokes
// the peer's callback synchronously on the caller's goroutine, which models
// the IRQ context of real hardware closely enough: the callback runs
// concurrently with the receiver's main loop.
type Loopback struct {
	peer *Loopback
	cb   atomic.Value // Callback
	sent atomic.Uint64
}

// NewLoopbackPair returns two connected mailbox ends.
func NewLoopbackPair() (*Loopback, *Loopback) {
	a, b := &Loopback{}, &Loopback{}
	a.peer, b.peer = b, a
	return a, b
}

// Send rings the peer.
func (l *Loopback) Send() {
	l.sent.Add(1)
	if cb, ok := l.peer.cb.Load().(Callback); ok && cb != nil {
		cb()
	}
}

// RegisterCallback installs cb to run when the peer sends.
func (l *Loopback) RegisterCallback(cb Callback) {
	l.cb.Store(cb)
}

// Sent returns how many times Send was called on this end.
func (l *Loopback) Sent() uint64 {
	return l.sent.Load()
}
