package emac

import "github.com/knieriem/tinygo-emac/internal/critical"

// A Waker is notified when a condition it waits for may have changed.
// Waker values are compared with ==, so implementations must be
// comparable types.
type Waker interface {
	Wake()
}

// Signal is a Waker backed by a channel with a capacity of one.
// Notifications coalesce; Wake never blocks.
type Signal chan struct{}

func NewSignal() Signal {
	return make(Signal, 1)
}

func (s Signal) Wake() {
	select {
	case s <- struct{}{}:
	default:
	}
}

// AtomicWaker holds at most one waker. It may be registered to from
// foreground code and woken from an interrupt handler.
type AtomicWaker struct {
	mu critical.Mutex
	w  Waker
}

// Register stores w, replacing any other waker. Registering the same
// waker again has no effect.
func (a *AtomicWaker) Register(w Waker) {
	a.mu.Lock()
	a.w = w
	a.mu.Unlock()
}

// Wake removes the stored waker and notifies it. Without a stored waker
// Wake does nothing.
func (a *AtomicWaker) Wake() {
	a.mu.Lock()
	w := a.w
	a.w = nil
	a.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}

// Wakers are the per-event wakers of a driver.
type Wakers struct {
	RX  AtomicWaker
	TX  AtomicWaker
	Err AtomicWaker
}

// dispatch wakes the wakers interested in the events of s. Errors wake
// everyone, so that waiters can observe the failure.
func (ws *Wakers) dispatch(s InterruptStatus) {
	if s.HasError() {
		ws.wakeAll()
		return
	}
	if s.RxComplete || s.RxBufferUnavailable {
		ws.RX.Wake()
	}
	if s.TxComplete || s.TxBufferUnavailable {
		ws.TX.Wake()
	}
}

func (ws *Wakers) wakeAll() {
	ws.RX.Wake()
	ws.TX.Wake()
	ws.Err.Wake()
}
