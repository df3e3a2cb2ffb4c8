package emac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/knieriem/tinygo-emac/internal/critical"
)

// Driver is the single shared instance of an Emac. Foreground code and
// the interrupt handler reach the Emac only through Driver, which holds
// a critical section for the duration of every call. A multi-segment
// transmit therefore runs with interrupts masked from start to end.
//
// The zero value is ready for Init. A Driver must not be copied.
type Driver struct {
	g     critical.Guarded[Emac]
	rxSig Signal
	txSig Signal
	erSig Signal
}

func (d *Driver) Init(regs Registers, cfg Config) (err error) {
	if d.rxSig == nil {
		d.rxSig = NewSignal()
		d.txSig = NewSignal()
		d.erSig = NewSignal()
	}
	d.g.With(func(m *Emac) {
		err = m.Init(regs, cfg)
	})
	return err
}

func (d *Driver) Start() (err error) {
	d.g.With(func(m *Emac) { err = m.Start() })
	return err
}

func (d *Driver) Stop() (err error) {
	d.g.With(func(m *Emac) { err = m.Stop() })
	return err
}

func (d *Driver) State() (s State) {
	d.g.With(func(m *Emac) { s = m.State() })
	return s
}

// With runs f with exclusive access to the Emac.
func (d *Driver) With(f func(m *Emac)) {
	d.g.With(f)
}

// HandleInterrupt is meant to be called from the peripheral's interrupt
// handler.
func (d *Driver) HandleInterrupt() (s InterruptStatus, err error) {
	d.g.With(func(m *Emac) { s, err = m.HandleInterrupt() })
	return s, err
}

// TryTransmit queues data without waiting.
func (d *Driver) TryTransmit(data []byte) (n int, err error) {
	d.g.With(func(m *Emac) { n, err = m.Transmit(data) })
	return n, err
}

// TryReceive receives a frame without waiting.
func (d *Driver) TryReceive(buf []byte) (n int, err error) {
	d.g.With(func(m *Emac) { n, err = m.Receive(buf) })
	return n, err
}

// Transmit queues data, waiting for free descriptors if necessary.
func (d *Driver) Transmit(ctx context.Context, data []byte) (int, error) {
	for {
		var n int
		var err error
		d.g.With(func(m *Emac) {
			n, err = m.Transmit(data)
			if errors.Is(err, ErrNoDescriptorsAvailable) {
				m.wakers.TX.Register(d.txSig)
				if m.CanTransmit(len(data)) {
					d.txSig.Wake()
				}
			}
		})
		if !errors.Is(err, ErrNoDescriptorsAvailable) {
			return n, err
		}
		if err := d.wait(ctx, d.txSig); err != nil {
			return 0, err
		}
	}
}

// Receive waits for a frame and copies it into buf.
func (d *Driver) Receive(ctx context.Context, buf []byte) (int, error) {
	for {
		var n int
		var err error
		var resynced bool
		d.g.With(func(m *Emac) {
			desync := m.engine.stats.RxDesync
			n, err = m.Receive(buf)
			if errors.Is(err, ErrIncompleteFrame) {
				// Descriptors flushed while resynchronizing may hide
				// complete frames behind them, and no further
				// interrupt would announce those.
				if m.engine.stats.RxDesync != desync {
					resynced = true
					return
				}
				m.wakers.RX.Register(d.rxSig)
				if m.RxAvailable() {
					d.rxSig.Wake()
				}
			}
		})
		if !errors.Is(err, ErrIncompleteFrame) {
			return n, err
		}
		if resynced {
			continue
		}
		if err := d.wait(ctx, d.rxSig); err != nil {
			return 0, err
		}
	}
}

// WaitReceive waits until a complete frame is available.
func (d *Driver) WaitReceive(ctx context.Context) error {
	return d.waitFor(ctx, d.rxSig, func(m *Emac) (bool, *AtomicWaker) {
		return m.engine.RxAvailable(), &m.wakers.RX
	})
}

// WaitTransmit waits until a frame of n bytes can be queued.
func (d *Driver) WaitTransmit(ctx context.Context, n int) error {
	if n <= 0 {
		return ErrInvalidLength
	}
	return d.waitFor(ctx, d.txSig, func(m *Emac) (bool, *AtomicWaker) {
		if n > m.engine.MaxFrameSize() {
			return false, nil
		}
		return m.engine.CanTransmit(n), &m.wakers.TX
	})
}

// WaitError waits for an interrupt reporting an error condition and
// returns its status.
func (d *Driver) WaitError(ctx context.Context) (InterruptStatus, error) {
	var seq uint32
	first := true
	for {
		var s InterruptStatus
		var err error
		var done bool
		d.g.With(func(m *Emac) {
			switch {
			case m.state != StateRunning:
				err = ErrNotRunning
			case first:
				seq = m.errSeq
				first = false
				m.wakers.Err.Register(d.erSig)
			case m.errSeq != seq:
				s, done = m.errStatus, true
				m.reportErrors()
			default:
				m.wakers.Err.Register(d.erSig)
			}
		})
		if err != nil || done {
			return s, err
		}
		if err := d.wait(ctx, d.erSig); err != nil {
			return s, err
		}
	}
}

// waitFor implements check, register, re-check and wait. cond returns
// whether the condition holds, and otherwise the waker to register
// with; a nil waker means the condition can never hold.
func (d *Driver) waitFor(ctx context.Context, sig Signal, cond func(m *Emac) (bool, *AtomicWaker)) error {
	for {
		var ok bool
		var err error
		d.g.With(func(m *Emac) {
			if err = m.usable(); err != nil {
				return
			}
			var w *AtomicWaker
			ok, w = cond(m)
			if ok {
				return
			}
			if w == nil {
				err = ErrFrameTooLarge
				return
			}
			w.Register(sig)
			ok, _ = cond(m)
		})
		if err != nil || ok {
			return err
		}
		if err := d.wait(ctx, sig); err != nil {
			return err
		}
	}
}

func (d *Driver) wait(ctx context.Context, sig Signal) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sig:
		return nil
	}
}

func (d *Driver) UpdateLink() (l Link, err error) {
	d.g.With(func(m *Emac) { l, err = m.UpdateLink() })
	return l, err
}

// WaitLink holds the critical section only while polling the PHY, not
// while delaying between polls.
func (d *Driver) WaitLink(ctx context.Context) (Link, error) {
	var cfg Config
	d.g.With(func(m *Emac) { cfg = m.cfg })
	var waited time.Duration
	for {
		l, err := d.UpdateLink()
		if err != nil || l.Up {
			return l, err
		}
		if waited >= cfg.LinkTimeout {
			return l, fmt.Errorf("link: %w", ErrTimeout)
		}
		if err := ctx.Err(); err != nil {
			return l, err
		}
		cfg.delay(cfg.LinkPollInterval)
		waited += cfg.LinkPollInterval
	}
}

// MDIO returns the management interface of the Emac. It may be
// obtained before Init, e.g. to configure a PHY driver.
func (d *Driver) MDIO() (md *MDIO) {
	d.g.With(func(m *Emac) { md = m.MDIO() })
	return md
}

func (d *Driver) Link() (l Link) {
	d.g.With(func(m *Emac) { l = m.Link() })
	return l
}

func (d *Driver) HardwareAddr() (a [6]byte) {
	d.g.With(func(m *Emac) { a = m.HardwareAddr() })
	return a
}

func (d *Driver) Stats() (s Stats) {
	d.g.With(func(m *Emac) { s = m.Stats() })
	return s
}

// maxFrameSize returns the largest frame exchanged through the network
// adapters, limited by the transmit ring's capacity.
func (d *Driver) maxFrameSize() (n int) {
	d.g.With(func(m *Emac) {
		n = MaxEthFrameSize
		if m.initialized {
			n = min(n, m.engine.MaxFrameSize())
		}
	})
	return n
}
