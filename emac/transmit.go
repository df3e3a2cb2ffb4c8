package emac

import "log/slog"

// Transmit queues data as one frame. Frames larger than one buffer are
// split over consecutive descriptors. Transmit never waits: without
// enough free descriptors it returns ErrNoDescriptorsAvailable.
//
// On a single-core system the whole call must run with interrupts
// masked if an interrupt handler uses the engine as well.
func (e *Engine) Transmit(data []byte) (int, error) {
	n := len(data)
	switch {
	case n == 0:
		return 0, ErrInvalidLength
	case n > e.MaxFrameSize():
		return 0, ErrFrameTooLarge
	}
	nd := e.chunks(n)
	if e.TxAvailable() < nd {
		return 0, ErrNoDescriptorsAvailable
	}

	// Fill the descriptors while they are still owned by software ...
	for i := range nd {
		d := e.tx.AtOffset(i)
		if d.IsOwned() {
			return 0, ErrDescriptorBusy
		}
		if d.IsLast() && d.HasError() {
			e.stats.TxErrors++
			if logEnabled(slog.LevelWarn) {
				logWarn(ComponentDMA, "tx error", "flags", d.ErrorFlags().String())
			}
		}
		off := i * e.bufSize
		end := min(off+e.bufSize, n)
		copy(e.txSlot(e.tx.wrap(e.tx.cur+i)), data[off:end])
		d.prepare(end-off, i == 0, i == nd-1, e.txCtrl)
	}

	// ... then pass them to the DMA, last segment first, so that the
	// DMA never sees an owned first segment before the rest of the frame
	// is ready.
	for i := nd - 1; i >= 0; i-- {
		e.tx.AtOffset(i).SetOwned()
	}
	e.tx.AdvanceBy(nd)
	e.stats.TxFrames++

	// Resume the transmit process in case it is suspended.
	e.dma.DMATPDR.Set(0)
	return n, nil
}

// TxAvailable returns the number of free descriptors following the
// cursor. Counting stops at the first descriptor owned by the DMA, since
// descriptors are used in ring order.
func (e *Engine) TxAvailable() int {
	n := 0
	for n < e.tx.Len() && !e.tx.AtOffset(n).IsOwned() {
		n++
	}
	return n
}

// CanTransmit reports whether a frame of length n would be accepted by
// Transmit now. A zero length is never accepted.
func (e *Engine) CanTransmit(n int) bool {
	if n <= 0 || n > e.MaxFrameSize() {
		return false
	}
	return e.TxAvailable() >= e.chunks(n)
}

func (e *Engine) chunks(n int) int {
	return (n + e.bufSize - 1) / e.bufSize
}
