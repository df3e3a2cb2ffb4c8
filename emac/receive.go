package emac

import "log/slog"

type frameState uint8

const (
	frameIncomplete frameState = iota
	frameComplete
	frameBroken // descriptors do not form a frame
)

// frameAt examines the frame starting off descriptors after the cursor,
// looking at no more than limit descriptors. It returns the number of
// descriptors belonging to the frame.
func (e *Engine) frameAt(off, limit int) (int, frameState) {
	for i := range limit {
		d := e.rx.AtOffset(off + i)
		if d.IsOwned() {
			return 0, frameIncomplete
		}
		if d.IsFirst() != (i == 0) {
			if i == 0 {
				return 1, frameBroken
			}
			// A new frame starts before the last one ended.
			return i, frameBroken
		}
		if d.IsLast() {
			return i + 1, frameComplete
		}
	}
	return limit, frameBroken
}

// Receive copies the next frame, without CRC, into buf and returns its
// length.
//
// ErrIncompleteFrame is returned if no complete frame is available yet;
// the call may be retried later. A frame flagged as erroneous by the
// hardware, or whose length does not fit its descriptors, is discarded
// and reported as *FrameError; the value is only valid until the next
// call. If buf is too small for the frame, the frame is discarded and
// ErrBufferTooSmall is returned; Stats.RxDropLen holds the frame's
// length. In every case the consumed descriptors are returned to the
// DMA.
func (e *Engine) Receive(buf []byte) (int, error) {
	d := e.rx.Current()
	if d.IsOwned() {
		return 0, ErrIncompleteFrame
	}
	if !d.IsFirst() {
		e.resync()
		return 0, ErrIncompleteFrame
	}
	nd, st := e.frameAt(0, e.rx.Len())
	switch st {
	case frameIncomplete:
		return 0, ErrIncompleteFrame
	case frameBroken:
		e.resync()
		return 0, ErrIncompleteFrame
	}

	last := e.rx.AtOffset(nd - 1)
	n := last.PayloadLength()
	if flags, bad := e.frameErrorFlags(last, nd); bad {
		e.release(nd)
		e.stats.RxErrors++
		if logEnabled(slog.LevelWarn) {
			logWarn(ComponentDMA, "rx frame error", "flags", flags.String(), "descriptors", nd)
		}
		e.rxErr.Flags = flags
		return 0, &e.rxErr
	}
	if n > len(buf) {
		e.release(nd)
		e.stats.RxDropped++
		e.stats.RxDropLen = uint32(n)
		return 0, ErrBufferTooSmall
	}
	copied := 0
	for i := 0; i < nd && copied < n; i++ {
		copied += copy(buf[copied:n], e.rxSlot(e.rx.wrap(e.rx.cur+i)))
	}
	e.release(nd)
	e.stats.RxFrames++
	return n, nil
}

// frameErrorFlags reports whether the completed frame of nd descriptors
// ending at last is unusable, and why.
func (e *Engine) frameErrorFlags(last *RxDescriptor, nd int) (RxErrorFlags, bool) {
	switch {
	case last.HasError():
		return last.ErrorFlags(), true
	case last.FrameLength() < CRCLength, last.FrameLength() > nd*e.bufSize:
		return RxErrorFlags(RDES0_LE), true
	}
	return 0, false
}

// RxAvailable reports whether Receive would consume descriptors: the
// descriptor at the cursor is released by the DMA and ends a frame, or
// starts a frame whose remaining descriptors have been released as
// well. A frame tail left over after a lost start counts too, as
// Receive flushes it.
func (e *Engine) RxAvailable() bool {
	if d := e.rx.Current(); !d.IsOwned() && d.IsLast() {
		return true
	}
	_, st := e.frameAt(0, e.rx.Len())
	return st == frameComplete
}

// PeekFrameLength returns the payload length of the frame at the cursor
// without consuming it. It returns false if the frame is incomplete or
// erroneous.
func (e *Engine) PeekFrameLength() (int, bool) {
	nd, st := e.frameAt(0, e.rx.Len())
	if st != frameComplete {
		return 0, false
	}
	last := e.rx.AtOffset(nd - 1)
	if _, bad := e.frameErrorFlags(last, nd); bad {
		return 0, false
	}
	return last.PayloadLength(), true
}

// RxFrameCount returns the number of complete frames queued after the
// cursor, erroneous frames included.
func (e *Engine) RxFrameCount() int {
	count := 0
	for off := 0; off < e.rx.Len(); {
		nd, st := e.frameAt(off, e.rx.Len()-off)
		if st != frameComplete {
			break
		}
		count++
		off += nd
	}
	return count
}

// FlushRxFrame discards the descriptors of the frame at the cursor, up
// to and including its last descriptor. It stops early at a descriptor
// owned by the DMA or at the start of another frame. The number of
// recycled descriptors is returned.
func (e *Engine) FlushRxFrame() int {
	n := 0
	for n < e.rx.Len() {
		d := e.rx.AtOffset(n)
		if d.IsOwned() || n > 0 && d.IsFirst() {
			break
		}
		n++
		if d.IsLast() {
			break
		}
	}
	if n > 0 {
		e.release(n)
	}
	return n
}

func (e *Engine) resync() {
	n := e.FlushRxFrame()
	e.stats.RxDesync++
	if logEnabled(slog.LevelWarn) {
		logWarn(ComponentDMA, "rx ring out of sync", "flushed", n)
	}
}

// release returns n descriptors starting at the cursor to the DMA and
// advances the cursor past them.
func (e *Engine) release(n int) {
	for i := range n {
		e.rx.AtOffset(i).Recycle()
	}
	e.rx.AdvanceBy(n)

	// Resume reception in case the DMA ran out of descriptors.
	e.dma.DMARPDR.Set(0)
}
