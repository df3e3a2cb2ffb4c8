package emac

// ChecksumMode selects the checksum insertion performed by the
// transmitter (TDES0 CIC field).
type ChecksumMode uint8

const (
	ChecksumNone      ChecksumMode = iota // no insertion
	ChecksumIPHeader                      // IPv4 header only
	ChecksumIPPayload                     // header and payload, pseudo-header supplied by software
	ChecksumFull                          // header and payload including pseudo-header
)

func (m ChecksumMode) String() string {
	switch m {
	case ChecksumNone:
		return "none"
	case ChecksumIPHeader:
		return "ip-header"
	case ChecksumIPPayload:
		return "ip-payload"
	case ChecksumFull:
		return "full"
	}
	return "invalid"
}

// Stats are counters maintained by the engine.
type Stats struct {
	TxFrames  uint32
	TxErrors  uint32 // frames completed with an error status
	RxFrames  uint32
	RxErrors  uint32 // frames discarded because of an error status
	RxDropped uint32 // frames discarded because the buffer was too small
	RxDropLen uint32 // payload length of the latest of these frames
	RxDesync  uint32 // flushes after the ring lost frame alignment
}

// Engine moves frames between caller buffers and the DMA descriptor
// rings.
//
// Engine does no locking. If an interrupt handler may touch the same
// engine, callers must hold a critical section around each call; Driver
// does that.
type Engine struct {
	dma     *DMARegs
	rx      Ring[RxDescriptor]
	tx      Ring[TxDescriptor]
	rxBuf   []byte
	txBuf   []byte
	bufSize int
	txCtrl  uint32
	stats   Stats
	rxErr   FrameError // reported by Receive, overwritten by the next error
}

// Init binds every descriptor to its buffer slot and to the next
// descriptor, the last one pointing back to the first, then resets the
// rings and programs the descriptor list addresses.
//
// The addresses of the memory in b are captured by the hardware; b must
// stay where it is for as long as the engine is used.
func (e *Engine) Init(dma *DMARegs, b Buffers) error {
	if err := b.validate(); err != nil {
		return err
	}
	e.dma = dma
	e.rx = newRing(b.RxDesc)
	e.tx = newRing(b.TxDesc)
	e.rxBuf = b.RxBuf
	e.txBuf = b.TxBuf
	e.bufSize = b.BufferSize
	e.stats = Stats{}

	n := len(b.RxDesc)
	for i := range n - 1 {
		b.RxDesc[i].setupChained(e.rxSlot(i), &b.RxDesc[i+1])
	}
	b.RxDesc[n-1].setupEndOfRing(e.rxSlot(n-1), &b.RxDesc[0])

	n = len(b.TxDesc)
	for i := range n - 1 {
		b.TxDesc[i].setupChained(e.txSlot(i), &b.TxDesc[i+1])
	}
	b.TxDesc[n-1].setupEndOfRing(e.txSlot(n-1), &b.TxDesc[0])

	e.Reset()
	logDebug(ComponentDMA, "rings initialized",
		"rx", e.rx.Len(), "tx", e.tx.Len(), "bufsize", e.bufSize)
	return nil
}

// Reset hands all RX descriptors to the DMA, returns all TX descriptors
// to software, moves both cursors to the start of their rings and
// programs the descriptor list address registers. Frames not yet
// received or transmitted are lost.
func (e *Engine) Reset() {
	for _, d := range e.tx.All() {
		d.Recycle()
	}
	for _, d := range e.rx.All() {
		d.Recycle()
	}
	e.rx.reset()
	e.tx.reset()
	e.dma.DMARDLAR.Set(e.rx.BaseAddr())
	e.dma.DMATDLAR.Set(e.tx.BaseAddr())
}

// SetChecksumMode sets the checksum insertion mode applied to frames
// passed to subsequent Transmit calls.
func (e *Engine) SetChecksumMode(m ChecksumMode) {
	e.txCtrl = uint32(m) << TDES0_CIC_Pos & TDES0_CIC_Msk
}

func (e *Engine) ChecksumMode() ChecksumMode {
	return ChecksumMode((e.txCtrl & TDES0_CIC_Msk) >> TDES0_CIC_Pos)
}

func (e *Engine) BufferSize() int { return e.bufSize }

// MaxFrameSize returns the largest frame accepted by Transmit.
func (e *Engine) MaxFrameSize() int { return e.bufSize * e.tx.Len() }

func (e *Engine) Stats() Stats { return e.stats }

// RxRing and TxRing give access to the rings, for diagnostics.
func (e *Engine) RxRing() *Ring[RxDescriptor] { return &e.rx }
func (e *Engine) TxRing() *Ring[TxDescriptor] { return &e.tx }

func (e *Engine) rxSlot(i int) []byte {
	return e.rxBuf[i*e.bufSize : (i+1)*e.bufSize]
}

func (e *Engine) txSlot(i int) []byte {
	return e.txBuf[i*e.bufSize : (i+1)*e.bufSize]
}
