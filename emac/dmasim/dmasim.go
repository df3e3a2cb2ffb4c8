// Package dmasim models the DMA side of a DWMAC peripheral on the host.
//
// A Sim owns RAM-backed MAC and DMA register blocks that are handed to
// emac in place of the memory-mapped ones. The model does not run on
// its own: tests and the simulator call ProcessTx and Deliver to let the
// DMA consume transmit descriptors and fill receive descriptors, and the
// Delay function installed in emac.Config completes self-clearing
// register operations like soft reset, FIFO flush and MDIO transfers.
package dmasim

import (
	"encoding/binary"
	"hash/crc32"
	"sync"
	"time"
	"unsafe"

	"github.com/knieriem/tinygo-emac/emac"
)

// Status bits summarized by NIS and AIS.
const (
	normalBits   = emac.DMASR_TS | emac.DMASR_TBU | emac.DMASR_RS | emac.DMASR_ERS
	abnormalBits = emac.DMASR_TPS | emac.DMASR_TJT | emac.DMASR_ROS | emac.DMASR_TUS |
		emac.DMASR_RBU | emac.DMASR_RPS | emac.DMASR_RWT | emac.DMASR_ETS | emac.DMASR_FBE
)

type Sim struct {
	MAC emac.MACRegs
	DMA emac.DMARegs
	PHY *PHY

	// Loopback lets ProcessTx deliver each transmitted frame to the
	// receive ring.
	Loopback bool

	mu     sync.Mutex
	b      emac.Buffers
	rxDesc map[uint32]int
	txDesc map[uint32]int
	rxSlot map[uint32]int
	txSlot map[uint32]int
	rxCur  int
	txCur  int
	sent   [][]byte
	txErr  uint32
	clock  uint64

	irqMu sync.Mutex
	sr    uint32 // pending status bits, as the hardware sees them
	irq   chan struct{}
	delay time.Duration
}

// New returns a model of a peripheral that will be initialized with b.
func New(b emac.Buffers) *Sim {
	s := &Sim{
		PHY:    NewPHY(0),
		b:      b,
		rxDesc: make(map[uint32]int),
		txDesc: make(map[uint32]int),
		rxSlot: make(map[uint32]int),
		txSlot: make(map[uint32]int),
		irq:    make(chan struct{}, 1),
	}
	for i := range b.RxDesc {
		s.rxDesc[addr(unsafe.Pointer(&b.RxDesc[i]))] = i
		s.rxSlot[addr(unsafe.Pointer(&b.RxBuf[i*b.BufferSize]))] = i
	}
	for i := range b.TxDesc {
		s.txDesc[addr(unsafe.Pointer(&b.TxDesc[i]))] = i
		s.txSlot[addr(unsafe.Pointer(&b.TxBuf[i*b.BufferSize]))] = i
	}
	return s
}

func addr(p unsafe.Pointer) uint32 {
	return uint32(uintptr(p))
}

func (s *Sim) Regs() emac.Registers {
	return emac.Registers{MAC: &s.MAC, DMA: &s.DMA}
}

// SetDelay makes Delay sleep for d on each call, in addition to
// completing pending register operations.
func (s *Sim) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// Delay is meant to be installed as emac.Config.Delay. Each call
// completes the self-clearing operations pending in the registers.
func (s *Sim) Delay(time.Duration) {
	s.mu.Lock()
	d := s.delay
	s.step()
	s.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
}

func (s *Sim) step() {
	dma := &s.DMA
	if dma.DMABMR.HasBits(emac.DMABMR_SWR) {
		dma.DMABMR.Set(0)
		dma.DMAOMR.Set(0)
		dma.DMAIER.Set(0)
		s.rxCur = 0
		s.txCur = 0
	}
	if dma.DMAOMR.HasBits(emac.DMAOMR_FTF) {
		dma.DMAOMR.ClearBits(emac.DMAOMR_FTF)

		// The list address registers are written before the transmit
		// FIFO is flushed on start; the DMA continues at the list
		// heads.
		s.rxCur = s.rxDesc[dma.DMARDLAR.Get()]
		s.txCur = s.txDesc[dma.DMATDLAR.Get()]
	}
	if s.MAC.MACMIIAR.HasBits(emac.MACMIIAR_MB) {
		s.mdioTransfer()
	}
}

func (s *Sim) mdioTransfer() {
	mac := &s.MAC
	ar := mac.MACMIIAR.Get()
	pa := uint8(ar & emac.MACMIIAR_PA_Msk >> emac.MACMIIAR_PA_Pos)
	mr := uint8(ar & emac.MACMIIAR_MR_Msk >> emac.MACMIIAR_MR_Pos)
	if ar&emac.MACMIIAR_MW != 0 {
		s.PHY.write(pa, mr, uint16(mac.MACMIIDR.Get()))
	} else {
		mac.MACMIIDR.Set(uint32(s.PHY.read(pa, mr)))
	}
	mac.MACMIIAR.ClearBits(emac.MACMIIAR_MB)
}

// The model marks its own DMASR writes with a reserved bit, so that any
// driver write can be told apart, even one of the pending value.
const writtenByModel = 1 << 31

// syncStatusLocked detects a write-1-to-clear access made by the driver
// since the model last wrote DMASR, and applies it.
func (s *Sim) syncStatusLocked() {
	if w := s.DMA.DMASR.Get(); w&writtenByModel == 0 {
		s.sr &^= w
		s.publishLocked()
	}
}

func (s *Sim) publishLocked() {
	s.DMA.DMASR.Set(s.sr | writtenByModel)
}

// Raise sets status bits, together with the matching summary bits, and
// requests an interrupt if any of them is enabled in DMAIER.
func (s *Sim) Raise(bits uint32) {
	if bits&normalBits != 0 {
		bits |= emac.DMASR_NIS
	}
	if bits&abnormalBits != 0 {
		bits |= emac.DMASR_AIS
	}
	s.irqMu.Lock()
	s.syncStatusLocked()
	s.sr |= bits & emac.StatusMask
	s.publishLocked()
	pending := s.sr&s.DMA.DMAIER.Get() != 0
	s.irqMu.Unlock()
	if pending {
		select {
		case s.irq <- struct{}{}:
		default:
		}
	}
}

// Status returns the pending status bits.
func (s *Sim) Status() uint32 {
	s.irqMu.Lock()
	defer s.irqMu.Unlock()
	s.syncStatusLocked()
	return s.sr
}

// IRQ is signalled when Raise sets an enabled status bit.
func (s *Sim) IRQ() <-chan struct{} {
	return s.irq
}

// Interrupt runs handle like the interrupt controller would, excluding
// concurrent Raise calls. It is meant to be passed the HandleInterrupt
// method of an Emac or a Driver.
func (s *Sim) Interrupt(handle func() (emac.InterruptStatus, error)) (emac.InterruptStatus, error) {
	s.irqMu.Lock()
	defer s.irqMu.Unlock()
	s.syncStatusLocked()
	st, err := handle()
	s.syncStatusLocked()
	return st, err
}

// Sent returns and forgets the frames transmitted so far.
func (s *Sim) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.sent
	s.sent = nil
	return f
}

// FailNextTx makes the next transmitted frame complete with the TDES0
// error bits in flags.
func (s *Sim) FailNextTx(flags uint32) {
	s.mu.Lock()
	s.txErr = flags
	s.mu.Unlock()
}

// ProcessTx lets the transmit DMA send every complete frame handed over
// by the driver. It returns the number of frames sent. Nothing happens
// unless transmission has been started.
func (s *Sim) ProcessTx() int {
	s.mu.Lock()
	var raise uint32
	n := 0
	for s.DMA.DMAOMR.HasBits(emac.DMAOMR_ST) {
		frame, status := s.nextTxFrame()
		if status != 0 {
			raise |= status
			break
		}
		if frame == nil {
			break
		}
		n++
		s.sent = append(s.sent, frame)
		if s.Loopback && s.DMA.DMAOMR.HasBits(emac.DMAOMR_SR) {
			raise |= s.deliver(frame, 0)
		}
	}
	if n > 0 {
		raise |= emac.DMASR_TS | emac.DMASR_TBU
	}
	s.mu.Unlock()
	if raise != 0 {
		s.Raise(raise)
	}
	return n
}

// nextTxFrame collects the segments of the frame at the transmit cursor
// and returns the descriptors to software. It returns a nil frame if no
// complete frame is owned by the DMA, or status bits describing a
// failure.
func (s *Sim) nextTxFrame() ([]byte, uint32) {
	var frame []byte
	i := s.txCur
	nd := 0
	for {
		d := &s.b.TxDesc[i]
		if !d.IsOwned() {
			return nil, 0
		}
		if nd == 0 && !d.IsFirst() {
			// Not the start of a frame: drop the descriptor.
			d.SetStatus(d.Status()&^emac.TDES0_OWN | emac.TDES0_ES | emac.TDES0_FF)
			next, ok := s.txNext(i)
			if !ok {
				return nil, emac.DMASR_FBE
			}
			s.txCur = next
			return s.nextTxFrame()
		}
		slot, ok := s.txSlot[d.BufferAddr()]
		if !ok {
			return nil, emac.DMASR_FBE
		}
		buf := s.b.TxBuf[slot*s.b.BufferSize:]
		frame = append(frame, buf[:d.BufferSize()]...)
		nd++
		if d.IsLast() {
			break
		}
		if nd == len(s.b.TxDesc) {
			return nil, emac.DMASR_TUS
		}
		next, ok := s.txNext(i)
		if !ok {
			return nil, emac.DMASR_FBE
		}
		i = next
	}

	// Write back status, last descriptor first
	s.clock++
	for k := nd - 1; k >= 0; k-- {
		j := (s.txCur + k) % len(s.b.TxDesc)
		d := &s.b.TxDesc[j]
		st := d.Status() &^ emac.TDES0_OWN
		if k == nd-1 && s.txErr != 0 {
			st |= emac.TDES0_ES | s.txErr
			s.txErr = 0
		}
		if k == nd-1 && st&emac.TDES0_TTSE != 0 {
			d.SetTimestamp(uint32(s.clock), 0)
			st |= emac.TDES0_TTSS
		}
		d.SetStatus(st)
	}
	s.txCur, _ = s.txNext(i)
	return frame, 0
}

func (s *Sim) txNext(i int) (int, bool) {
	next, ok := s.txDesc[s.b.TxDesc[i].NextAddr()]
	return next, ok
}

func (s *Sim) rxNext(i int) (int, bool) {
	next, ok := s.rxDesc[s.b.RxDesc[i].NextAddr()]
	return next, ok
}

// Deliver writes frame, followed by its CRC, into the receive ring. It
// reports false if the frame was dropped because reception is stopped
// or not enough descriptors are owned by the DMA.
func (s *Sim) Deliver(frame []byte) bool {
	return s.DeliverError(frame, 0)
}

// DeliverError delivers frame with the RDES0 error bits in flags set
// in its last descriptor.
func (s *Sim) DeliverError(frame []byte, flags uint32) bool {
	s.mu.Lock()
	if !s.DMA.DMAOMR.HasBits(emac.DMAOMR_SR) {
		s.mu.Unlock()
		return false
	}
	raise := s.deliver(frame, flags)
	s.mu.Unlock()
	s.Raise(raise)
	return raise&emac.DMASR_RS != 0
}

func (s *Sim) deliver(frame []byte, flags uint32) uint32 {
	data := binary.LittleEndian.AppendUint32(append([]byte(nil), frame...), crc32.ChecksumIEEE(frame))

	// Check that the whole frame fits before writing anything.
	size := s.b.BufferSize
	nd := (len(data) + size - 1) / size
	i := s.rxCur
	for k := range nd {
		if !s.b.RxDesc[i].IsOwned() {
			return emac.DMASR_RBU
		}
		if k < nd-1 {
			next, ok := s.rxNext(i)
			if !ok {
				return emac.DMASR_FBE
			}
			i = next
		}
	}

	i = s.rxCur
	for k := range nd {
		d := &s.b.RxDesc[i]
		slot, ok := s.rxSlot[d.BufferAddr()]
		if !ok {
			return emac.DMASR_FBE
		}
		chunk := data[k*size : min((k+1)*size, len(data))]
		copy(s.b.RxBuf[slot*size:], chunk)

		var st uint32
		if k == 0 {
			st |= emac.RDES0_FS
		}
		if k == nd-1 {
			st |= emac.RDES0_LS | uint32(len(data))<<emac.RDES0_FL_Pos&emac.RDES0_FL_Msk
			if flags != 0 {
				st |= emac.RDES0_ES | flags
			}
		}
		d.SetStatus(st)
		i, _ = s.rxNext(i)
	}
	s.rxCur = i
	return emac.DMASR_RS
}
