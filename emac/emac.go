package emac

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/knieriem/tinygo-emac/internal/volatile"
)

// Number of 1 ms delays to wait for self-clearing reset and flush bits.
const resetPolls = 100

// Interrupts enabled while running.
const interruptMask = DMASR_NIS | DMASR_AIS | DMASR_RS | DMASR_TS |
	DMASR_RBU | DMASR_ROS | DMASR_TUS | DMASR_FBE | DMASR_TJT | DMASR_RWT

// Emac drives one DWMAC peripheral: its DMA engine, MAC configuration,
// interrupt status and wakers.
//
// Emac does not lock. Use it through a Driver if an interrupt handler
// calls HandleInterrupt concurrently with foreground code.
type Emac struct {
	regs         Registers
	cfg          Config
	engine       Engine
	mdio         MDIO
	state        State
	initialized  bool
	fatal        bool
	link         Link
	linkSettings Link // speed and duplex programmed into MACCR
	status       InterruptStatus
	errStatus    InterruptStatus // latest status with an error
	errSeq       uint32          // incremented with each error status
	loggedSeq    uint32          // errSeq at the latest reportErrors
	mcHash       uint64
	wakers       Wakers
}

// Init resets the peripheral and applies cfg. The configuration is
// validated before any register is written. Init may be repeated while
// the Emac is not running, e.g. to recover from a fatal bus error.
func (m *Emac) Init(regs Registers, cfg Config) error {
	if m.state == StateRunning {
		return ErrInvalidState
	}
	if regs.MAC == nil || regs.DMA == nil {
		return fmt.Errorf("%w: missing register block", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cr, _ := mdcClockRange(cfg.HCLK)

	m.initialized = false
	m.regs = regs
	m.cfg = cfg
	m.link = Link{}
	dma := regs.DMA
	mac := regs.MAC

	dma.DMABMR.SetBits(DMABMR_SWR)
	if err := m.waitClear(&dma.DMABMR, DMABMR_SWR); err != nil {
		return fmt.Errorf("dma soft reset: %w", err)
	}
	dma.DMABMR.Set(DMABMR_AAB | DMABMR_FB | DMABMR_EDFE | 32<<DMABMR_PBL_Pos)
	dma.DMAOMR.Set(DMAOMR_RSF | DMAOMR_TSF | DMAOMR_OSF)

	m.setHardwareAddr(cfg.HardwareAddr)
	var maccr uint32
	if cfg.Checksum != ChecksumNone {
		maccr |= MACCR_IPCO
	}
	mac.MACCR.Set(maccr)
	m.applyLink(Link{Up: true, Speed: cfg.Speed, Duplex: cfg.Duplex})
	m.applyFilter()

	m.mdio = MDIO{mac: mac, cr: cr}
	m.mdio.SetBusyWait(func() error {
		m.cfg.delay(time.Millisecond)
		return nil
	})

	if err := m.engine.Init(dma, cfg.Buffers); err != nil {
		return err
	}
	m.engine.SetChecksumMode(cfg.Checksum)

	dma.DMAIER.Set(0)
	dma.DMASR.Set(StatusMask)
	m.status = InterruptStatus{}
	m.fatal = false
	m.initialized = true
	logInfo(ComponentMAC, "initialized", "addr", hwAddrString(cfg.HardwareAddr))
	return nil
}

// Start arms both rings and enables the transmit and receive state
// machines.
func (m *Emac) Start() error {
	if !m.initialized {
		return ErrNotInitialized
	}
	if !canTransition(m.state, StateRunning) {
		return ErrInvalidState
	}
	dma := m.regs.DMA
	mac := m.regs.MAC

	m.engine.Reset()
	mac.MACCR.SetBits(MACCR_TE)
	dma.DMAOMR.SetBits(DMAOMR_FTF)
	if err := m.waitClear(&dma.DMAOMR, DMAOMR_FTF); err != nil {
		return fmt.Errorf("flush tx fifo: %w", err)
	}
	dma.DMAOMR.SetBits(DMAOMR_ST)
	mac.MACCR.SetBits(MACCR_RE)
	dma.DMAOMR.SetBits(DMAOMR_SR)

	dma.DMASR.Set(StatusMask)
	dma.DMAIER.Set(interruptMask)
	m.fatal = false
	m.setState(StateRunning)
	return nil
}

// Stop disables the transmit and receive state machines. Waiters are
// woken so that they can observe the state change.
func (m *Emac) Stop() error {
	if m.state != StateRunning {
		return ErrNotRunning
	}
	dma := m.regs.DMA
	mac := m.regs.MAC

	dma.DMAIER.Set(0)
	dma.DMAOMR.ClearBits(DMAOMR_ST)
	mac.MACCR.ClearBits(MACCR_RE)
	dma.DMAOMR.ClearBits(DMAOMR_SR)
	mac.MACCR.ClearBits(MACCR_TE)
	m.setState(StateStopped)
	m.wakers.wakeAll()
	return nil
}

func (m *Emac) State() State { return m.state }

func (m *Emac) setState(s State) {
	logInfo(ComponentMAC, "state", "from", m.state.String(), "to", s.String())
	m.state = s
}

// usable returns the error that keeps the data path from being used.
func (m *Emac) usable() error {
	switch {
	case !m.initialized:
		return ErrNotInitialized
	case m.state != StateRunning:
		return ErrNotRunning
	case m.fatal:
		return ErrFatalBus
	}
	return nil
}

// Transmit queues one frame; see Engine.Transmit.
func (m *Emac) Transmit(data []byte) (int, error) {
	m.reportErrors()
	if err := m.usable(); err != nil {
		return 0, err
	}
	return m.engine.Transmit(data)
}

// Receive copies the next frame into buf; see Engine.Receive.
func (m *Emac) Receive(buf []byte) (int, error) {
	m.reportErrors()
	if err := m.usable(); err != nil {
		return 0, err
	}
	return m.engine.Receive(buf)
}

func (m *Emac) CanTransmit(n int) bool {
	return m.usable() == nil && m.engine.CanTransmit(n)
}

func (m *Emac) TxAvailable() int {
	if m.usable() != nil {
		return 0
	}
	return m.engine.TxAvailable()
}

func (m *Emac) RxAvailable() bool {
	return m.usable() == nil && m.engine.RxAvailable()
}

func (m *Emac) PeekFrameLength() (int, bool) {
	if m.usable() != nil {
		return 0, false
	}
	return m.engine.PeekFrameLength()
}

func (m *Emac) RxFrameCount() int {
	if m.usable() != nil {
		return 0
	}
	return m.engine.RxFrameCount()
}

// HandleInterrupt reads the DMA status register and acknowledges exactly
// the bits it has seen, then wakes the waiters interested in them. It
// must be called with interrupts masked, which is the case inside an
// interrupt handler.
func (m *Emac) HandleInterrupt() (InterruptStatus, error) {
	if m.state != StateRunning {
		return InterruptStatus{}, ErrNotRunning
	}
	dma := m.regs.DMA
	s := StatusFromRaw(dma.DMASR.Get())
	if !s.Any() {
		return s, nil
	}
	dma.DMASR.Set(s.ToRaw())
	m.status = s

	if s.HasError() {
		m.errStatus = s
		m.errSeq++
		if s.FatalBusError {
			m.fatal = true
		}
	}
	m.wakers.dispatch(s)
	return s, nil
}

// reportErrors logs the error status recorded by HandleInterrupt since
// the previous report. HandleInterrupt itself must not allocate, so
// this runs in foreground code.
func (m *Emac) reportErrors() {
	if m.errSeq == m.loggedSeq {
		return
	}
	missed := m.errSeq - m.loggedSeq - 1
	m.loggedSeq = m.errSeq
	s := m.errStatus
	switch {
	case s.FatalBusError:
		if logEnabled(slog.LevelError) {
			logError(ComponentIRQ, "fatal bus error", "status", s.String())
		}
	case logEnabled(slog.LevelWarn):
		logWarn(ComponentIRQ, "dma error", "status", s.String(), "missed", missed)
	}
}

// LastStatus returns the status decoded by the latest HandleInterrupt
// call that saw any bit set.
func (m *Emac) LastStatus() InterruptStatus { return m.status }

// Wakers returns the wakers fired by HandleInterrupt.
func (m *Emac) Wakers() *Wakers { return &m.wakers }

// UpdateLink polls the PHY and applies a changed speed and duplex to
// the MAC.
func (m *Emac) UpdateLink() (Link, error) {
	if !m.initialized {
		return Link{}, ErrNotInitialized
	}
	if m.cfg.PHY == nil {
		return Link{}, fmt.Errorf("%w: no PHY", ErrInvalidConfig)
	}
	l, changed, err := m.cfg.PHY.PollLink()
	if err != nil {
		return m.link, err
	}
	if changed || l != m.link {
		if l.Up {
			logInfo(ComponentLink, "link up", "speed", l.Speed.String(), "duplex", l.Duplex.String())
			m.applyLink(l)
		} else {
			logInfo(ComponentLink, "link down")
		}
	}
	m.link = l
	return l, nil
}

// WaitLink polls the PHY until the link is up or the configured timeout
// expires.
func (m *Emac) WaitLink() (Link, error) {
	var waited time.Duration
	for {
		l, err := m.UpdateLink()
		if err != nil || l.Up {
			return l, err
		}
		if waited >= m.cfg.LinkTimeout {
			return l, fmt.Errorf("link: %w", ErrTimeout)
		}
		m.cfg.delay(m.cfg.LinkPollInterval)
		waited += m.cfg.LinkPollInterval
	}
}

// Link returns the link state observed by the latest UpdateLink.
func (m *Emac) Link() Link { return m.link }

func (m *Emac) applyLink(l Link) {
	var bits uint32
	if l.Speed == Speed100 {
		bits |= MACCR_FES
	}
	if l.Duplex == FullDuplex {
		bits |= MACCR_DM
	}
	m.regs.MAC.MACCR.ReplaceBits(bits, MACCR_FES|MACCR_DM, 0)
	m.linkSettings = l
	m.applyFlowControl()
}

func (m *Emac) duplex() Duplex { return m.linkSettings.Duplex }

func (m *Emac) HardwareAddr() [6]byte { return m.cfg.HardwareAddr }

func (m *Emac) setHardwareAddr(addr [6]byte) {
	mac := m.regs.MAC
	mac.MACA0HR.Set(MACA0HR_MO | uint32(addr[5])<<8 | uint32(addr[4]))
	mac.MACA0LR.Set(uint32(addr[3])<<24 | uint32(addr[2])<<16 | uint32(addr[1])<<8 | uint32(addr[0]))
}

// MDIO returns the management interface, for use by a PHY driver.
func (m *Emac) MDIO() *MDIO { return &m.mdio }

func (m *Emac) Engine() *Engine { return &m.engine }

func (m *Emac) Stats() Stats { return m.engine.Stats() }

func (m *Emac) Config() Config { return m.cfg }

// waitClear waits for the hardware to clear a self-clearing bit.
func (m *Emac) waitClear(r *volatile.Register32, bit uint32) error {
	for i := 0; r.HasBits(bit); i++ {
		if i == resetPolls {
			return ErrTimeout
		}
		m.cfg.delay(time.Millisecond)
	}
	return nil
}
