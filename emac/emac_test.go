package emac_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knieriem/tinygo-emac/emac"
	"github.com/knieriem/tinygo-emac/emac/dmasim"
)

type regSnapshot struct {
	mac emac.MACRegs
	dma emac.DMARegs
}

func snapshot(sim *dmasim.Sim) regSnapshot {
	return regSnapshot{mac: sim.MAC, dma: sim.DMA}
}

func TestEmac_Init(t *testing.T) {
	m, sim := newTestEmac(t, 4, 4, 128)

	assert.Equal(t, emac.StateRunning, m.State())
	assert.EqualValues(t, emac.MACCR_TE|emac.MACCR_RE|emac.MACCR_FES|emac.MACCR_DM, sim.MAC.MACCR.Get())
	assert.True(t, sim.DMA.DMAOMR.HasBits(emac.DMAOMR_ST))
	assert.True(t, sim.DMA.DMAOMR.HasBits(emac.DMAOMR_SR))
	assert.False(t, sim.DMA.DMABMR.HasBits(emac.DMABMR_SWR))
	assert.Zero(t, sim.Status())

	assert.EqualValues(t, emac.MACA0HR_MO|0x01<<8|0x00, sim.MAC.MACA0HR.Get())
	assert.EqualValues(t, 0x00e18002, sim.MAC.MACA0LR.Get())
	assert.Equal(t, testHWAddr, m.HardwareAddr())

	assert.Equal(t, m.Engine().RxRing().BaseAddr(), sim.DMA.DMARDLAR.Get())
	assert.Equal(t, m.Engine().TxRing().BaseAddr(), sim.DMA.DMATDLAR.Get())
}

func TestEmac_InvalidConfigWritesNothing(t *testing.T) {
	b := testBuffers(2, 2, 64)
	sim := dmasim.New(b)
	cfg := testConfig(b, sim)
	cfg.HCLK = 10_000_000
	before := snapshot(sim)

	var m emac.Emac
	err := m.Init(sim.Regs(), cfg)
	assert.ErrorIs(t, err, emac.ErrInvalidClock)
	assert.Equal(t, before, snapshot(sim))
	assert.Equal(t, emac.StateUninitialized, m.State())
}

func TestEmac_NotInitialized(t *testing.T) {
	var m emac.Emac

	assert.ErrorIs(t, m.Start(), emac.ErrNotInitialized)
	assert.ErrorIs(t, m.Stop(), emac.ErrNotRunning)
	_, err := m.Transmit(testFrame(10))
	assert.ErrorIs(t, err, emac.ErrNotInitialized)
	_, err = m.Receive(make([]byte, 10))
	assert.ErrorIs(t, err, emac.ErrNotInitialized)
	_, err = m.HandleInterrupt()
	assert.ErrorIs(t, err, emac.ErrNotRunning)
	assert.ErrorIs(t, m.SetFilter(emac.Filter{}), emac.ErrNotInitialized)
	assert.Equal(t, 0, m.TxAvailable())
}

func TestEmac_StoppedRejectsDataPath(t *testing.T) {
	m, sim := newTestEmac(t, 2, 2, 64)
	require.NoError(t, m.Stop())
	assert.Equal(t, emac.StateStopped, m.State())
	assert.False(t, sim.DMA.DMAOMR.HasBits(emac.DMAOMR_ST))
	assert.False(t, sim.MAC.MACCR.HasBits(emac.MACCR_RE))

	before := snapshot(sim)
	txStatus := m.Engine().TxRing().Get(0).Status()

	_, err := m.Transmit(testFrame(10))
	assert.ErrorIs(t, err, emac.ErrNotRunning)
	assert.Equal(t, emac.DomainConfig, emac.ErrorDomain(err))
	_, err = m.Receive(make([]byte, 64))
	assert.ErrorIs(t, err, emac.ErrNotRunning)
	_, err = m.HandleInterrupt()
	assert.ErrorIs(t, err, emac.ErrNotRunning)
	assert.False(t, m.CanTransmit(10))

	assert.Equal(t, before, snapshot(sim), "no register written")
	assert.Equal(t, txStatus, m.Engine().TxRing().Get(0).Status())
}

func TestEmac_Transitions(t *testing.T) {
	m, sim := newTestEmac(t, 2, 2, 64)

	assert.ErrorIs(t, m.Start(), emac.ErrInvalidState)
	assert.ErrorIs(t, m.Init(sim.Regs(), m.Config()), emac.ErrInvalidState)

	_, err := m.Transmit(testFrame(10))
	require.NoError(t, err)
	require.True(t, sim.Deliver(testFrame(20)))

	require.NoError(t, m.Stop())
	assert.ErrorIs(t, m.Stop(), emac.ErrNotRunning)
	assert.False(t, sim.Deliver(testFrame(20)), "reception stopped")

	// Restarting discards pending frames and rewinds both rings.
	require.NoError(t, m.Start())
	assert.Equal(t, 0, m.Engine().TxRing().Index())
	assert.Equal(t, 2, m.TxAvailable())
	assert.Equal(t, 0, m.RxFrameCount())
	assert.Equal(t, 0, sim.ProcessTx())

	require.True(t, sim.Deliver(testFrame(20)))
	n, err := m.Receive(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestEmac_HandleInterrupt(t *testing.T) {
	m, sim := newTestEmac(t, 2, 2, 64)

	s, err := sim.Interrupt(m.HandleInterrupt)
	require.NoError(t, err)
	assert.False(t, s.Any())

	sig := emac.NewSignal()
	m.Wakers().RX.Register(sig)

	require.True(t, sim.Deliver(testFrame(20)))
	s, err = sim.Interrupt(m.HandleInterrupt)
	require.NoError(t, err)
	assert.True(t, s.RxComplete)
	assert.True(t, s.NormalSummary)
	assert.False(t, s.TxComplete)
	assert.Equal(t, s, m.LastStatus())
	assert.Zero(t, sim.Status(), "acknowledged bits cleared")
	assert.Len(t, sig, 1, "rx waker woken")

	// A later empty status does not replace the cached one.
	_, err = sim.Interrupt(m.HandleInterrupt)
	require.NoError(t, err)
	assert.True(t, m.LastStatus().RxComplete)
}

func TestEmac_HandleInterruptDirect(t *testing.T) {
	m, sim := newTestEmac(t, 2, 2, 64)

	require.True(t, sim.Deliver(testFrame(20)))
	require.NotZero(t, sim.Status())
	s, err := m.HandleInterrupt()
	require.NoError(t, err)
	assert.True(t, s.RxComplete)
	assert.Zero(t, sim.Status(), "acknowledged bits cleared")

	// Acknowledging the complete pending set is seen as well.
	sim.Raise(emac.DMASR_RS)
	sim.Raise(emac.DMASR_RS)
	_, err = m.HandleInterrupt()
	require.NoError(t, err)
	assert.Zero(t, sim.Status())
}

func TestEmac_ErrorsLoggedOutsideInterrupt(t *testing.T) {
	log := captureLog(t, slog.LevelWarn)
	m, sim := newTestEmac(t, 2, 2, 64)

	allocs := testing.AllocsPerRun(4, func() {
		sim.Raise(emac.DMASR_ROS)
		m.HandleInterrupt()
	})
	assert.Zero(t, allocs)
	assert.Empty(t, log.String(), "nothing logged while handling interrupts")

	_, err := m.Receive(make([]byte, 64))
	assert.ErrorIs(t, err, emac.ErrIncompleteFrame)
	assert.Contains(t, log.String(), "dma error")
	assert.Contains(t, log.String(), "missed=4")

	log.Reset()
	_, err = m.Receive(make([]byte, 64))
	assert.ErrorIs(t, err, emac.ErrIncompleteFrame)
	assert.Empty(t, log.String(), "reported once")

	sim.Raise(emac.DMASR_FBE)
	_, err = sim.Interrupt(m.HandleInterrupt)
	require.NoError(t, err)
	assert.Empty(t, log.String())
	_, err = m.Transmit(testFrame(10))
	assert.ErrorIs(t, err, emac.ErrFatalBus)
	assert.Contains(t, log.String(), "fatal bus error")
}

func TestEmac_FatalBusError(t *testing.T) {
	m, sim := newTestEmac(t, 2, 2, 64)

	sim.Raise(emac.DMASR_FBE)
	s, err := sim.Interrupt(m.HandleInterrupt)
	require.NoError(t, err)
	assert.True(t, s.FatalBusError)
	assert.True(t, s.AbnormalSummary)

	_, err = m.Transmit(testFrame(10))
	assert.ErrorIs(t, err, emac.ErrFatalBus)

	require.NoError(t, m.Stop())
	require.NoError(t, m.Init(sim.Regs(), m.Config()))
	require.NoError(t, m.Start())
	_, err = m.Transmit(testFrame(10))
	assert.NoError(t, err)
}

func TestEmac_Link(t *testing.T) {
	m, sim := newTestEmac(t, 2, 2, 64)

	l, err := m.UpdateLink()
	require.NoError(t, err)
	assert.False(t, l.Up)

	sim.PHY.SetLink(emac.Link{Up: true, Speed: emac.Speed10, Duplex: emac.HalfDuplex})
	l, err = m.WaitLink()
	require.NoError(t, err)
	assert.Equal(t, emac.Link{Up: true, Speed: emac.Speed10, Duplex: emac.HalfDuplex}, l)
	assert.Equal(t, l, m.Link())
	assert.False(t, sim.MAC.MACCR.HasBits(emac.MACCR_FES))
	assert.False(t, sim.MAC.MACCR.HasBits(emac.MACCR_DM))
	assert.Zero(t, sim.MAC.MACFCR.Get(), "no pause frames in half duplex")

	sim.PHY.SetLink(emac.Link{Up: true, Speed: emac.Speed100, Duplex: emac.FullDuplex})
	_, err = m.UpdateLink()
	require.NoError(t, err)
	assert.EqualValues(t, emac.MACCR_TE|emac.MACCR_RE|emac.MACCR_FES|emac.MACCR_DM, sim.MAC.MACCR.Get(),
		"enable bits kept")
}

func TestEmac_WaitLinkTimeout(t *testing.T) {
	m, _ := newTestEmac(t, 2, 2, 64)

	_, err := m.WaitLink()
	assert.ErrorIs(t, err, emac.ErrTimeout)
}

func TestEmac_Filter(t *testing.T) {
	m, sim := newTestEmac(t, 2, 2, 64)
	mac := &sim.MAC

	require.NoError(t, m.SetFilter(emac.Filter{Promiscuous: true, BlockBroadcast: true}))
	assert.EqualValues(t, emac.MACFFR_PM|emac.MACFFR_BFD, mac.MACFFR.Get())

	require.NoError(t, m.SetFilter(emac.Filter{}))
	require.NoError(t, m.AddMulticast([6]byte{0x01, 0x00, 0x5e, 0x00, 0x00, 0x01}))
	require.NoError(t, m.AddMulticast([6]byte{0x33, 0x33, 0x00, 0x00, 0x00, 0x01}))
	assert.EqualValues(t, emac.MACFFR_HM, mac.MACFFR.Get())
	assert.EqualValues(t, 1, mac.MACHTHR.Get())
	assert.EqualValues(t, 2, mac.MACHTLR.Get())

	require.NoError(t, m.ClearMulticast())
	assert.Zero(t, mac.MACFFR.Get())
	assert.Zero(t, mac.MACHTHR.Get())
}

func TestEmac_FlowControl(t *testing.T) {
	m, sim := newTestEmac(t, 2, 2, 64)

	require.NoError(t, m.SetFlowControl(emac.FlowControl{Enabled: true, PauseTime: 0x200}))
	assert.EqualValues(t, 0x200<<emac.MACFCR_PT_Pos|emac.MACFCR_TFCE|emac.MACFCR_RFCE, sim.MAC.MACFCR.Get())

	require.NoError(t, m.SetFlowControl(emac.FlowControl{}))
	assert.Zero(t, sim.MAC.MACFCR.Get())
}
