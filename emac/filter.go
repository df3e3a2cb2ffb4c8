package emac

import (
	"hash/crc32"
	"math/bits"
)

// Filter selects which received frames are passed to the DMA.
type Filter struct {
	Promiscuous      bool
	PassAllMulticast bool
	BlockBroadcast   bool
}

// FlowControl configures IEEE 802.3x pause frames. It only takes effect
// on full duplex links.
type FlowControl struct {
	Enabled bool
	// PauseTime is sent in transmitted pause frames, in units of 512
	// bit times.
	PauseTime uint16
}

// SetFilter programs the receive frame filter.
func (m *Emac) SetFilter(f Filter) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	m.cfg.Filter = f
	m.applyFilter()
	return nil
}

// AddMulticast makes the hash filter accept frames sent to addr.
// Other addresses sharing the same hash bucket pass as well.
func (m *Emac) AddMulticast(addr [6]byte) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	m.mcHash |= 1 << multicastHash(addr)
	m.applyFilter()
	return nil
}

// ClearMulticast empties the multicast hash filter.
func (m *Emac) ClearMulticast() error {
	if !m.initialized {
		return ErrNotInitialized
	}
	m.mcHash = 0
	m.applyFilter()
	return nil
}

func (m *Emac) applyFilter() {
	mac := m.regs.MAC
	f := m.cfg.Filter
	var ffr uint32
	if f.Promiscuous {
		ffr |= MACFFR_PM
	}
	if f.PassAllMulticast {
		ffr |= MACFFR_PAM
	}
	if f.BlockBroadcast {
		ffr |= MACFFR_BFD
	}
	if m.mcHash != 0 {
		ffr |= MACFFR_HM
	}
	mac.MACHTHR.Set(uint32(m.mcHash >> 32))
	mac.MACHTLR.Set(uint32(m.mcHash))
	mac.MACFFR.Set(ffr)
}

// multicastHash returns the index of addr in the 64-bit hash table: the
// upper six bits of the bit-reversed CRC-32 of the address.
func multicastHash(addr [6]byte) uint {
	return uint(bits.Reverse32(crc32.ChecksumIEEE(addr[:])) >> 26)
}

// SetFlowControl configures pause frame handling.
func (m *Emac) SetFlowControl(fc FlowControl) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	m.cfg.FlowControl = fc
	m.applyFlowControl()
	return nil
}

func (m *Emac) applyFlowControl() {
	fc := m.cfg.FlowControl
	if !fc.Enabled || m.duplex() != FullDuplex {
		m.regs.MAC.MACFCR.Set(0)
		return
	}
	m.regs.MAC.MACFCR.Set(uint32(fc.PauseTime)<<MACFCR_PT_Pos | MACFCR_TFCE | MACFCR_RFCE)
}
