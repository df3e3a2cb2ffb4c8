package dmasim

import (
	"sync"

	"github.com/knieriem/tinygo-emac/emac"
)

// LAN8742A register values after reset.
const (
	phyID1     = 0x0007
	phyID2     = 0xc131
	bsrDefault = 0x7829 // 10/100 abilities, auto-negotiation ability

	bcrReset      = 1 << 15
	bsrLinkStatus = 1 << 2
	bsrANComplete = 1 << 5
	ssrAutoDone   = 1 << 12
)

// PHY models the MDIO registers of a LAN8742A. Addresses other than
// Addr read as all ones, like an empty bus.
type PHY struct {
	Addr uint8

	mu   sync.Mutex
	regs [32]uint16
	link emac.Link
}

func NewPHY(addr uint8) *PHY {
	p := &PHY{Addr: addr}
	p.reset()
	return p
}

func (p *PHY) reset() {
	p.regs = [32]uint16{}
	p.regs[2] = phyID1
	p.regs[3] = phyID2
	p.regs[1] = bsrDefault
	p.applyLink()
}

// SetLink changes the link state reported through the status registers.
func (p *PHY) SetLink(l emac.Link) {
	p.mu.Lock()
	p.link = l
	p.applyLink()
	p.mu.Unlock()
}

func (p *PHY) applyLink() {
	l := p.link
	if !l.Up {
		p.regs[1] &^= bsrLinkStatus | bsrANComplete
		p.regs[31] = 0
		return
	}
	p.regs[1] |= bsrLinkStatus | bsrANComplete

	var speed uint16
	switch {
	case l.Speed == emac.Speed10 && l.Duplex == emac.HalfDuplex:
		speed = 0b001
	case l.Speed == emac.Speed10:
		speed = 0b101
	case l.Duplex == emac.HalfDuplex:
		speed = 0b010
	default:
		speed = 0b110
	}
	p.regs[31] = ssrAutoDone | speed<<2
}

// Reg returns the value of a register.
func (p *PHY) Reg(r uint8) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regs[r&31]
}

func (p *PHY) read(addr, r uint8) uint16 {
	if addr != p.Addr {
		return 0xffff
	}
	return p.Reg(r)
}

func (p *PHY) write(addr, r uint8, v uint16) {
	if addr != p.Addr {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if r == 0 && v&bcrReset != 0 {
		// Reset completes immediately; the bit reads back as zero.
		p.reset()
		return
	}
	switch r {
	case 1, 2, 3, 31:
		// read-only
	default:
		p.regs[r&31] = v
	}
}
