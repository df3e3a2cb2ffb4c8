// Package lan8742a drives the Microchip LAN8742A RMII PHY through an
// MDIO interface, as found on STM32 Nucleo-144 boards.
package lan8742a

import (
	"errors"

	"github.com/knieriem/tinygo-emac/emac"
)

const (
	regBCR  = 0  // Basic Control Register
	regBSR  = 1  // Basic Status Register
	regID1  = 2  // PHY Identifier 1
	regSSR  = 31 // Special Control/Status Register
	numAddr = 32

	bcrRESET       = 1 << 15
	bsrLINK_STATUS = 1 << 2

	ssrAUTODONE     = 1 << 12
	ssrHCDSPEEDPos  = 2
	ssrHCDSPEEDMask = 0b111 << 2

	// Number of BCR reads while waiting for a reset to complete.
	resetPolls = 500
)

type MDIO interface {
	ReadReg(phyAddr, regAddr uint8) (uint16, error)
	WriteReg(phyAddr, regAddr uint8, value uint16) error
}

// PHY implements emac.PHY.
type PHY struct {
	Addr     uint8
	MDIO     MDIO
	BusyWait func()

	last   emac.Link
	polled bool
}

var (
	ErrNotFound     = errors.New("phy not found")
	ErrResetTimeout = errors.New("phy reset timeout")
)

// Detect scans the bus and sets Addr to the first address a PHY
// responds on.
func (phy *PHY) Detect() error {
	for i := range numAddr {
		id, err := phy.MDIO.ReadReg(uint8(i), regID1)
		if err != nil {
			continue
		}
		if id == 0xFFFF || id == 0 {
			continue
		}
		phy.Addr = uint8(i)
		return nil
	}
	return ErrNotFound
}

// Reset performs a soft reset and waits for the PHY to complete it.
func (phy *PHY) Reset() error {
	if err := phy.MDIO.WriteReg(phy.Addr, regBCR, bcrRESET); err != nil {
		return err
	}
	for range resetPolls {
		bcr, err := phy.MDIO.ReadReg(phy.Addr, regBCR)
		if err == nil && bcr&bcrRESET == 0 {
			phy.polled = false
			return nil
		}
		if phy.BusyWait != nil {
			phy.BusyWait()
		}
	}
	return ErrResetTimeout
}

// LinkStatus reports the link as up once auto-negotiation has resolved
// speed and duplex.
func (phy *PHY) LinkStatus() (emac.Link, error) {
	var l emac.Link

	// The link status bit latches low; the second read returns the
	// current state.
	if _, err := phy.MDIO.ReadReg(phy.Addr, regBSR); err != nil {
		return l, err
	}
	bsr, err := phy.MDIO.ReadReg(phy.Addr, regBSR)
	if err != nil {
		return l, err
	}
	if bsr&bsrLINK_STATUS == 0 {
		return l, nil
	}

	ssr, err := phy.MDIO.ReadReg(phy.Addr, regSSR)
	if err != nil {
		return l, err
	}
	if ssr&ssrAUTODONE == 0 {
		return l, nil
	}

	l.Duplex = emac.FullDuplex
	switch (ssr & ssrHCDSPEEDMask) >> ssrHCDSPEEDPos {
	case 0b001:
		l.Duplex = emac.HalfDuplex
		fallthrough
	case 0b101:
		l.Speed = emac.Speed10
	case 0b010:
		l.Duplex = emac.HalfDuplex
		fallthrough
	case 0b110:
		l.Speed = emac.Speed100
	default:
		return emac.Link{}, nil
	}
	l.Up = true
	return l, nil
}

// PollLink is LinkStatus, additionally reporting whether the result
// differs from the previous call.
func (phy *PHY) PollLink() (emac.Link, bool, error) {
	l, err := phy.LinkStatus()
	if err != nil {
		return l, false, err
	}
	changed := !phy.polled || l != phy.last
	phy.last = l
	phy.polled = true
	return l, changed, nil
}
