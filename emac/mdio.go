package emac

// Number of busy-bit polls before an MDIO transaction times out.
const mdioMaxPolls = 100

// MDIO gives access to PHY registers through the MAC's MII management
// interface.
type MDIO struct {
	mac      *MACRegs
	cr       uint32
	busyWait BusyWaitFunc
}

type BusyWaitFunc func() error

func (md *MDIO) SetBusyWait(wait BusyWaitFunc) {
	md.busyWait = wait
}

func (md *MDIO) ReadReg(phyAddr, regAddr uint8) (uint16, error) {
	if md.mac == nil {
		return 0, ErrNotInitialized
	}
	md.mac.MACMIIAR.Set(md.address(phyAddr, regAddr))
	if err := md.wait(); err != nil {
		return 0, err
	}
	return uint16(md.mac.MACMIIDR.Get() & MACMIIDR_MD_Msk), nil
}

func (md *MDIO) WriteReg(phyAddr, regAddr uint8, data uint16) error {
	if md.mac == nil {
		return ErrNotInitialized
	}
	md.mac.MACMIIDR.Set(uint32(data))
	md.mac.MACMIIAR.Set(md.address(phyAddr, regAddr) | MACMIIAR_MW)
	return md.wait()
}

func (md *MDIO) address(phyAddr, regAddr uint8) uint32 {
	return uint32(phyAddr)<<MACMIIAR_PA_Pos&MACMIIAR_PA_Msk |
		uint32(regAddr)<<MACMIIAR_MR_Pos&MACMIIAR_MR_Msk |
		md.cr<<MACMIIAR_CR_Pos |
		MACMIIAR_MB
}

// wait for the busy bit to clear
func (md *MDIO) wait() error {
	for i := 0; md.mac.MACMIIAR.HasBits(MACMIIAR_MB); i++ {
		if i == mdioMaxPolls {
			return ErrTimeout
		}
		if md.busyWait != nil {
			if err := md.busyWait(); err != nil {
				return err
			}
		}
	}
	return nil
}
