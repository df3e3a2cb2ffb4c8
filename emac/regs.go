package emac

import (
	"unsafe"

	"github.com/knieriem/tinygo-emac/internal/volatile"
)

// MACRegs is the MAC register block of a DWMAC 3.x peripheral.
type MACRegs struct {
	MACCR     volatile.Register32 // 0x00 configuration
	MACFFR    volatile.Register32 // 0x04 frame filter
	MACHTHR   volatile.Register32 // 0x08 hash table high
	MACHTLR   volatile.Register32 // 0x0c hash table low
	MACMIIAR  volatile.Register32 // 0x10 MII address
	MACMIIDR  volatile.Register32 // 0x14 MII data
	MACFCR    volatile.Register32 // 0x18 flow control
	MACVLANTR volatile.Register32 // 0x1c VLAN tag
	_         [2]uint32
	MACRWUFFR volatile.Register32 // 0x28 remote wakeup frame filter
	MACPMTCSR volatile.Register32 // 0x2c PMT control and status
	_         uint32
	MACDBGR   volatile.Register32 // 0x34 debug
	MACSR     volatile.Register32 // 0x38 interrupt status
	MACIMR    volatile.Register32 // 0x3c interrupt mask
	MACA0HR   volatile.Register32 // 0x40 address 0 high
	MACA0LR   volatile.Register32 // 0x44 address 0 low
}

// DMARegs is the DMA register block of a DWMAC 3.x peripheral.
type DMARegs struct {
	DMABMR    volatile.Register32 // 0x00 bus mode
	DMATPDR   volatile.Register32 // 0x04 transmit poll demand
	DMARPDR   volatile.Register32 // 0x08 receive poll demand
	DMARDLAR  volatile.Register32 // 0x0c receive descriptor list address
	DMATDLAR  volatile.Register32 // 0x10 transmit descriptor list address
	DMASR     volatile.Register32 // 0x14 status
	DMAOMR    volatile.Register32 // 0x18 operation mode
	DMAIER    volatile.Register32 // 0x1c interrupt enable
	DMAMFBOCR volatile.Register32 // 0x20 missed frame and buffer overflow counter
	DMARSWTR  volatile.Register32 // 0x24 receive status watchdog timer
	_         [8]uint32
	DMACHTDR  volatile.Register32 // 0x48 current host transmit descriptor
	DMACHRDR  volatile.Register32 // 0x4c current host receive descriptor
	DMACHTBAR volatile.Register32 // 0x50 current host transmit buffer address
	DMACHRBAR volatile.Register32 // 0x54 current host receive buffer address
}

// Registers groups the register blocks used by the driver. On hardware
// they are obtained with MapRegisters; tests use blocks in ordinary
// memory.
type Registers struct {
	MAC *MACRegs
	DMA *DMARegs
}

// Register block base addresses.
const (
	STM32F7MACBase = 0x4002_8000
	STM32F7DMABase = 0x4002_9000
	ESP32MACBase   = 0x3ff6_a000
	ESP32DMABase   = 0x3ff6_9000
)

// MapRegisters returns the register blocks located at the given
// addresses.
func MapRegisters(macBase, dmaBase uintptr) Registers {
	return Registers{
		MAC: (*MACRegs)(unsafe.Pointer(macBase)),
		DMA: (*DMARegs)(unsafe.Pointer(dmaBase)),
	}
}

// MACCR bits.
const (
	MACCR_RE   = 1 << 2
	MACCR_TE   = 1 << 3
	MACCR_DC   = 1 << 4
	MACCR_APCS = 1 << 7
	MACCR_RD   = 1 << 9
	MACCR_IPCO = 1 << 10
	MACCR_DM   = 1 << 11
	MACCR_LM   = 1 << 12
	MACCR_ROD  = 1 << 13
	MACCR_FES  = 1 << 14
	MACCR_CSD  = 1 << 16
	MACCR_JD   = 1 << 22
	MACCR_WD   = 1 << 23
	MACCR_CSTF = 1 << 25
)

// MACFFR bits.
const (
	MACFFR_PM   = 1 << 0 // promiscuous mode
	MACFFR_HU   = 1 << 1
	MACFFR_HM   = 1 << 2
	MACFFR_DAIF = 1 << 3
	MACFFR_PAM  = 1 << 4
	MACFFR_BFD  = 1 << 5
	MACFFR_SAIF = 1 << 8
	MACFFR_SAF  = 1 << 9
	MACFFR_HPF  = 1 << 10
	MACFFR_RA   = 1 << 31

	MACFFR_PCF_Pos = 6
	MACFFR_PCF_Msk = 0b11 << MACFFR_PCF_Pos
)

// MACMIIAR fields.
const (
	MACMIIAR_MB     = 1 << 0
	MACMIIAR_MW     = 1 << 1
	MACMIIAR_CR_Pos = 2
	MACMIIAR_CR_Msk = 0b111 << MACMIIAR_CR_Pos
	MACMIIAR_MR_Pos = 6
	MACMIIAR_MR_Msk = 0b11111 << MACMIIAR_MR_Pos
	MACMIIAR_PA_Pos = 11
	MACMIIAR_PA_Msk = 0b11111 << MACMIIAR_PA_Pos

	MACMIIDR_MD_Msk = 0xffff
)

// MACFCR fields.
const (
	MACFCR_FCBBPA = 1 << 0
	MACFCR_TFCE   = 1 << 1
	MACFCR_RFCE   = 1 << 2
	MACFCR_UPFD   = 1 << 3
	MACFCR_ZQPD   = 1 << 7

	MACFCR_PLT_Pos = 4
	MACFCR_PLT_Msk = 0b11 << MACFCR_PLT_Pos
	MACFCR_PT_Pos  = 16
	MACFCR_PT_Msk  = 0xffff << MACFCR_PT_Pos
)

const MACA0HR_MO = 1 << 31

// DMABMR fields.
const (
	DMABMR_SWR     = 1 << 0
	DMABMR_DA      = 1 << 1
	DMABMR_EDFE    = 1 << 7 // enhanced (alternate size) descriptors
	DMABMR_FB      = 1 << 16
	DMABMR_USP     = 1 << 23
	DMABMR_AAB     = 1 << 25
	DMABMR_PBL_Pos = 8
	DMABMR_PBL_Msk = 0x3f << DMABMR_PBL_Pos
	DMABMR_DSL_Pos = 2
	DMABMR_DSL_Msk = 0x1f << DMABMR_DSL_Pos
)

// DMAOMR bits.
const (
	DMAOMR_SR     = 1 << 1
	DMAOMR_OSF    = 1 << 2
	DMAOMR_ST     = 1 << 13
	DMAOMR_FTF    = 1 << 20
	DMAOMR_TSF    = 1 << 21
	DMAOMR_RSF    = 1 << 25
	DMAOMR_DTCEFD = 1 << 26
)

// DMASR and DMAIER share the layout of the interrupt bits.
const (
	DMASR_TS  = 1 << 0  // transmit
	DMASR_TPS = 1 << 1  // transmit process stopped
	DMASR_TBU = 1 << 2  // transmit buffer unavailable
	DMASR_TJT = 1 << 3  // transmit jabber timeout
	DMASR_ROS = 1 << 4  // receive overflow
	DMASR_TUS = 1 << 5  // transmit underflow
	DMASR_RS  = 1 << 6  // receive
	DMASR_RBU = 1 << 7  // receive buffer unavailable
	DMASR_RPS = 1 << 8  // receive process stopped
	DMASR_RWT = 1 << 9  // receive watchdog timeout
	DMASR_ETS = 1 << 10 // early transmit
	DMASR_FBE = 1 << 13 // fatal bus error
	DMASR_ERS = 1 << 14 // early receive
	DMASR_AIS = 1 << 15 // abnormal interrupt summary
	DMASR_NIS = 1 << 16 // normal interrupt summary
)
