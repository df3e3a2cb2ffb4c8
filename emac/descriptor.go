package emac

import (
	"strings"
	"unsafe"

	"github.com/knieriem/tinygo-emac/internal/volatile"
)

// CRCLength is the length of the frame check sequence that the hardware
// includes in the received frame length.
const CRCLength = 4

// DescriptorSize is the size of an (enhanced, alternate size) descriptor
// in bytes.
const DescriptorSize = 32

// Largest buffer size that fits into the RBS1/TBS1 fields.
const MaxBufferSize = 1<<13 - 1

// RX descriptor word 0: status
const (
	RDES0_OWN = 1 << 31
	RDES0_AFM = 1 << 30 // destination address filter fail
	RDES0_ES  = 1 << 15 // error summary
	RDES0_DE  = 1 << 14 // descriptor error
	RDES0_SAF = 1 << 13 // source address filter fail
	RDES0_LE  = 1 << 12 // length error
	RDES0_OE  = 1 << 11 // overflow error
	RDES0_VLT = 1 << 10 // VLAN tag
	RDES0_FS  = 1 << 9  // first descriptor
	RDES0_LS  = 1 << 8  // last descriptor
	RDES0_IPE = 1 << 7  // IP header checksum error / timestamp valid
	RDES0_LC  = 1 << 6  // late collision
	RDES0_FT  = 1 << 5  // frame type
	RDES0_RWT = 1 << 4  // receive watchdog timeout
	RDES0_RE  = 1 << 3  // receive error
	RDES0_DBE = 1 << 2  // dribble bit error
	RDES0_CE  = 1 << 1  // CRC error
	RDES0_PCE = 1 << 0  // payload checksum error / extended status available

	RDES0_FL_Pos = 16
	RDES0_FL_Msk = 0x3fff << RDES0_FL_Pos
)

// RX descriptor word 1: control
const (
	RDES1_DIC      = 1 << 31 // disable interrupt on completion
	RDES1_RER      = 1 << 15 // receive end of ring
	RDES1_RCH      = 1 << 14 // second address chained
	RDES1_RBS1_Msk = MaxBufferSize
	RDES1_RBS2_Pos = 16
)

// TX descriptor word 0: status and control
const (
	TDES0_OWN  = 1 << 31
	TDES0_IC   = 1 << 30 // interrupt on completion
	TDES0_LS   = 1 << 29 // last segment
	TDES0_FS   = 1 << 28 // first segment
	TDES0_DC   = 1 << 27 // disable CRC
	TDES0_DP   = 1 << 26 // disable pad
	TDES0_TTSE = 1 << 25 // transmit timestamp enable
	TDES0_TER  = 1 << 21 // transmit end of ring
	TDES0_TCH  = 1 << 20 // second address chained
	TDES0_TTSS = 1 << 17 // transmit timestamp status
	TDES0_IHE  = 1 << 16 // IP header error
	TDES0_ES   = 1 << 15 // error summary
	TDES0_JT   = 1 << 14 // jabber timeout
	TDES0_FF   = 1 << 13 // frame flushed
	TDES0_IPE  = 1 << 12 // IP payload error
	TDES0_LCA  = 1 << 11 // loss of carrier
	TDES0_NC   = 1 << 10 // no carrier
	TDES0_LCO  = 1 << 9  // late collision
	TDES0_EC   = 1 << 8  // excessive collision
	TDES0_VF   = 1 << 7  // VLAN frame
	TDES0_ED   = 1 << 2  // excessive deferral
	TDES0_UF   = 1 << 1  // underflow error
	TDES0_DB   = 1 << 0  // deferred bit

	TDES0_CIC_Pos = 22
	TDES0_CIC_Msk = 0b11 << TDES0_CIC_Pos
	TDES0_CC_Pos  = 3
	TDES0_CC_Msk  = 0b1111 << TDES0_CC_Pos

	// bits kept when a descriptor is reused
	tdes0LinkMsk = TDES0_TCH | TDES0_TER
)

// TX descriptor word 1
const (
	TDES1_TBS1_Msk = MaxBufferSize
	TDES1_TBS2_Pos = 16
)

// physAddr returns the 32-bit bus address of p. On the 32-bit targets
// this driver runs on it is the pointer value; on 64-bit hosts, where the
// hardware is modelled in software, the low 32 bits are unique within an
// arena and suffice to identify descriptors and buffers.
func physAddr(p unsafe.Pointer) uint32 {
	return uint32(uintptr(p))
}

// RxDescriptor is a receive DMA descriptor in chained mode.
type RxDescriptor struct {
	rdes0 volatile.Register32 // status
	rdes1 volatile.Register32 // control, buffer sizes
	rdes2 volatile.Register32 // buffer 1 address
	rdes3 volatile.Register32 // next descriptor address
	rdes4 volatile.Register32 // extended status
	_     uint32
	rdes6 volatile.Register32 // timestamp low
	rdes7 volatile.Register32 // timestamp high
}

func (d *RxDescriptor) setupChained(buf []byte, next *RxDescriptor) {
	d.rdes0.Set(0)
	d.rdes1.Set(RDES1_RCH | uint32(len(buf))&RDES1_RBS1_Msk)
	d.rdes2.Set(physAddr(unsafe.Pointer(&buf[0])))
	d.rdes3.Set(physAddr(unsafe.Pointer(next)))
	d.rdes4.Set(0)
	d.rdes6.Set(0)
	d.rdes7.Set(0)
}

// setupEndOfRing is setupChained for the last descriptor of a ring,
// which additionally carries the end-of-ring flag.
func (d *RxDescriptor) setupEndOfRing(buf []byte, first *RxDescriptor) {
	d.setupChained(buf, first)
	d.rdes1.SetBits(RDES1_RER)
}

func (d *RxDescriptor) IsOwned() bool { return d.rdes0.HasBits(RDES0_OWN) }
func (d *RxDescriptor) SetOwned() { d.rdes0.SetBits(RDES0_OWN) }
func (d *RxDescriptor) ClearOwned() { d.rdes0.ClearBits(RDES0_OWN) }

// The following accessors are only meaningful while the descriptor is
// owned by software.

func (d *RxDescriptor) IsFirst() bool { return d.rdes0.HasBits(RDES0_FS) }
func (d *RxDescriptor) IsLast() bool { return d.rdes0.HasBits(RDES0_LS) }
func (d *RxDescriptor) HasError() bool { return d.rdes0.HasBits(RDES0_ES) }

// ErrorFlags returns the error bits of the status word.
func (d *RxDescriptor) ErrorFlags() RxErrorFlags {
	return RxErrorFlags(d.rdes0.Get() & uint32(rxErrorMsk))
}

// FrameLength returns the length of the received frame including the
// CRC. It is valid in the last descriptor of a frame.
func (d *RxDescriptor) FrameLength() int {
	return int(d.rdes0.Get()&RDES0_FL_Msk) >> RDES0_FL_Pos
}

// PayloadLength returns the frame length without the CRC.
func (d *RxDescriptor) PayloadLength() int {
	return max(d.FrameLength()-CRCLength, 0)
}

func (d *RxDescriptor) BufferSize() int {
	return int(d.rdes1.Get() & RDES1_RBS1_Msk)
}

// Timestamp returns the IEEE 1588 timestamp words.
func (d *RxDescriptor) Timestamp() (sec, nsec uint32) {
	return d.rdes7.Get(), d.rdes6.Get()
}

// Recycle returns a consumed descriptor to the DMA. Buffer and link
// addresses are kept.
func (d *RxDescriptor) Recycle() {
	d.rdes4.Set(0)
	d.rdes0.Set(RDES0_OWN)
}

// Reset clears the status, leaving the descriptor owned by software.
func (d *RxDescriptor) Reset() {
	d.rdes4.Set(0)
	d.rdes0.Set(0)
}

// Raw word access, for diagnostics and for models of the DMA.

func (d *RxDescriptor) Status() uint32 { return d.rdes0.Get() }
func (d *RxDescriptor) SetStatus(v uint32) { d.rdes0.Set(v) }
func (d *RxDescriptor) Control() uint32 { return d.rdes1.Get() }
func (d *RxDescriptor) BufferAddr() uint32 { return d.rdes2.Get() }
func (d *RxDescriptor) NextAddr() uint32 { return d.rdes3.Get() }
func (d *RxDescriptor) SetTimestamp(sec, nsec uint32) {
	d.rdes6.Set(nsec)
	d.rdes7.Set(sec)
}

// TxDescriptor is a transmit DMA descriptor in chained mode.
type TxDescriptor struct {
	tdes0 volatile.Register32 // status, control
	tdes1 volatile.Register32 // buffer sizes
	tdes2 volatile.Register32 // buffer 1 address
	tdes3 volatile.Register32 // next descriptor address
	_     [2]uint32
	tdes6 volatile.Register32 // timestamp low
	tdes7 volatile.Register32 // timestamp high
}

func (d *TxDescriptor) setupChained(buf []byte, next *TxDescriptor) {
	d.tdes0.Set(TDES0_TCH)
	d.tdes1.Set(0)
	d.tdes2.Set(physAddr(unsafe.Pointer(&buf[0])))
	d.tdes3.Set(physAddr(unsafe.Pointer(next)))
	d.tdes6.Set(0)
	d.tdes7.Set(0)
}

func (d *TxDescriptor) setupEndOfRing(buf []byte, first *TxDescriptor) {
	d.setupChained(buf, first)
	d.tdes0.SetBits(TDES0_TER)
}

// prepare fills in length and segment flags of a software-owned
// descriptor. ctrl holds flags common to all segments, like the checksum
// insertion mode.
func (d *TxDescriptor) prepare(n int, first, last bool, ctrl uint32) {
	w := d.tdes0.Get()&tdes0LinkMsk | ctrl
	if first {
		w |= TDES0_FS
	}
	if last {
		w |= TDES0_LS | TDES0_IC
	}
	d.tdes1.Set(uint32(n) & TDES1_TBS1_Msk)
	d.tdes0.Set(w)
}

func (d *TxDescriptor) IsOwned() bool { return d.tdes0.HasBits(TDES0_OWN) }
func (d *TxDescriptor) SetOwned() { d.tdes0.SetBits(TDES0_OWN) }
func (d *TxDescriptor) ClearOwned() { d.tdes0.ClearBits(TDES0_OWN) }

func (d *TxDescriptor) IsFirst() bool { return d.tdes0.HasBits(TDES0_FS) }
func (d *TxDescriptor) IsLast() bool { return d.tdes0.HasBits(TDES0_LS) }
func (d *TxDescriptor) HasError() bool { return d.tdes0.HasBits(TDES0_ES) }

func (d *TxDescriptor) ErrorFlags() TxErrorFlags {
	return TxErrorFlags(d.tdes0.Get() & uint32(txErrorMsk))
}

// BufferSize returns the number of bytes to be sent from the buffer.
func (d *TxDescriptor) BufferSize() int {
	return int(d.tdes1.Get() & TDES1_TBS1_Msk)
}

func (d *TxDescriptor) Timestamp() (sec, nsec uint32) {
	return d.tdes7.Get(), d.tdes6.Get()
}

// Recycle clears segment flags and completion status, keeping the ring
// linkage. The descriptor stays owned by software until it is prepared
// again.
func (d *TxDescriptor) Recycle() {
	d.tdes1.Set(0)
	d.tdes0.Set(d.tdes0.Get() & tdes0LinkMsk)
}

// Reset is an alias of Recycle; a TX descriptor at rest is owned by
// software.
func (d *TxDescriptor) Reset() { d.Recycle() }

func (d *TxDescriptor) Status() uint32 { return d.tdes0.Get() }
func (d *TxDescriptor) SetStatus(v uint32) { d.tdes0.Set(v) }
func (d *TxDescriptor) Control() uint32 { return d.tdes1.Get() }
func (d *TxDescriptor) BufferAddr() uint32 { return d.tdes2.Get() }
func (d *TxDescriptor) NextAddr() uint32 { return d.tdes3.Get() }
func (d *TxDescriptor) SetTimestamp(sec, nsec uint32) {
	d.tdes6.Set(nsec)
	d.tdes7.Set(sec)
}

// RxErrorFlags are the error bits of RDES0.
type RxErrorFlags uint32

const rxErrorMsk = RDES0_DE | RDES0_SAF | RDES0_LE | RDES0_OE | RDES0_LC |
	RDES0_RWT | RDES0_RE | RDES0_DBE | RDES0_CE | RDES0_AFM

var rxErrorNames = []flagName{
	{RDES0_AFM, "address-filter"},
	{RDES0_DE, "descriptor"},
	{RDES0_SAF, "source-filter"},
	{RDES0_LE, "length"},
	{RDES0_OE, "overflow"},
	{RDES0_LC, "late-collision"},
	{RDES0_RWT, "watchdog"},
	{RDES0_RE, "receive"},
	{RDES0_DBE, "dribble"},
	{RDES0_CE, "crc"},
}

func (f RxErrorFlags) String() string {
	return flagString(uint32(f), rxErrorNames)
}

// TxErrorFlags are the error bits of TDES0.
type TxErrorFlags uint32

const txErrorMsk = TDES0_IHE | TDES0_JT | TDES0_FF | TDES0_IPE | TDES0_LCA |
	TDES0_NC | TDES0_LCO | TDES0_EC | TDES0_ED | TDES0_UF

var txErrorNames = []flagName{
	{TDES0_IHE, "ip-header"},
	{TDES0_JT, "jabber"},
	{TDES0_FF, "flushed"},
	{TDES0_IPE, "ip-payload"},
	{TDES0_LCA, "loss-of-carrier"},
	{TDES0_NC, "no-carrier"},
	{TDES0_LCO, "late-collision"},
	{TDES0_EC, "excessive-collision"},
	{TDES0_ED, "excessive-deferral"},
	{TDES0_UF, "underflow"},
}

func (f TxErrorFlags) String() string {
	return flagString(uint32(f), txErrorNames)
}

type flagName struct {
	bit  uint32
	name string
}

func flagString(v uint32, names []flagName) string {
	if v == 0 {
		return "none"
	}
	var b strings.Builder
	for _, n := range names {
		if v&n.bit == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString(n.name)
	}
	return b.String()
}
