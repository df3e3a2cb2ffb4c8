package emac

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestMACRegs_Layout(t *testing.T) {
	var r MACRegs
	assert.EqualValues(t, 0x10, unsafe.Offsetof(r.MACMIIAR))
	assert.EqualValues(t, 0x18, unsafe.Offsetof(r.MACFCR))
	assert.EqualValues(t, 0x28, unsafe.Offsetof(r.MACRWUFFR))
	assert.EqualValues(t, 0x34, unsafe.Offsetof(r.MACDBGR))
	assert.EqualValues(t, 0x40, unsafe.Offsetof(r.MACA0HR))
	assert.EqualValues(t, 0x44, unsafe.Offsetof(r.MACA0LR))
}

func TestDMARegs_Layout(t *testing.T) {
	var r DMARegs
	assert.EqualValues(t, 0x0c, unsafe.Offsetof(r.DMARDLAR))
	assert.EqualValues(t, 0x14, unsafe.Offsetof(r.DMASR))
	assert.EqualValues(t, 0x1c, unsafe.Offsetof(r.DMAIER))
	assert.EqualValues(t, 0x24, unsafe.Offsetof(r.DMARSWTR))
	assert.EqualValues(t, 0x48, unsafe.Offsetof(r.DMACHTDR))
	assert.EqualValues(t, 0x54, unsafe.Offsetof(r.DMACHRBAR))
}

// Register blocks at fixed addresses, like memory-mapped ones. Under
// -race, converting an address back to a pointer is only accepted for
// package-level storage.
var (
	mappedMAC MACRegs
	mappedDMA DMARegs
)

func TestMapRegisters(t *testing.T) {
	r := MapRegisters(uintptr(unsafe.Pointer(&mappedMAC)), uintptr(unsafe.Pointer(&mappedDMA)))
	assert.Same(t, &mappedMAC, r.MAC)
	assert.Same(t, &mappedDMA, r.DMA)

	r.MAC.MACCR.Set(MACCR_TE)
	r.DMA.DMAOMR.Set(DMAOMR_ST)
	assert.True(t, mappedMAC.MACCR.HasBits(MACCR_TE))
	assert.True(t, mappedDMA.DMAOMR.HasBits(DMAOMR_ST))
}
