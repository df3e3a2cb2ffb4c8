//go:build !tinygo

// Package volatile provides the 32-bit cell used for every word that a
// DMA master reads or writes concurrently with the CPU.
//
// With TinyGo, Register32 is runtime/volatile.Register32. Elsewhere the
// same method set is implemented with sync/atomic, which keeps the
// compiler from caching or reordering accesses and lets a software model
// of the hardware run in another goroutine.
package volatile

import "sync/atomic"

type Register32 struct {
	Reg uint32
}

func (r *Register32) Get() uint32 {
	return atomic.LoadUint32(&r.Reg)
}

func (r *Register32) Set(value uint32) {
	atomic.StoreUint32(&r.Reg, value)
}

func (r *Register32) SetBits(value uint32) {
	atomic.OrUint32(&r.Reg, value)
}

func (r *Register32) ClearBits(value uint32) {
	atomic.AndUint32(&r.Reg, ^value)
}

func (r *Register32) HasBits(value uint32) bool {
	return r.Get()&value > 0
}

// ReplaceBits replaces the bits selected by mask at position pos with
// value.
func (r *Register32) ReplaceBits(value uint32, mask uint32, pos uint8) {
	for {
		old := r.Get()
		v := old&^(mask<<pos) | value<<pos
		if atomic.CompareAndSwapUint32(&r.Reg, old, v) {
			return
		}
	}
}
