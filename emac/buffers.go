package emac

import (
	"fmt"
	"unsafe"
)

// Default sizes of Arena.
const (
	DefaultRxRingLen  = 10
	DefaultTxRingLen  = 10
	DefaultBufferSize = 1536
)

// Buffers describes the memory handed to the DMA engine. Descriptor i
// of a ring uses bytes [i*BufferSize, (i+1)*BufferSize) of the ring's
// buffer slab. The memory must not move or be reused while the engine
// is in use.
type Buffers struct {
	RxDesc     []RxDescriptor
	RxBuf      []byte
	TxDesc     []TxDescriptor
	TxBuf      []byte
	BufferSize int
}

func (b *Buffers) validate() error {
	switch {
	case len(b.RxDesc) == 0, len(b.TxDesc) == 0:
		return fmt.Errorf("%w: empty descriptor ring", ErrInvalidConfig)
	case b.BufferSize <= 0 || b.BufferSize > MaxBufferSize || b.BufferSize%4 != 0:
		return fmt.Errorf("%w: buffer size %d", ErrInvalidConfig, b.BufferSize)
	case len(b.RxBuf) != len(b.RxDesc)*b.BufferSize:
		return fmt.Errorf("%w: rx buffer length %d, want %d", ErrInvalidConfig, len(b.RxBuf), len(b.RxDesc)*b.BufferSize)
	case len(b.TxBuf) != len(b.TxDesc)*b.BufferSize:
		return fmt.Errorf("%w: tx buffer length %d, want %d", ErrInvalidConfig, len(b.TxBuf), len(b.TxDesc)*b.BufferSize)
	case !aligned(unsafe.Pointer(&b.RxBuf[0])), !aligned(unsafe.Pointer(&b.TxBuf[0])):
		return fmt.Errorf("%w: buffers not word aligned", ErrInvalidConfig)
	}
	return nil
}

func aligned(p unsafe.Pointer) bool {
	return uintptr(p)&3 == 0
}

// Arena is the default static storage for the DMA engine. It is meant to
// be declared as a package-level variable, so that its address is fixed
// before Init is called.
type Arena struct {
	rxDesc [DefaultRxRingLen]RxDescriptor
	txDesc [DefaultTxRingLen]TxDescriptor
	rxBuf  [DefaultRxRingLen * DefaultBufferSize]byte
	txBuf  [DefaultTxRingLen * DefaultBufferSize]byte
}

func (a *Arena) Buffers() Buffers {
	return Buffers{
		RxDesc:     a.rxDesc[:],
		RxBuf:      a.rxBuf[:],
		TxDesc:     a.txDesc[:],
		TxBuf:      a.txBuf[:],
		BufferSize: DefaultBufferSize,
	}
}
