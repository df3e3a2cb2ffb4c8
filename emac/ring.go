package emac

import (
	"iter"
	"unsafe"
)

// Ring is a fixed set of descriptors serviced in strict index order,
// together with a cursor pointing at the next descriptor to service.
// All indices are reduced modulo the ring length.
type Ring[D any] struct {
	descs []D
	cur   int
}

func newRing[D any](descs []D) Ring[D] {
	return Ring[D]{descs: descs}
}

// Len returns the number of descriptors.
func (r *Ring[D]) Len() int { return len(r.descs) }

// Index returns the position of the cursor.
func (r *Ring[D]) Index() int { return r.cur }

func (r *Ring[D]) Current() *D { return &r.descs[r.cur] }

func (r *Ring[D]) Advance() { r.AdvanceBy(1) }

func (r *Ring[D]) AdvanceBy(n int) {
	r.cur = r.wrap(r.cur + n)
}

// Get returns the descriptor at absolute index i.
func (r *Ring[D]) Get(i int) *D { return &r.descs[r.wrap(i)] }

// AtOffset returns the descriptor k positions after the cursor.
func (r *Ring[D]) AtOffset(k int) *D { return &r.descs[r.wrap(r.cur+k)] }

// All iterates over the descriptors in index order, starting at 0.
func (r *Ring[D]) All() iter.Seq2[int, *D] {
	return func(yield func(int, *D) bool) {
		for i := range r.descs {
			if !yield(i, &r.descs[i]) {
				return
			}
		}
	}
}

// BaseAddr returns the bus address of the first descriptor.
func (r *Ring[D]) BaseAddr() uint32 {
	return physAddr(unsafe.Pointer(&r.descs[0]))
}

func (r *Ring[D]) reset() { r.cur = 0 }

func (r *Ring[D]) wrap(i int) int {
	n := len(r.descs)
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
