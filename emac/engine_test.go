package emac_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knieriem/tinygo-emac/emac"
)

func TestTransmit_Length(t *testing.T) {
	const nrx, ntx, size = 2, 4, 64

	tests := []struct {
		name string
		n    int
		err  error
	}{
		{"zero", 0, emac.ErrInvalidLength},
		{"one byte", 1, nil},
		{"one buffer", size, nil},
		{"exact max", ntx * size, nil},
		{"one over max", ntx*size + 1, emac.ErrFrameTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestEmac(t, nrx, ntx, size)
			before := m.TxAvailable()

			n, err := m.Transmit(testFrame(tt.n))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, 0, n)
				assert.Equal(t, before, m.TxAvailable(), "no descriptor consumed")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.n, n)
			assert.Equal(t, ntx-(tt.n+size-1)/size, m.TxAvailable())
		})
	}
}

func TestTransmit_SingleDescriptor(t *testing.T) {
	m, sim := newTestEmac(t, 2, 4, 64)
	tx := m.Engine().TxRing()

	_, err := m.Transmit(testFrame(60))
	require.NoError(t, err)

	d := tx.Get(0)
	assert.True(t, d.IsOwned())
	assert.True(t, d.IsFirst())
	assert.True(t, d.IsLast())
	assert.Equal(t, 60, d.BufferSize())
	assert.Equal(t, 1, tx.Index())
	assert.Equal(t, 3, m.TxAvailable())
	assert.False(t, tx.Get(1).IsOwned())

	require.Equal(t, 1, sim.ProcessTx())
	assert.False(t, d.IsOwned())
	assert.Equal(t, 4, m.TxAvailable())
	assert.Equal(t, [][]byte{testFrame(60)}, sim.Sent())
}

func TestTransmit_ScatterGather(t *testing.T) {
	m, sim := newTestEmac(t, 2, 4, 64)
	tx := m.Engine().TxRing()
	frame := testFrame(150)

	_, err := m.Transmit(frame)
	require.NoError(t, err)

	assert.True(t, tx.Get(0).IsFirst())
	assert.False(t, tx.Get(0).IsLast())
	assert.False(t, tx.Get(1).IsFirst())
	assert.False(t, tx.Get(1).IsLast())
	assert.True(t, tx.Get(2).IsLast())
	for i := range 3 {
		assert.True(t, tx.Get(i).IsOwned(), i)
	}
	assert.Equal(t, []int{64, 64, 22}, []int{
		tx.Get(0).BufferSize(), tx.Get(1).BufferSize(), tx.Get(2).BufferSize(),
	})

	require.Equal(t, 1, sim.ProcessTx())
	assert.Equal(t, [][]byte{frame}, sim.Sent())
}

func TestTransmit_NoDescriptors(t *testing.T) {
	m, sim := newTestEmac(t, 2, 3, 64)

	_, err := m.Transmit(testFrame(128))
	require.NoError(t, err)
	assert.True(t, m.CanTransmit(64))
	assert.False(t, m.CanTransmit(65))

	_, err = m.Transmit(testFrame(100))
	assert.ErrorIs(t, err, emac.ErrNoDescriptorsAvailable)
	assert.True(t, emac.Temporary(err))

	sim.ProcessTx()
	_, err = m.Transmit(testFrame(100))
	assert.NoError(t, err, "ring wraps around")
	assert.Equal(t, 1, m.TxAvailable())
}

func TestTransmit_ChecksumMode(t *testing.T) {
	m, _ := newTestEmac(t, 2, 2, 64)
	m.Engine().SetChecksumMode(emac.ChecksumFull)

	_, err := m.Transmit(testFrame(20))
	require.NoError(t, err)
	st := m.Engine().TxRing().Get(0).Status()
	assert.EqualValues(t, emac.TDES0_CIC_Msk, st&emac.TDES0_CIC_Msk)
	assert.Equal(t, emac.ChecksumFull, m.Engine().ChecksumMode())
}

func TestTransmit_ErrorCollected(t *testing.T) {
	m, sim := newTestEmac(t, 2, 2, 64)

	sim.FailNextTx(emac.TDES0_UF)
	_, err := m.Transmit(testFrame(20))
	require.NoError(t, err)
	sim.ProcessTx()
	assert.Equal(t, "underflow", m.Engine().TxRing().Get(0).ErrorFlags().String())

	// The error is noticed when the descriptor is reused.
	_, err = m.Transmit(testFrame(20))
	require.NoError(t, err)
	sim.ProcessTx()
	assert.EqualValues(t, 0, m.Stats().TxErrors)
	_, err = m.Transmit(testFrame(20))
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.Stats().TxErrors)
	assert.EqualValues(t, 3, m.Stats().TxFrames)
}

func TestReceive_Empty(t *testing.T) {
	m, _ := newTestEmac(t, 4, 2, 64)
	buf := make([]byte, 256)

	n, err := m.Receive(buf)
	assert.ErrorIs(t, err, emac.ErrIncompleteFrame)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, m.Engine().RxRing().Index())
	assert.False(t, m.RxAvailable())
}

func TestReceive_MultiDescriptor(t *testing.T) {
	m, sim := newTestEmac(t, 4, 2, 64)
	rx := m.Engine().RxRing()
	frame := testFrame(100)

	require.True(t, sim.Deliver(frame))
	assert.True(t, m.RxAvailable())
	assert.True(t, rx.Get(0).IsFirst())
	assert.True(t, rx.Get(1).IsLast())
	assert.Equal(t, 104, rx.Get(1).FrameLength())

	buf := make([]byte, 256)
	n, err := m.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, frame, buf[:n])
	assert.Equal(t, 2, rx.Index())
	assert.True(t, rx.Get(0).IsOwned(), "descriptor returned to DMA")
	assert.True(t, rx.Get(1).IsOwned(), "descriptor returned to DMA")
	assert.False(t, m.RxAvailable())
}

func TestReceive_SpansRingEnd(t *testing.T) {
	m, sim := newTestEmac(t, 3, 2, 64)
	buf := make([]byte, 256)

	for i, size := range []int{40, 100, 110, 20} {
		frame := testFrame(size)
		require.True(t, sim.Deliver(frame), i)
		n, err := m.Receive(buf)
		require.NoError(t, err, i)
		assert.Equal(t, frame, buf[:n], i)
	}
	assert.EqualValues(t, 4, m.Stats().RxFrames)
}

func TestReceive_BufferTooSmall(t *testing.T) {
	m, sim := newTestEmac(t, 4, 2, 64)

	require.True(t, sim.Deliver(testFrame(100)))
	n, err := m.Receive(make([]byte, 50))
	assert.Same(t, emac.ErrBufferTooSmall, err)
	assert.Equal(t, 0, n)
	assert.EqualValues(t, 1, m.Stats().RxDropped)
	assert.EqualValues(t, 100, m.Stats().RxDropLen)

	_, err = m.Receive(make([]byte, 256))
	assert.ErrorIs(t, err, emac.ErrIncompleteFrame, "frame was discarded")
	assert.True(t, m.Engine().RxRing().Get(0).IsOwned())
}

func TestReceive_FrameError(t *testing.T) {
	m, sim := newTestEmac(t, 4, 2, 64)
	buf := make([]byte, 256)

	require.True(t, sim.DeliverError(testFrame(30), emac.RDES0_CE))
	require.True(t, sim.Deliver(testFrame(40)))

	_, err := m.Receive(buf)
	var fe *emac.FrameError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, emac.RxErrorFlags(emac.RDES0_CE), fe.Flags)
	assert.ErrorIs(t, err, emac.ErrFrameError)
	assert.True(t, m.Engine().RxRing().Get(0).IsOwned(), "erroneous frame recycled")

	n, err := m.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, testFrame(40), buf[:n])
	assert.EqualValues(t, 1, m.Stats().RxErrors)
}

func TestReceive_Desync(t *testing.T) {
	m, sim := newTestEmac(t, 4, 2, 64)
	rx := m.Engine().RxRing()
	buf := make([]byte, 256)

	require.True(t, sim.Deliver(testFrame(30)))
	require.True(t, sim.Deliver(testFrame(40)))

	// Lose the start of the first frame.
	d := rx.Get(0)
	d.SetStatus(d.Status() &^ emac.RDES0_FS)

	_, err := m.Receive(buf)
	assert.ErrorIs(t, err, emac.ErrIncompleteFrame)
	assert.EqualValues(t, 1, m.Stats().RxDesync)
	assert.Equal(t, 1, rx.Index())

	n, err := m.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, testFrame(40), buf[:n])
}

func TestReceive_FrameErrorReused(t *testing.T) {
	m, sim := newTestEmac(t, 4, 2, 64)
	buf := make([]byte, 256)

	require.True(t, sim.DeliverError(testFrame(30), emac.RDES0_CE))
	require.True(t, sim.DeliverError(testFrame(30), emac.RDES0_OE))

	_, err1 := m.Receive(buf)
	var fe1 *emac.FrameError
	require.True(t, errors.As(err1, &fe1))
	assert.Equal(t, emac.RxErrorFlags(emac.RDES0_CE), fe1.Flags)

	_, err2 := m.Receive(buf)
	var fe2 *emac.FrameError
	require.True(t, errors.As(err2, &fe2))
	assert.Same(t, fe1, fe2)
	assert.Equal(t, emac.RxErrorFlags(emac.RDES0_OE), fe2.Flags)
}

func TestReceive_ErrorsDoNotAllocate(t *testing.T) {
	const runs = 4
	captureLog(t, slog.LevelError)
	m, sim := newTestEmac(t, 16, 2, 64)
	buf := make([]byte, 50)

	for range runs + 1 {
		require.True(t, sim.Deliver(testFrame(100)))
	}
	var err error
	allocs := testing.AllocsPerRun(runs, func() {
		_, err = m.Receive(buf)
	})
	assert.Same(t, emac.ErrBufferTooSmall, err)
	assert.Zero(t, allocs, "buffer too small")

	for range runs + 1 {
		require.True(t, sim.DeliverError(testFrame(30), emac.RDES0_CE))
	}
	allocs = testing.AllocsPerRun(runs, func() {
		_, err = m.Receive(buf)
	})
	assert.ErrorIs(t, err, emac.ErrFrameError)
	assert.Zero(t, allocs, "frame error")
}

func TestReceive_LengthBeyondDescriptors(t *testing.T) {
	m, sim := newTestEmac(t, 4, 2, 64)
	rx := m.Engine().RxRing()
	buf := make([]byte, 512)

	require.True(t, sim.Deliver(testFrame(30)))
	require.True(t, sim.Deliver(testFrame(40)))

	// The first frame occupies one descriptor but claims a longer length.
	d := rx.Get(0)
	d.SetStatus(d.Status()&^emac.RDES0_FL_Msk | 200<<emac.RDES0_FL_Pos)

	_, ok := m.PeekFrameLength()
	assert.False(t, ok)
	_, err := m.Receive(buf)
	var fe *emac.FrameError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, emac.RxErrorFlags(emac.RDES0_LE), fe.Flags)
	assert.EqualValues(t, 1, m.Stats().RxErrors)

	n, err := m.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, testFrame(40), buf[:n])
}

func TestReceive_OrphanedTails(t *testing.T) {
	m, sim := newTestEmac(t, 4, 2, 64)
	rx := m.Engine().RxRing()
	buf := make([]byte, 256)

	for _, n := range []int{30, 40, 50} {
		require.True(t, sim.Deliver(testFrame(n)))
	}
	for i := range 2 {
		d := rx.Get(i)
		d.SetStatus(d.Status() &^ emac.RDES0_FS)
	}

	for i := range 2 {
		assert.True(t, m.RxAvailable(), "tail %d", i)
		_, err := m.Receive(buf)
		assert.ErrorIs(t, err, emac.ErrIncompleteFrame)
	}
	assert.EqualValues(t, 2, m.Stats().RxDesync)

	require.True(t, m.RxAvailable())
	n, err := m.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, testFrame(50), buf[:n])
	assert.False(t, m.RxAvailable())
}

func TestReceive_FrameCountAndPeek(t *testing.T) {
	m, sim := newTestEmac(t, 6, 2, 64)
	buf := make([]byte, 256)

	assert.Equal(t, 0, m.RxFrameCount())
	_, ok := m.PeekFrameLength()
	assert.False(t, ok)

	require.True(t, sim.Deliver(testFrame(100)))
	require.True(t, sim.Deliver(testFrame(20)))
	require.True(t, sim.Deliver(testFrame(30)))
	assert.Equal(t, 3, m.RxFrameCount())

	n, ok := m.PeekFrameLength()
	require.True(t, ok)
	assert.Equal(t, 100, n)
	assert.Equal(t, 3, m.RxFrameCount(), "peek does not consume")

	_, err := m.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, m.RxFrameCount())
	n, _ = m.PeekFrameLength()
	assert.Equal(t, 20, n)
}

func TestReceive_RingFull(t *testing.T) {
	m, sim := newTestEmac(t, 2, 2, 64)

	require.True(t, sim.Deliver(testFrame(30)))
	require.True(t, sim.Deliver(testFrame(30)))
	assert.False(t, sim.Deliver(testFrame(30)))
	assert.NotZero(t, sim.Status()&emac.DMASR_RBU)

	_, err := m.Receive(make([]byte, 64))
	require.NoError(t, err)
	assert.True(t, sim.Deliver(testFrame(30)), "space after receive")
}

func TestFlushRxFrame(t *testing.T) {
	m, sim := newTestEmac(t, 4, 2, 64)
	e := m.Engine()

	assert.Equal(t, 0, e.FlushRxFrame(), "nothing to flush")

	require.True(t, sim.Deliver(testFrame(100)))
	require.True(t, sim.Deliver(testFrame(10)))
	assert.Equal(t, 2, e.FlushRxFrame())
	assert.Equal(t, 1, m.RxFrameCount())
}

func TestLoopback(t *testing.T) {
	m, sim := newTestEmac(t, 4, 4, 64)
	sim.Loopback = true
	frame := testFrame(180)

	_, err := m.Transmit(frame)
	require.NoError(t, err)
	require.Equal(t, 1, sim.ProcessTx())

	buf := make([]byte, 256)
	n, err := m.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, frame, buf[:n])
}
