package emac

import (
	"context"
	"errors"
	"log/slog"
	"net"
)

// Ethernet framing sizes.
const (
	MTU             = 1500
	EthHeaderSize   = 14
	MaxEthFrameSize = MTU + EthHeaderSize + CRCLength + 4 // incl. VLAN tag
)

// EthDevice adapts a Driver to a poll-based Ethernet device interface,
// as expected by TinyGo network stacks.
type EthDevice struct {
	d       *Driver
	bufs    [][]byte
	next    int
	handler func(pkt []byte) error
	scratch [MaxEthFrameSize]byte
}

func NewEthDevice(d *Driver) *EthDevice {
	return &EthDevice{d: d}
}

// SendEthFrame transmits a frame without CRC. It blocks until the frame
// has been queued.
func (e *EthDevice) SendEthFrame(frame []byte) error {
	_, err := e.d.Transmit(context.Background(), frame)
	return err
}

// SetEthRecvHandler registers the function called by EthPoll for each
// received frame. Received frames are copied into bufs in turn; if bufs
// is empty, an internal buffer is used. The frame passed to handler is
// only valid during the call.
func (e *EthDevice) SetEthRecvHandler(bufs [][]byte, handler func(pkt []byte) error) {
	e.bufs = bufs
	e.next = 0
	e.handler = handler
}

// EthPoll passes all complete frames waiting in the receive ring to the
// handler. It reports whether any frame was received. Frames discarded
// because of hardware errors or a short buffer do not stop the loop.
func (e *EthDevice) EthPoll() (bool, error) {
	got := false
	for {
		buf := e.recvBuf()
		n, err := e.d.TryReceive(buf)
		switch {
		case err == nil:
		case Temporary(err):
			return got, nil
		case errors.Is(err, ErrFrameError), errors.Is(err, ErrBufferTooSmall):
			if logEnabled(slog.LevelDebug) {
				logDebug(ComponentNetdev, "frame skipped", "err", err)
			}
			continue
		default:
			return got, err
		}
		got = true
		if e.handler == nil {
			continue
		}
		if err := e.handler(buf[:n]); err != nil {
			return got, err
		}
	}
}

func (e *EthDevice) recvBuf() []byte {
	if len(e.bufs) == 0 {
		return e.scratch[:]
	}
	b := e.bufs[e.next]
	e.next = (e.next + 1) % len(e.bufs)
	return b
}

func (e *EthDevice) HardwareAddr6() (a [6]byte, err error) {
	e.d.With(func(m *Emac) {
		if !m.initialized {
			err = ErrNotInitialized
			return
		}
		a = m.HardwareAddr()
	})
	return a, err
}

// MaxFrameSize returns the largest frame, headers and CRC included,
// that is exchanged with the device.
func (e *EthDevice) MaxFrameSize() int {
	return e.d.maxFrameSize()
}

// NetFlags reports FlagUp while the driver is running, and FlagRunning
// while the link is up.
func (e *EthDevice) NetFlags() (f net.Flags) {
	e.d.With(func(m *Emac) {
		if m.state == StateRunning {
			f |= net.FlagUp
		}
		if m.link.Up {
			f |= net.FlagRunning
		}
		if !m.cfg.Filter.BlockBroadcast {
			f |= net.FlagBroadcast
		}
		f |= net.FlagMulticast
	})
	return f
}

// Offload tells in which direction a checksum is handled by the
// hardware.
type Offload uint8

const (
	OffloadNone Offload = iota
	OffloadTx           // inserted on transmit
	OffloadRx           // verified on receive
	OffloadBoth
)

type ChecksumCapabilities struct {
	IPv4   Offload
	UDP    Offload
	TCP    Offload
	ICMPv4 Offload
}

// Capabilities describe the device to a token-based network stack.
type Capabilities struct {
	MTU          int
	MaxBurstSize int
	Checksum     ChecksumCapabilities
}

// NetDevice adapts a Driver to a token-based network stack. A token
// refers to a buffer inside the NetDevice, so at most one RxToken and
// one TxToken may be in use at a time.
type NetDevice struct {
	d     *Driver
	rxBuf [MaxEthFrameSize]byte
	txBuf [MaxEthFrameSize]byte
}

func NewNetDevice(d *Driver) *NetDevice {
	return &NetDevice{d: d}
}

func (nd *NetDevice) Capabilities() Capabilities {
	var mode ChecksumMode
	nd.d.With(func(m *Emac) { mode = m.engine.ChecksumMode() })

	c := Capabilities{MTU: MTU, MaxBurstSize: 1}
	switch mode {
	case ChecksumFull:
		c.Checksum = ChecksumCapabilities{
			IPv4:   OffloadBoth,
			UDP:    OffloadBoth,
			TCP:    OffloadBoth,
			ICMPv4: OffloadBoth,
		}
	case ChecksumIPPayload:
		c.Checksum = ChecksumCapabilities{
			IPv4:   OffloadBoth,
			UDP:    OffloadRx,
			TCP:    OffloadRx,
			ICMPv4: OffloadBoth,
		}
	case ChecksumIPHeader:
		c.Checksum.IPv4 = OffloadBoth
	}
	return c
}

func (nd *NetDevice) LinkUp() bool {
	return nd.d.Link().Up
}

func (nd *NetDevice) HardwareAddr() [6]byte {
	return nd.d.HardwareAddr()
}

// Receive waits for a frame. The returned TxToken may be used to send a
// reply.
func (nd *NetDevice) Receive(ctx context.Context) (RxToken, TxToken, error) {
	n, err := nd.d.Receive(ctx, nd.rxBuf[:])
	if err != nil {
		return RxToken{}, TxToken{}, err
	}
	return RxToken{dev: nd, n: n}, TxToken{dev: nd}, nil
}

// Poll is the non-blocking form of Receive.
func (nd *NetDevice) Poll() (RxToken, TxToken, bool) {
	n, err := nd.d.TryReceive(nd.rxBuf[:])
	if err != nil {
		if !Temporary(err) {
			logDebug(ComponentNetdev, "poll", "err", err)
		}
		return RxToken{}, TxToken{}, false
	}
	return RxToken{dev: nd, n: n}, TxToken{dev: nd}, true
}

// Transmit waits until a frame of maximum size can be queued.
func (nd *NetDevice) Transmit(ctx context.Context) (TxToken, error) {
	if err := nd.d.WaitTransmit(ctx, nd.d.maxFrameSize()); err != nil {
		return TxToken{}, err
	}
	return TxToken{dev: nd}, nil
}

type RxToken struct {
	dev *NetDevice
	n   int
}

// Consume passes the received frame to f. The frame is only valid
// during the call.
func (t RxToken) Consume(f func(frame []byte) error) error {
	if t.dev == nil {
		return ErrInvalidState
	}
	return f(t.dev.rxBuf[:t.n])
}

type TxToken struct {
	dev *NetDevice
}

// Consume lets f fill a frame of n bytes, which is then queued for
// transmission.
func (t TxToken) Consume(n int, f func(frame []byte) error) error {
	if t.dev == nil {
		return ErrInvalidState
	}
	if n <= 0 {
		return ErrInvalidLength
	}
	if n > len(t.dev.txBuf) {
		return ErrFrameTooLarge
	}
	frame := t.dev.txBuf[:n]
	if err := f(frame); err != nil {
		return err
	}
	_, err := t.dev.d.TryTransmit(frame)
	return err
}
