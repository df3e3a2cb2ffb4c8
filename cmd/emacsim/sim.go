package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/sync/errgroup"

	"github.com/knieriem/tinygo-emac/emac"
	"github.com/knieriem/tinygo-emac/emac/dmasim"
	"github.com/knieriem/tinygo-emac/internal/phy/lan8742a"
)

// Result summarizes a simulation run.
type Result struct {
	Sent       int
	Received   int
	Lost       int // sent frames that never arrived
	Mismatched int // frames that arrived with unexpected contents
	Stats      emac.Stats
}

// simulation drives an emac.Driver against the DMA model in loopback:
// every transmitted frame is handed back to the receive ring.
type simulation struct {
	cfg *Config
	l   *slog.Logger
	hw  *dmasim.Sim
	d   *emac.Driver
	phy *lan8742a.PHY
	fb  *frameBuilder

	pcapMu sync.Mutex
	pcap   *pcapgo.Writer
}

func newSimulation(cfg *Config, l *slog.Logger) (*simulation, error) {
	b := cfg.buffers()
	ecfg, err := cfg.emacConfig(b)
	if err != nil {
		return nil, err
	}
	fb, err := newFrameBuilder(cfg, ecfg.HardwareAddr)
	if err != nil {
		return nil, err
	}

	s := &simulation{
		cfg: cfg,
		l:   l,
		hw:  dmasim.New(b),
		d:   new(emac.Driver),
		fb:  fb,
	}
	s.hw.Loopback = true
	s.phy = &lan8742a.PHY{
		MDIO: s.d.MDIO(),
		BusyWait: func() {
			s.hw.Delay(time.Millisecond)
		},
	}
	ecfg.PHY = s.phy
	ecfg.Delay = s.hw.Delay

	if err := s.d.Init(s.hw.Regs(), ecfg); err != nil {
		return nil, err
	}
	return s, nil
}

// capture makes the simulation write each frame put on the wire to w
// in pcap format.
func (s *simulation) capture(w io.Writer) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return err
	}
	s.pcapMu.Lock()
	s.pcap = pw
	s.pcapMu.Unlock()
	return nil
}

func (s *simulation) writeFrames(frames [][]byte) error {
	s.pcapMu.Lock()
	defer s.pcapMu.Unlock()
	if s.pcap == nil {
		return nil
	}
	now := time.Now()
	for _, f := range frames {
		ci := gopacket.CaptureInfo{Timestamp: now, CaptureLength: len(f), Length: len(f)}
		if err := s.pcap.WritePacket(ci, f); err != nil {
			return err
		}
	}
	return nil
}

// bringUp finds and resets the PHY, starts the driver and waits for the
// link configured for the model.
func (s *simulation) bringUp(ctx context.Context) error {
	if err := s.phy.Detect(); err != nil {
		return err
	}
	if err := s.phy.Reset(); err != nil {
		return err
	}
	link, err := s.cfg.link()
	if err != nil {
		return err
	}
	s.hw.PHY.SetLink(link)

	if err := s.d.Start(); err != nil {
		return err
	}
	l, err := s.d.WaitLink(ctx)
	if err != nil {
		return err
	}
	s.l.Info("link up", "phy", s.phy.Addr, "speed", l.Speed, "duplex", l.Duplex)
	return nil
}

// run exchanges the configured number of frames. The interrupt line and
// the transmit DMA are served by background goroutines until the
// traffic has completed.
func (s *simulation) run(ctx context.Context) (*Result, error) {
	if err := s.bringUp(ctx); err != nil {
		return nil, err
	}
	defer s.d.Stop()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Traffic.Timeout)
	defer cancel()

	hwCtx, stopHW := context.WithCancel(ctx)
	hw, hwCtx := errgroup.WithContext(hwCtx)
	hw.Go(func() error { return s.serveIRQ(hwCtx) })
	hw.Go(func() error { return s.serveDMA(hwCtx) })

	r := new(Result)
	traffic, tctx := errgroup.WithContext(hwCtx)
	traffic.Go(func() error { return s.send(tctx, r) })
	traffic.Go(func() error { return s.receive(tctx, r) })
	err := traffic.Wait()
	stopHW()
	if hwErr := hw.Wait(); hwErr != nil {
		err = hwErr
	}

	r.Stats = s.d.Stats()
	r.Lost = r.Sent - r.Received
	if errors.Is(err, context.DeadlineExceeded) && r.Sent == s.cfg.Traffic.Frames {
		s.l.Warn("frames lost", "count", r.Lost)
		err = nil
	}
	return r, err
}

func (s *simulation) serveIRQ(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.hw.IRQ():
			st, err := s.hw.Interrupt(s.d.HandleInterrupt)
			if err != nil {
				s.l.Debug("interrupt", "err", err)
				continue
			}
			if st.HasError() {
				s.l.Warn("dma error", "status", st.String())
			}
		}
	}
}

// serveDMA plays the transmit DMA, polling the ring at the configured
// interval.
func (s *simulation) serveDMA(ctx context.Context) error {
	t := time.NewTicker(s.cfg.Traffic.DMAInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if s.hw.ProcessTx() == 0 {
			continue
		}
		if err := s.writeFrames(s.hw.Sent()); err != nil {
			return err
		}
	}
}

func (s *simulation) send(ctx context.Context, r *Result) error {
	for i := range s.cfg.Traffic.Frames {
		frame, err := s.fb.build(uint32(i))
		if err != nil {
			return err
		}
		if _, err := s.d.Transmit(ctx, frame); err != nil {
			return err
		}
		r.Sent++
		s.l.Debug("sent", "seq", i, "len", len(frame))
	}
	return nil
}

func (s *simulation) receive(ctx context.Context, r *Result) error {
	buf := make([]byte, emac.MaxEthFrameSize)
	next := uint32(0)
	for r.Received+r.Mismatched < s.cfg.Traffic.Frames {
		n, err := s.d.Receive(ctx, buf)
		switch {
		case err == nil:
		case errors.Is(err, emac.ErrFrameError), errors.Is(err, emac.ErrBufferTooSmall):
			s.l.Warn("frame discarded", "err", err)
			continue
		default:
			return err
		}
		payload, err := decodeUDP(buf[:n])
		if err != nil || len(payload) < seqSize {
			s.l.Warn("unexpected frame", "len", n, "err", err)
			r.Mismatched++
			continue
		}
		seq := binary.BigEndian.Uint32(payload)
		if seq != next {
			s.l.Warn("sequence gap", "want", next, "got", seq)
		}
		next = seq + 1
		if !bytes.Equal(payload, s.fb.payload(seq)) {
			s.l.Warn("payload mismatch", "seq", seq)
			r.Mismatched++
			continue
		}
		r.Received++
		s.l.Debug("received", "seq", seq, "len", n)
	}
	return nil
}
