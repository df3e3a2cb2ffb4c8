package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knieriem/tinygo-emac/emac"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSimConfig() *Config {
	c := DefaultConfig()
	c.Traffic.Frames = 12
	c.Traffic.PayloadSize = 100
	c.Traffic.Timeout = 5 * time.Second
	return c
}

func TestSimulation_Run(t *testing.T) {
	c := testSimConfig()
	s, err := newSimulation(c, testLogger())
	require.NoError(t, err)

	var pcap bytes.Buffer
	require.NoError(t, s.capture(&pcap))

	r, err := s.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, r.Sent)
	assert.Equal(t, r.Sent, r.Received+r.Lost)
	assert.Zero(t, r.Mismatched)
	assert.EqualValues(t, 12, r.Stats.TxFrames)
	assert.EqualValues(t, r.Received, r.Stats.RxFrames)
	assert.Equal(t, emac.StateStopped, s.d.State())

	pr, err := pcapgo.NewReader(&pcap)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, pr.LinkType())
	for seq := range 12 {
		data, ci, err := pr.ReadPacketData()
		require.NoError(t, err, seq)
		assert.Equal(t, 14+20+8+100, ci.Length)

		payload, err := decodeUDP(data)
		require.NoError(t, err)
		assert.Equal(t, s.fb.payload(uint32(seq)), payload)
	}
	_, _, err = pr.ReadPacketData()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSimulation_ScatterGather(t *testing.T) {
	c := testSimConfig()
	c.Rings.BufferSize = 128
	c.Rings.RX = 16
	c.Traffic.PayloadSize = 400

	s, err := newSimulation(c, testLogger())
	require.NoError(t, err)
	r, err := s.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, r.Sent)
	assert.Zero(t, r.Mismatched)
}

func TestSimulation_NoLink(t *testing.T) {
	c := testSimConfig()
	c.Link.Speed = 0

	s, err := newSimulation(c, testLogger())
	require.NoError(t, err)
	_, err = s.run(context.Background())
	assert.ErrorIs(t, err, emac.ErrTimeout)
}

func TestSimulation_InvalidRings(t *testing.T) {
	c := testSimConfig()
	c.Rings.BufferSize = 30

	_, err := newSimulation(c, testLogger())
	assert.ErrorIs(t, err, emac.ErrInvalidConfig)
}

func TestFrameBuilder(t *testing.T) {
	c := testSimConfig()
	fb, err := newFrameBuilder(c, [6]byte{2, 0, 0, 0, 0, 1})
	require.NoError(t, err)

	frame, err := fb.build(7)
	require.NoError(t, err)
	assert.Len(t, frame, 14+20+8+100)
	assert.Equal(t, []byte{0x08, 0x00}, frame[12:14])

	payload, err := decodeUDP(frame)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 7}, payload[:seqSize])

	_, err = decodeUDP(frame[:14])
	assert.Error(t, err)
}

func TestStatsCollector(t *testing.T) {
	c := testSimConfig()
	c.Traffic.Frames = 3
	s, err := newSimulation(c, testLogger())
	require.NoError(t, err)
	_, err = s.run(context.Background())
	require.NoError(t, err)

	mfs, err := newStatsRegistry(s.d).Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range mfs {
		m := mf.GetMetric()[0]
		switch {
		case m.GetCounter() != nil:
			values[mf.GetName()] = m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			values[mf.GetName()] = m.GetGauge().GetValue()
		}
	}
	assert.Equal(t, 3.0, values["emac_tx_frames_total"])
	assert.Equal(t, 0.0, values["emac_tx_errors_total"])
	assert.Equal(t, 1.0, values["emac_link_up"])
	assert.Equal(t, 1.0, values["emac_info"])
	assert.Contains(t, values, "emac_rx_desync_total")
}

func TestMain_WritesPcap(t *testing.T) {
	c := testSimConfig()
	c.Traffic.Frames = 2
	c.Pcap = t.TempDir() + "/out.pcap"

	require.NoError(t, Main(context.Background(), testLogger(), c))
}
