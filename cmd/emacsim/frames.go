package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	seqSize         = 4
	udpIPHeaderSize = 20 + 8
)

var errNotUDP = errors.New("no UDP payload")

// frameBuilder serializes the UDP test frames sent during a run.
type frameBuilder struct {
	eth  layers.Ethernet
	ip   layers.IPv4
	udp  layers.UDP
	size int
	buf  gopacket.SerializeBuffer
}

func newFrameBuilder(c *Config, hw [6]byte) (*frameBuilder, error) {
	b := &frameBuilder{
		eth: layers.Ethernet{
			SrcMAC:       net.HardwareAddr(hw[:]),
			DstMAC:       net.HardwareAddr(hw[:]),
			EthernetType: layers.EthernetTypeIPv4,
		},
		ip: layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.ParseIP(c.Traffic.SrcIP).To4(),
			DstIP:    net.ParseIP(c.Traffic.DstIP).To4(),
		},
		udp: layers.UDP{
			SrcPort: layers.UDPPort(c.Traffic.SrcPort),
			DstPort: layers.UDPPort(c.Traffic.DstPort),
		},
		size: c.Traffic.PayloadSize,
		buf:  gopacket.NewSerializeBuffer(),
	}
	if err := b.udp.SetNetworkLayerForChecksum(&b.ip); err != nil {
		return nil, err
	}
	return b, nil
}

// payload returns the UDP payload of frame seq: the sequence number
// followed by a pattern derived from it.
func (b *frameBuilder) payload(seq uint32) []byte {
	p := make([]byte, b.size)
	binary.BigEndian.PutUint32(p, seq)
	for i := seqSize; i < len(p); i++ {
		p[i] = byte(seq) + byte(i)
	}
	return p
}

// build returns frame seq. The result is only valid until the next call.
func (b *frameBuilder) build(seq uint32) ([]byte, error) {
	b.ip.Id = uint16(seq)
	opt := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	err := gopacket.SerializeLayers(b.buf, opt, &b.eth, &b.ip, &b.udp, gopacket.Payload(b.payload(seq)))
	if err != nil {
		return nil, err
	}
	return b.buf.Bytes(), nil
}

// decodeUDP returns the UDP payload of an Ethernet frame.
func decodeUDP(frame []byte) ([]byte, error) {
	p := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	if el := p.ErrorLayer(); el != nil {
		return nil, fmt.Errorf("decode %s: %w", el.LayerType(), el.Error())
	}
	l := p.Layer(layers.LayerTypeUDP)
	if l == nil {
		return nil, errNotUDP
	}
	return l.(*layers.UDP).Payload, nil
}
