package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/knieriem/tinygo-emac/emac"
)

// Config is the YAML configuration of a simulation run.
type Config struct {
	Rings struct {
		RX         int `yaml:"rx"`
		TX         int `yaml:"tx"`
		BufferSize int `yaml:"buffer_size"`
	} `yaml:"rings"`

	HardwareAddr string `yaml:"hardware_addr"`
	HCLK         uint32 `yaml:"hclk"`
	Checksum     string `yaml:"checksum"`

	Link struct {
		Speed      int  `yaml:"speed"`
		FullDuplex bool `yaml:"full_duplex"`
	} `yaml:"link"`

	Traffic struct {
		Frames      int           `yaml:"frames"`
		PayloadSize int           `yaml:"payload_size"`
		SrcIP       string        `yaml:"src_ip"`
		DstIP       string        `yaml:"dst_ip"`
		SrcPort     uint16        `yaml:"src_port"`
		DstPort     uint16        `yaml:"dst_port"`
		DMAInterval time.Duration `yaml:"dma_interval"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"traffic"`

	Pcap     string `yaml:"pcap"`
	LogLevel string `yaml:"log_level"`

	Stats struct {
		Listen string `yaml:"listen"`
		Path   string `yaml:"path"`
	} `yaml:"stats"`
}

// DefaultConfig returns the settings used for keys missing from the
// configuration file.
func DefaultConfig() *Config {
	c := new(Config)
	c.Rings.RX = 8
	c.Rings.TX = 8
	c.Rings.BufferSize = 512
	c.HardwareAddr = "02:00:00:00:00:01"
	c.HCLK = 168_000_000
	c.Checksum = "none"
	c.Link.Speed = 100
	c.Link.FullDuplex = true
	c.Traffic.Frames = 16
	c.Traffic.PayloadSize = 200
	c.Traffic.SrcIP = "192.168.100.1"
	c.Traffic.DstIP = "192.168.100.2"
	c.Traffic.SrcPort = 4242
	c.Traffic.DstPort = 4243
	c.Traffic.DMAInterval = time.Millisecond
	c.Traffic.Timeout = 10 * time.Second
	c.LogLevel = "info"
	c.Stats.Path = "/metrics"
	return c
}

// LoadConfig reads a configuration file on top of DefaultConfig.
// Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseConfig(f)
}

func parseConfig(r io.Reader) (*Config, error) {
	c := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Traffic.Frames < 0 {
		return fmt.Errorf("traffic.frames must not be negative: %d", c.Traffic.Frames)
	}
	if n := c.Traffic.PayloadSize; n < seqSize || n > emac.MTU-udpIPHeaderSize {
		return fmt.Errorf("traffic.payload_size out of range: %d", n)
	}
	if c.Traffic.DMAInterval <= 0 {
		return fmt.Errorf("traffic.dma_interval must be positive: %s", c.Traffic.DMAInterval)
	}
	if _, err := c.hardwareAddr(); err != nil {
		return err
	}
	if _, err := c.checksumMode(); err != nil {
		return err
	}
	if _, err := c.link(); err != nil {
		return err
	}
	if _, err := c.logLevel(); err != nil {
		return err
	}
	for _, s := range []string{c.Traffic.SrcIP, c.Traffic.DstIP} {
		if ip := net.ParseIP(s); ip == nil || ip.To4() == nil {
			return fmt.Errorf("not an IPv4 address: %q", s)
		}
	}
	if c.Stats.Listen != "" && c.Stats.Path == "" {
		return errors.New("stats.path should not be empty")
	}
	return nil
}

func (c *Config) hardwareAddr() (a [6]byte, err error) {
	hw, err := net.ParseMAC(c.HardwareAddr)
	if err != nil {
		return a, err
	}
	if len(hw) != 6 {
		return a, fmt.Errorf("hardware_addr must be an EUI-48 address: %s", c.HardwareAddr)
	}
	copy(a[:], hw)
	return a, nil
}

func (c *Config) checksumMode() (emac.ChecksumMode, error) {
	switch c.Checksum {
	case "", "none":
		return emac.ChecksumNone, nil
	case "ip-header":
		return emac.ChecksumIPHeader, nil
	case "ip-payload":
		return emac.ChecksumIPPayload, nil
	case "full":
		return emac.ChecksumFull, nil
	}
	return 0, fmt.Errorf("checksum was not understood: %s", c.Checksum)
}

func (c *Config) link() (emac.Link, error) {
	l := emac.Link{Up: true, Duplex: emac.HalfDuplex}
	switch c.Link.Speed {
	case 0:
		return emac.Link{}, nil
	case 10:
		l.Speed = emac.Speed10
	case 100:
		l.Speed = emac.Speed100
	default:
		return l, fmt.Errorf("link.speed must be 10 or 100: %d", c.Link.Speed)
	}
	if c.Link.FullDuplex {
		l.Duplex = emac.FullDuplex
	}
	return l, nil
}

func (c *Config) logLevel() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	return l, err
}

// buffers allocates the driver memory described by the rings section.
func (c *Config) buffers() emac.Buffers {
	r := &c.Rings
	return emac.Buffers{
		RxDesc:     make([]emac.RxDescriptor, r.RX),
		RxBuf:      make([]byte, r.RX*r.BufferSize),
		TxDesc:     make([]emac.TxDescriptor, r.TX),
		TxBuf:      make([]byte, r.TX*r.BufferSize),
		BufferSize: r.BufferSize,
	}
}

// emacConfig translates c into the driver configuration. Ring sizes
// and the HCLK frequency are checked by the driver itself.
func (c *Config) emacConfig(b emac.Buffers) (emac.Config, error) {
	hw, err := c.hardwareAddr()
	if err != nil {
		return emac.Config{}, err
	}
	cm, err := c.checksumMode()
	if err != nil {
		return emac.Config{}, err
	}
	return emac.Config{
		Buffers:          b,
		HardwareAddr:     hw,
		HCLK:             c.HCLK,
		Speed:            emac.Speed100,
		Duplex:           emac.FullDuplex,
		Checksum:         cm,
		LinkPollInterval: time.Millisecond,
		LinkTimeout:      100 * time.Millisecond,
	}, nil
}

func yamlEncoder(w io.Writer) *yaml.Encoder {
	e := yaml.NewEncoder(w)
	e.SetIndent(2)
	return e
}
