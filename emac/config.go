package emac

import (
	"fmt"
	"time"
)

// Config holds the settings applied by Emac.Init.
type Config struct {
	// Memory used by the DMA engine; see Arena.
	Buffers Buffers

	HardwareAddr [6]byte

	// HCLK is the AHB clock frequency in Hz. It selects the MDC divider.
	HCLK uint32

	// Speed and Duplex used until the PHY reports a link.
	Speed  Speed
	Duplex Duplex

	// Checksum selects transmit checksum insertion. Any mode other than
	// ChecksumNone also enables checking of received IP checksums.
	Checksum ChecksumMode

	Filter      Filter
	FlowControl FlowControl

	PHY PHY

	// LinkPollInterval and LinkTimeout control WaitLink.
	LinkPollInterval time.Duration
	LinkTimeout      time.Duration

	// Delay blocks for d. It is used while resetting the peripheral and
	// waiting for the link, never on the data path. Defaults to
	// time.Sleep.
	Delay func(d time.Duration)
}

// DefaultConfig returns a configuration for a 100 Mbit/s full duplex
// link using the memory of a.
func DefaultConfig(a *Arena) Config {
	return Config{
		Buffers:          a.Buffers(),
		HCLK:             216_000_000,
		Speed:            Speed100,
		Duplex:           FullDuplex,
		Checksum:         ChecksumFull,
		FlowControl:      FlowControl{Enabled: true, PauseTime: 0x100},
		LinkPollInterval: 100 * time.Millisecond,
		LinkTimeout:      5 * time.Second,
	}
}

// Validate checks c without touching the hardware.
func (c *Config) Validate() error {
	if _, err := mdcClockRange(c.HCLK); err != nil {
		return err
	}
	if c.LinkPollInterval <= 0 {
		return fmt.Errorf("%w: link poll interval %v", ErrInvalidConfig, c.LinkPollInterval)
	}
	if c.LinkTimeout < 0 {
		return fmt.Errorf("%w: link timeout %v", ErrInvalidConfig, c.LinkTimeout)
	}
	if c.Speed != Speed10 && c.Speed != Speed100 {
		return fmt.Errorf("%w: speed %v", ErrInvalidConfig, c.Speed)
	}
	if c.Checksum > ChecksumFull {
		return fmt.Errorf("%w: checksum mode %d", ErrInvalidConfig, c.Checksum)
	}
	if c.HardwareAddr[0]&1 != 0 {
		return fmt.Errorf("%w: multicast hardware address", ErrInvalidConfig)
	}
	return c.Buffers.validate()
}

func (c *Config) delay(d time.Duration) {
	if c.Delay != nil {
		c.Delay(d)
		return
	}
	time.Sleep(d)
}

// mdcClockRange returns the MACMIIAR CR value keeping MDC below
// 2.5 MHz for the given HCLK.
func mdcClockRange(hclk uint32) (uint32, error) {
	const MHz = 1_000_000
	switch {
	case hclk < 20*MHz:
	case hclk < 35*MHz:
		return 0b010, nil // HCLK/16
	case hclk < 60*MHz:
		return 0b011, nil // HCLK/26
	case hclk < 100*MHz:
		return 0b000, nil // HCLK/42
	case hclk < 150*MHz:
		return 0b001, nil // HCLK/62
	case hclk <= 216*MHz:
		return 0b100, nil // HCLK/102
	}
	return 0, fmt.Errorf("%w: %d Hz", ErrInvalidClock, hclk)
}
