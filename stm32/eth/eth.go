//go:build tinygo && nucleof767zi

// Eth sends a broadcast frame every second over the on-board RMII
// interface of a NUCLEO-F767ZI and dumps the frames it receives.
package main

import (
	"context"
	"device/stm32"
	"errors"
	"machine"
	"os"
	"runtime/interrupt"
	"time"

	"github.com/knieriem/tinygo-emac/emac"
	"github.com/knieriem/tinygo-emac/internal/phy/lan8742a"
)

func configureETHPins() {
	configureEthPin(ETH_REF_CLK)
	configureEthPin(ETH_RXD0)
	configureEthPin(ETH_RXD1)
	configureEthPin(ETH_TX_EN)
	configureEthPin(ETH_TXD0)
	configureEthPin(ETH_TXD1)
	configureEthPin(ETH_CRS_DV)
	configureEthPin(ETH_MDC)
	configureEthPin(ETH_MDIO)
}

func configureEthPin(pin machine.Pin) {
	pin.ConfigureAltFunc(machine.PinConfig{Mode: machine.PinModeETH}, 11)
}

// initPeriph selects RMII and enables the MAC clocks. The interface
// type must be selected before the MAC is clocked.
func initPeriph() {
	stm32.RCC.APB2ENR.SetBits(stm32.RCC_APB2ENR_SYSCFGEN)
	stm32.SYSCFG.PMC.SetBits(stm32.SYSCFG_PMC_MII_RMII_SEL)

	stm32.RCC.AHB1ENR.SetBits(stm32.RCC_AHB1ENR_ETHMACEN |
		stm32.RCC_AHB1ENR_ETHMACTXEN | stm32.RCC_AHB1ENR_ETHMACRXEN)
}

var hwAddr = [6]byte{0x02, 0xd1, 0x91, 0x07, 0x02, 0x03}

// example Ethernet frame (broadcast)
var payload = []byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, // dest MAC
	0x02, 0xd1, 0x91, 0x07, 0x02, 0x03, // src MAC
	0x88, 0xb5, // Ethertype: local experimental
	'H', 'e', 'l', 'l', 'o', ' ', 'w', 'o', 'r', 'l', 'd', '!',
}

// The data cache is left disabled by the runtime, so descriptors and
// buffers may live in ordinary SRAM.
var (
	arena  emac.Arena
	eth    emac.Driver
	phyDev lan8742a.PHY
	rxBuf  [emac.MaxEthFrameSize]byte
)

func initMAC() error {
	cfg := emac.DefaultConfig(&arena)
	cfg.HardwareAddr = hwAddr
	cfg.HCLK = hclk

	phyDev.MDIO = eth.MDIO()
	phyDev.BusyWait = func() {
		time.Sleep(time.Millisecond)
	}
	cfg.PHY = &phyDev

	println("eth init")
	err := eth.Init(emac.MapRegisters(emac.STM32F7MACBase, emac.STM32F7DMABase), cfg)
	if err != nil {
		return err
	}
	if err := phyDev.Detect(); err != nil {
		return err
	}
	if err := phyDev.Reset(); err != nil {
		return err
	}

	if err := eth.Start(); err != nil {
		return err
	}
	return waitForLinkUp()
}

func main() {
	pulseLED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	linkLED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	rxLED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	initPeriph()
	configureETHPins()

	// The handler returns ErrNotRunning until the driver has been
	// started.
	irq := interrupt.New(stm32.IRQ_ETH, func(interrupt.Interrupt) {
		eth.HandleInterrupt()
	})
	irq.Enable()

	for {
		err := initMAC()
		if err == nil {
			break
		}
		println("eth:", err.Error())
		eth.Stop()
		time.Sleep(time.Second)
	}

	netdev := emac.NewEthDevice(&eth)
	netdev.SetEthRecvHandler([][]byte{rxBuf[:]}, dumpFrame)

	println("init done")
	for {
		payload[len(payload)-1]++
		_, err := eth.TryTransmit(payload)
		if err != nil {
			println("TX:", err.Error())
		}
		if _, err := netdev.EthPoll(); err != nil {
			println("RX:", err.Error())
		}

		s := eth.Stats()
		println("stats tx", s.TxFrames, s.TxErrors, "rx", s.RxFrames, s.RxErrors, s.RxDropped)

		println("+")
		pulseLED.Low()
		time.Sleep(time.Millisecond * 500)

		println("-.")
		pulseLED.High()
		time.Sleep(time.Millisecond * 500)

		machine.Watchdog.Update()
	}
}

func dumpFrame(frame []byte) error {
	rxLED.Low()
	println("RX len", len(frame))
	emac.DumpFrame(os.Stdout, frame[:min(len(frame), 256)])
	rxLED.High()
	return nil
}

func waitForLinkUp() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for ctx.Err() == nil {
		l, err := eth.UpdateLink()
		if err != nil {
			return err
		}
		if l.Up {
			println("link up", l.Speed.String(), l.Duplex.String())
			linkLED.High()
			return nil
		}
		linkLED.Low()
		time.Sleep(time.Millisecond * 100)

		linkLED.High()
		time.Sleep(time.Millisecond * 100)
	}
	return errors.New("PHY link not up")
}
