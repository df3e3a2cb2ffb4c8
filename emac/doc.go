// Package emac is a driver for the Synopsys DWMAC 3.x Ethernet MAC found
// in STM32F4/F7 and ESP32 microcontrollers.
//
// The driver owns two rings of chained DMA descriptors and moves frames
// between caller buffers and the fixed buffer slots bound to the
// descriptors. Nothing is allocated on the data path: descriptors and
// buffers are reserved by the caller, usually as a static Arena.
//
// # Layers
//
//   - RxDescriptor, TxDescriptor: the 32-byte descriptors shared with the DMA
//   - Ring: cursor arithmetic over a descriptor slice
//   - Engine: frame transmission and reception on the rings
//   - Emac: register setup, lifecycle state, interrupt status and link
//   - Driver: an Emac guarded by a critical section, with waiting
//     Transmit and Receive methods for use from goroutines
//   - EthDevice, NetDevice: adapters for network stacks
//
// # Ownership
//
// A descriptor whose OWN bit is set belongs to the DMA and is not touched
// by the driver. Transmit fills all descriptors of a frame first, then
// passes them to the DMA last segment first. Receive returns descriptors
// to the DMA as soon as their content has been copied out.
//
// # Interrupts
//
// The interrupt handler calls Driver.HandleInterrupt, which acknowledges
// the DMA status bits it has read and wakes the goroutines waiting for
// them:
//
//	var eth emac.Driver
//
//	func init() {
//		interrupt.New(stm32.IRQ_ETH, func(interrupt.Interrupt) {
//			eth.HandleInterrupt()
//		}).Enable()
//	}
//
// On the host the package builds without TinyGo. Registers are then plain
// memory, which is how the dmasim package models the hardware.
package emac
