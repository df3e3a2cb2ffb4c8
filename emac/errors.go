package emac

import (
	"errors"
	"strconv"
)

// Domain groups errors by where they are detected.
type Domain uint8

const (
	// DomainConfig errors are detected before any register is touched
	// and are never retried automatically.
	DomainConfig Domain = iota + 1
	// DomainDMA errors reject a transmit request before any descriptor
	// is handed to the hardware.
	DomainDMA
	// DomainIO errors describe the state of a received frame or a wait
	// on the link.
	DomainIO
)

func (d Domain) String() string {
	switch d {
	case DomainConfig:
		return "config"
	case DomainDMA:
		return "dma"
	case DomainIO:
		return "io"
	}
	return "domain(" + strconv.Itoa(int(d)) + ")"
}

// Error is the type of the sentinel errors of this package.
type Error struct {
	domain Domain
	msg    string
}

func (e *Error) Error() string  { return "emac: " + e.msg }
func (e *Error) Domain() Domain { return e.domain }

// Configuration errors.
var (
	ErrInvalidConfig  = &Error{DomainConfig, "invalid configuration"}
	ErrInvalidClock   = &Error{DomainConfig, "HCLK out of range for MDC clock"}
	ErrNotInitialized = &Error{DomainConfig, "not initialized"}
	ErrNotRunning     = &Error{DomainConfig, "not running"}
	ErrInvalidState   = &Error{DomainConfig, "invalid state transition"}
)

// DMA errors.
var (
	ErrInvalidLength          = &Error{DomainDMA, "invalid frame length"}
	ErrFrameTooLarge          = &Error{DomainDMA, "frame too large"}
	ErrNoDescriptorsAvailable = &Error{DomainDMA, "no descriptors available"}
	ErrDescriptorBusy         = &Error{DomainDMA, "descriptor owned by DMA"}
	ErrFatalBus               = &Error{DomainDMA, "fatal bus error"}
)

// I/O errors.
var (
	// ErrIncompleteFrame means that no complete frame is available yet.
	// The call may be retried later.
	ErrIncompleteFrame = &Error{DomainIO, "incomplete frame"}
	ErrFrameError      = &Error{DomainIO, "frame error"}
	ErrBufferTooSmall  = &Error{DomainIO, "buffer too small"}
	ErrTimeout         = &Error{DomainIO, "timeout"}
)

// FrameError is returned by Receive for a frame that the hardware marked
// erroneous. The frame has been discarded.
type FrameError struct {
	Flags RxErrorFlags
}

func (e *FrameError) Error() string {
	return "emac: frame error: " + e.Flags.String()
}

func (e *FrameError) Is(target error) bool {
	return target == ErrFrameError
}

func (e *FrameError) Domain() Domain { return DomainIO }

// ErrorDomain returns the domain of err, or 0 if err does not originate
// from this package.
func ErrorDomain(err error) Domain {
	var d interface{ Domain() Domain }
	if errors.As(err, &d) {
		return d.Domain()
	}
	return 0
}

// Temporary reports whether err only signals that the driver is not
// ready yet, so that the same call may succeed later.
func Temporary(err error) bool {
	return errors.Is(err, ErrIncompleteFrame) || errors.Is(err, ErrNoDescriptorsAvailable)
}
