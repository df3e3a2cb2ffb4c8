package emac

// Speed is the line rate of the link.
type Speed uint8

const (
	SpeedUnknown Speed = iota
	Speed10
	Speed100
)

func (s Speed) String() string {
	switch s {
	case Speed10:
		return "10M"
	case Speed100:
		return "100M"
	}
	return "unknown"
}

type Duplex uint8

const (
	HalfDuplex Duplex = iota
	FullDuplex
)

func (d Duplex) String() string {
	if d == FullDuplex {
		return "full"
	}
	return "half"
}

// Link describes the state of the physical link. Speed and Duplex are
// only meaningful if Up is set.
type Link struct {
	Up     bool
	Speed  Speed
	Duplex Duplex
}

// PHY is implemented by PHY drivers.
type PHY interface {
	// LinkStatus reads the current link state.
	LinkStatus() (Link, error)

	// PollLink reads the link state and reports whether it changed
	// since the previous call.
	PollLink() (l Link, changed bool, err error)
}
