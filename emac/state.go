package emac

// State is the lifecycle state of an Emac.
type State uint8

const (
	StateUninitialized State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "invalid"
}

// canTransition reports whether the state machine permits from → to.
// Leaving StateUninitialized additionally requires a successful Init,
// which is checked by the caller.
func canTransition(from, to State) bool {
	switch to {
	case StateRunning:
		return from == StateUninitialized || from == StateStopped
	case StateStopped:
		return from == StateRunning
	}
	return false
}
