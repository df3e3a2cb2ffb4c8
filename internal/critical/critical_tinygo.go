//go:build tinygo

package critical

import "runtime/interrupt"

// Mutex masks interrupts while held. Distinct Mutexes may be nested;
// the outermost Unlock restores the interrupt state found by its Lock.
type Mutex struct {
	state interrupt.State
}

func (m *Mutex) Lock() {
	m.state = interrupt.Disable()
}

func (m *Mutex) Unlock() {
	interrupt.Restore(m.state)
}
