//go:build !tinygo

// Package critical provides the critical section shared between
// foreground code and interrupt handlers.
//
// On a microcontroller a critical section masks interrupts. On a host,
// where the interrupt context is emulated by another goroutine, it is a
// sync.Mutex.
package critical

import "sync"

type Mutex struct {
	mu sync.Mutex
}

func (m *Mutex) Lock() {
	m.mu.Lock()
}

func (m *Mutex) Unlock() {
	m.mu.Unlock()
}
