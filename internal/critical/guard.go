package critical

// Guarded holds a value that is only reachable while its critical
// section is held.
type Guarded[T any] struct {
	mu Mutex
	v  T
}

// With runs f with exclusive access to the guarded value. The pointer
// must not be retained after f returns.
func (g *Guarded[T]) With(f func(v *T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f(&g.v)
}
