//go:build tinygo

package volatile

import "runtime/volatile"

// Register32 is a 32-bit word of memory shared with a bus master.
type Register32 = volatile.Register32
