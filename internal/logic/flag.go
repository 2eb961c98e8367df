package logic

import "sync/atomic"

// Flag is a single shared bit flipped by input handlers and read by workers.
// Every operation is one atomic instruction sequence; no lock is involved,
// so it is safe to flip from an interrupt-style callback.
type Flag struct {
	v atomic.Bool
}

// NewFlag returns a Flag holding initial.
func NewFlag(initial bool) *Flag {
	f := &Flag{}
	f.v.Store(initial)
	return f
}

// Load returns the current value.
func (f *Flag) Load() bool {
	return f.v.Load()
}

// Store sets the value.
func (f *Flag) Store(v bool) {
	f.v.Store(v)
}

// Toggle flips the value and returns the new one.
func (f *Flag) Toggle() bool {
	for {
		old := f.v.Load()
		if f.v.CompareAndSwap(old, !old) {
			return !old
		}
	}
}
