package gpio

import (
	"errors"
	"sync"
)

// FakePin is a test double that returns scripted input levels.
type FakePin struct {
	mu sync.Mutex

	// Levels contains scripted levels to return.
	// Each call to Get() consumes the next level.
	Levels []bool

	// index tracks current position in Levels
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Get()
	ReadError error
}

// NewFakePin creates a FakePin with the given levels.
func NewFakePin(levels ...bool) *FakePin {
	return &FakePin{Levels: levels}
}

// Get returns the next scripted level.
// If levels are exhausted, returns the last level repeatedly.
func (f *FakePin) Get() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return false, f.ReadError
	}

	if len(f.Levels) == 0 {
		return false, errors.New("no levels configured")
	}

	level := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return level, nil
}

// Reads returns how many levels have been consumed.
func (f *FakePin) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index
}

// Close marks the pin as closed.
func (f *FakePin) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset resets the pin to the beginning of levels.
func (f *FakePin) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.Closed = false
}

// FakeOutput is a test double that records every level written.
type FakeOutput struct {
	mu sync.Mutex

	// Writes contains every level passed to SetLevel, in order.
	Writes []bool

	// WriteError, if set, will be returned by SetLevel (the write is still recorded).
	WriteError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeOutput creates an empty FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// SetLevel records the level.
func (f *FakeOutput) SetLevel(level bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = append(f.Writes, level)
	return f.WriteError
}

// Level returns the last written level and whether anything was written.
func (f *FakeOutput) Level() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Writes) == 0 {
		return false, false
	}
	return f.Writes[len(f.Writes)-1], true
}

// WriteCount returns how many times SetLevel was called.
func (f *FakeOutput) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Writes)
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
