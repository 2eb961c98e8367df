package gpio

import (
	"errors"
	"testing"
)

var (
	_ Pin    = (*FakePin)(nil)
	_ Pin    = (*RealPin)(nil)
	_ Output = (*FakeOutput)(nil)
	_ Output = (*RealOutput)(nil)
)

func TestFakePinGet(t *testing.T) {
	f := NewFakePin(true, false, true)

	want := []bool{true, false, true, true} // last level repeats
	for i, w := range want {
		got, err := f.Get()
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("read %d: expected %v, got %v", i, w, got)
		}
	}
}

func TestFakePinNoLevels(t *testing.T) {
	f := NewFakePin()

	_, err := f.Get()
	if err == nil {
		t.Error("expected error with no levels")
	}
}

func TestFakePinError(t *testing.T) {
	f := NewFakePin(true)
	f.ReadError = errors.New("simulated error")

	_, err := f.Get()
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakePinCloseAndReset(t *testing.T) {
	f := NewFakePin(true, false)

	f.Get()
	if f.Reads() != 1 {
		t.Errorf("expected 1 read, got %d", f.Reads())
	}

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if f.Closed {
		t.Error("closed should be reset")
	}
	got, _ := f.Get()
	if got != true {
		t.Errorf("after reset: expected true, got %v", got)
	}
}

func TestFakeOutputRecordsWrites(t *testing.T) {
	f := NewFakeOutput()

	if _, ok := f.Level(); ok {
		t.Error("expected no level before first write")
	}

	f.SetLevel(true)
	f.SetLevel(true)
	f.SetLevel(false)

	if f.WriteCount() != 3 {
		t.Errorf("expected 3 writes, got %d", f.WriteCount())
	}
	level, ok := f.Level()
	if !ok || level {
		t.Errorf("expected last level false, got %v (written=%v)", level, ok)
	}
}

func TestFakeOutputWriteError(t *testing.T) {
	f := NewFakeOutput()
	f.WriteError = errors.New("stuck relay")

	if err := f.SetLevel(true); err == nil {
		t.Error("expected write error")
	}
	if f.WriteCount() != 1 {
		t.Errorf("failed write should still be recorded, got %d", f.WriteCount())
	}
}
