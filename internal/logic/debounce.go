package logic

// DefaultDebounceWindow is the number of consecutive samples a new level must
// hold before it is accepted.
const DefaultDebounceWindow = 2

// Debouncer filters a raw digital signal into stable levels.
//
// A raw sample that differs from the stable level starts (or continues) a
// run; a sample equal to the stable level discards the run. Once a run
// reaches the window length the stable level flips and exactly one edge is
// reported. Bursts shorter than the window never produce an edge.
type Debouncer struct {
	window int
	stable bool
	run    int
}

// NewDebouncer creates a debouncer whose stable level starts at initial.
// A window below 1 is replaced with DefaultDebounceWindow.
func NewDebouncer(window int, initial bool) *Debouncer {
	if window < 1 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{window: window, stable: initial}
}

// Process feeds one raw sample and returns the confirmed edge, if any.
func (d *Debouncer) Process(raw bool) Edge {
	if raw == d.stable {
		d.run = 0
		return EdgeNone
	}

	d.run++
	if d.run < d.window {
		return EdgeNone
	}

	d.stable = raw
	d.run = 0
	if raw {
		return EdgeRising
	}
	return EdgeFalling
}

// Stable returns the current debounced level.
func (d *Debouncer) Stable() bool {
	return d.stable
}

// Window returns the configured window length.
func (d *Debouncer) Window() int {
	return d.window
}
