// Package sampler provides the periodic wake source of a sensor loop: a
// one-shot coalescing Notifier and a Sampler that signals it once per period.
package sampler

// Notifier is a non-queuing wakeup from one goroutine to another.
// Notifications sent while one is already pending coalesce into it, so a
// slow consumer never sees a burst of stale wakeups.
type Notifier struct {
	c chan struct{}
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{c: make(chan struct{}, 1)}
}

// Notify posts a wakeup without blocking. It reports false when a wakeup was
// already pending and this one was coalesced.
func (n *Notifier) Notify() bool {
	select {
	case n.c <- struct{}{}:
		return true
	default:
		return false
	}
}

// C returns the channel the consumer waits on.
func (n *Notifier) C() <-chan struct{} {
	return n.c
}

// Drain discards a pending wakeup, if any.
func (n *Notifier) Drain() {
	select {
	case <-n.c:
	default:
	}
}

// Pending reports whether a wakeup is waiting to be consumed.
func (n *Notifier) Pending() bool {
	return len(n.c) > 0
}
