package sampler

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidPeriod is returned by Arm for non-positive periods.
var ErrInvalidPeriod = errors.New("sampler: period must be positive")

// TickerFunc starts a periodic tick source and returns its channel and a
// stop function.
type TickerFunc func(period time.Duration) (<-chan time.Time, func())

func realTicker(period time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(period)
	return t.C, t.Stop
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithTicker replaces the time.Ticker based tick source. Used by tests.
func WithTicker(f TickerFunc) Option {
	return func(s *Sampler) {
		s.newTicker = f
	}
}

// Sampler delivers exactly one Notify per elapsed period to its Notifier.
// If the previous wakeup has not been consumed when the next period elapses
// the new one is dropped and counted as missed; work never accumulates.
type Sampler struct {
	n         *Notifier
	newTicker TickerFunc

	// mu serializes Arm and Disarm. The tick path never takes it.
	mu     sync.Mutex
	period time.Duration
	stop   chan struct{}
	done   chan struct{}

	fired  atomic.Uint64
	missed atomic.Uint64
}

// New creates a disarmed Sampler that signals n.
func New(n *Notifier, opts ...Option) *Sampler {
	s := &Sampler{
		n:         n,
		newTicker: realTicker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm starts delivering wakeups every period. Arming an armed Sampler
// replaces the previous period.
func (s *Sampler) Arm(period time.Duration) error {
	if period <= 0 {
		return ErrInvalidPeriod
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked()

	tick, stopTicker := s.newTicker(period)
	stop := make(chan struct{})
	done := make(chan struct{})
	s.period = period
	s.stop = stop
	s.done = done

	go func() {
		defer close(done)
		defer stopTicker()
		for {
			select {
			case <-stop:
				return
			case <-tick:
				// Checked again so a tick racing with Disarm is not delivered.
				select {
				case <-stop:
					return
				default:
				}
				if s.n.Notify() {
					s.fired.Add(1)
				} else {
					s.missed.Add(1)
				}
			}
		}
	}()
	return nil
}

// Disarm stops delivery. When it returns no further wakeups will be
// observed, including one that was pending but not yet consumed.
func (s *Sampler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

func (s *Sampler) disarmLocked() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
	s.done = nil
	s.period = 0
	s.n.Drain()
}

// Armed reports whether the Sampler is currently delivering wakeups.
func (s *Sampler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// Period returns the armed period, or zero when disarmed.
func (s *Sampler) Period() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}

// Fired returns the number of wakeups delivered.
func (s *Sampler) Fired() uint64 {
	return s.fired.Load()
}

// Missed returns the number of periods whose wakeup was coalesced because
// the previous one had not been consumed.
func (s *Sampler) Missed() uint64 {
	return s.missed.Load()
}
