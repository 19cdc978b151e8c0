package common

import (
	"sync"
	"time"
)

// Watchdog closes its Done channel when no row progress is reported within the
// timeout. A zero or negative timeout makes it inert.
type Watchdog struct {
	timeout time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	doneCh  chan struct{}
	once    sync.Once
	started bool
	rows    int64
}

// NewWatchdog creates a new Watchdog.
func NewWatchdog(timeout time.Duration) *Watchdog {
	return &Watchdog{
		timeout: timeout,
		doneCh:  make(chan struct{}),
	}
}

// Start arms the timer. Calling Start more than once has no effect.
func (w *Watchdog) Start() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return w.doneCh
	}
	w.started = true
	if w.timeout > 0 {
		w.timer = time.AfterFunc(w.timeout, w.fire)
	}
	return w.doneCh
}

// Kick records progress and pushes the deadline out by one timeout.
func (w *Watchdog) Kick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.rows++
	if w.timer == nil || w.Expired() {
		return
	}
	w.timer.Reset(w.timeout)
}

// Stop disarms the timer.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
}

// Expired reports whether the timeout has fired.
func (w *Watchdog) Expired() bool {
	select {
	case <-w.doneCh:
		return true
	default:
		return false
	}
}

// Done returns the channel that is closed on timeout.
func (w *Watchdog) Done() <-chan struct{} {
	return w.doneCh
}

// Timeout returns the configured timeout.
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

// Kicks returns how many times progress was reported.
func (w *Watchdog) Kicks() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

func (w *Watchdog) fire() {
	w.once.Do(func() {
		close(w.doneCh)
	})
}
