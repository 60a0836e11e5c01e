package session

import (
	"sync"
	"time"
)

// DefaultIdleTimeout is the collection window's idle deadline: the time
// allowed between processed events before the session closes.
const DefaultIdleTimeout = 30 * time.Second

// Window is the cancellable, resettable, time-boxed countdown that bounds a
// session's message collection. The idle deadline restarts on every
// collected event and on explicit Reset calls (which bridge generation
// latency). When the deadline elapses the expiry callback fires exactly
// once with the collected count; after that, or after Close, the window is
// inert and further Collect/Reset calls are no-ops.
type Window struct {
	mu        sync.Mutex
	timer     *time.Timer
	idle      time.Duration
	deadline  time.Time
	collected int
	done      bool
}

// OpenWindow starts a window with the given idle deadline. onExpire runs on
// the timer goroutine; it is never invoked after Close.
func OpenWindow(idle time.Duration, onExpire func(collected int)) *Window {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	w := &Window{idle: idle, deadline: time.Now().Add(idle)}
	w.timer = time.AfterFunc(idle, func() {
		w.mu.Lock()
		if w.done {
			w.mu.Unlock()
			return
		}
		// A Collect or Reset may have won the lock between the timer firing
		// and this callback running; honor the extended deadline.
		if remaining := time.Until(w.deadline); remaining > 0 {
			w.timer.Reset(remaining)
			w.mu.Unlock()
			return
		}
		w.done = true
		n := w.collected
		w.mu.Unlock()
		onExpire(n)
	})
	return w
}

// Collect records one gathered event and restarts the idle countdown.
// Returns false once the window has expired or been closed.
func (w *Window) Collect() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return false
	}
	w.collected++
	w.deadline = time.Now().Add(w.idle)
	w.timer.Reset(w.idle)
	return true
}

// Reset restarts the idle countdown from now. Callable any number of times;
// no effect once expired or closed.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.deadline = time.Now().Add(w.idle)
	w.timer.Reset(w.idle)
}

// Close cancels the window without firing the expiry callback.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.done = true
	w.timer.Stop()
}

// Collected returns the number of events gathered so far.
func (w *Window) Collected() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.collected
}

// Done reports whether the window has expired or been closed.
func (w *Window) Done() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}
