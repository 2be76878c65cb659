// Package coalesce collapses bursts of color picks into one edit.
package coalesce

import (
	"sync"
	"time"
)

// DefaultWindow matches the rate a picker emits input events while dragging.
const DefaultWindow = 150 * time.Millisecond

// FlushFunc receives the latest value of a burst
type FlushFunc[T any] func(v T)

// Latest flushes the most recent value once the window since the first
// value of a burst has passed. Earlier values of the burst are dropped.
type Latest[T any] struct {
	mu      sync.Mutex
	latest  T
	pending bool
	window  time.Duration
	timer   *time.Timer
	closed  bool

	// flushMu keeps emits in the order their values were taken.
	flushMu sync.Mutex
	onFlush FlushFunc[T]
}

// New creates a Latest collector
func New[T any](window time.Duration, onFlush FlushFunc[T]) *Latest[T] {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Latest[T]{
		window:  window,
		onFlush: onFlush,
	}
}

// Add records v and starts the window timer if no burst is open
func (l *Latest[T]) Add(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.latest = v
	if !l.pending {
		l.pending = true
		l.timer = time.AfterFunc(l.window, l.flush)
	}
}

// Flush emits the pending value now, if any. Used when the picker commits.
func (l *Latest[T]) Flush() {
	l.mu.Lock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.mu.Unlock()
	l.flush()
}

func (l *Latest[T]) flush() {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	v, ok := l.latest, l.pending
	l.pending = false
	l.mu.Unlock()

	if ok {
		l.onFlush(v)
	}
}

// Close stops the timer and drops any pending value
func (l *Latest[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.pending = false
	if l.timer != nil {
		l.timer.Stop()
	}
}
