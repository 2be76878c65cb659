// Package ticker provides a fixed-rate ticker that can be paused.
package ticker

import (
	"sync"
	"time"
)

// Pausable delivers ticks at a fixed interval. While paused no ticks are
// delivered; Resume restarts a full interval.
type Pausable struct {
	mu       sync.Mutex
	interval time.Duration
	t        *time.Ticker
	paused   bool
	stopped  bool
}

// NewPausable creates a running ticker.
func NewPausable(interval time.Duration) *Pausable {
	return &Pausable{
		interval: interval,
		t:        time.NewTicker(interval),
	}
}

// C returns the tick channel.
func (p *Pausable) C() <-chan time.Time {
	return p.t.C
}

// Pause stops tick delivery. Pausing twice is a no-op.
func (p *Pausable) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused || p.stopped {
		return
	}
	p.t.Stop()
	p.paused = true
}

// Resume restarts tick delivery one full interval from now.
func (p *Pausable) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused || p.stopped {
		return
	}
	p.t.Reset(p.interval)
	p.paused = false
}

// Paused reports whether the ticker is paused.
func (p *Pausable) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Stop stops the ticker for good.
func (p *Pausable) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.t.Stop()
	p.stopped = true
}
