package ticker

import (
	"testing"
	"time"
)

func TestPausableTicks(t *testing.T) {
	p := NewPausable(10 * time.Millisecond)
	defer p.Stop()

	select {
	case <-p.C():
	case <-time.After(time.Second):
		t.Fatal("no tick delivered")
	}
}

func TestPauseSuppressesTicks(t *testing.T) {
	p := NewPausable(10 * time.Millisecond)
	defer p.Stop()

	p.Pause()
	p.Pause()
	if !p.Paused() {
		t.Fatal("Paused() = false after Pause")
	}

	select {
	case <-p.C():
		t.Fatal("tick delivered while paused")
	case <-time.After(50 * time.Millisecond):
	}

	p.Resume()
	if p.Paused() {
		t.Fatal("Paused() = true after Resume")
	}
	select {
	case <-p.C():
	case <-time.After(time.Second):
		t.Fatal("no tick after Resume")
	}
}

func TestResumeAfterStopIsNoop(t *testing.T) {
	p := NewPausable(10 * time.Millisecond)
	p.Pause()
	p.Stop()
	p.Resume()

	select {
	case <-p.C():
		t.Fatal("tick delivered after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}
