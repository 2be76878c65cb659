package coalesce

import (
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/lampd/internal/color"
)

func recv(t *testing.T, ch <-chan color.Color) color.Color {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no flush")
		return color.Color{}
	}
}

func expectNone(t *testing.T, ch <-chan color.Color, wait time.Duration) {
	t.Helper()
	select {
	case c := <-ch:
		t.Fatalf("unexpected flush of %s", c.Hex())
	case <-time.After(wait):
	}
}

func TestBurstEmitsLatest(t *testing.T) {
	out := make(chan color.Color, 10)
	l := New(30*time.Millisecond, func(c color.Color) { out <- c })
	defer l.Close()

	for i := 0; i < 5; i++ {
		l.Add(color.Color{R: uint8(i)})
	}

	if got := recv(t, out); got != (color.Color{R: 4}) {
		t.Errorf("flushed %v, want last color of the burst", got)
	}
	expectNone(t, out, 60*time.Millisecond)
}

func TestSeparateBursts(t *testing.T) {
	out := make(chan color.Color, 10)
	l := New(20*time.Millisecond, func(c color.Color) { out <- c })
	defer l.Close()

	l.Add(color.Color{G: 1})
	recv(t, out)
	l.Add(color.Color{G: 2})
	if got := recv(t, out); got.G != 2 {
		t.Errorf("second burst flushed %v", got)
	}
}

func TestFlushNow(t *testing.T) {
	out := make(chan color.Color, 10)
	l := New(time.Hour, func(c color.Color) { out <- c })
	defer l.Close()

	l.Flush() // nothing pending
	expectNone(t, out, 10*time.Millisecond)

	l.Add(color.Color{B: 9})
	l.Flush()
	if got := recv(t, out); got.B != 9 {
		t.Errorf("Flush emitted %v", got)
	}
}

func TestCloseDropsPending(t *testing.T) {
	out := make(chan color.Color, 10)
	l := New(20*time.Millisecond, func(c color.Color) { out <- c })

	l.Add(color.Color{R: 1})
	l.Close()
	l.Add(color.Color{R: 2})
	expectNone(t, out, 60*time.Millisecond)
}

func TestConcurrentFlushesKeepOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []uint8
	)
	l := New(time.Millisecond, func(c color.Color) {
		// Slow consumer widens the gap between taking a value and emitting it.
		time.Sleep(100 * time.Microsecond)
		mu.Lock()
		seen = append(seen, c.R)
		mu.Unlock()
	})
	defer l.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 250; i++ {
			l.Add(color.Color{R: uint8(i)})
			if i%3 == 0 {
				go l.Flush()
			}
			time.Sleep(50 * time.Microsecond)
		}
	}()
	<-done
	l.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatal("nothing flushed")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("flush %d emitted %d after %d", i, seen[i], seen[i-1])
		}
	}
}
