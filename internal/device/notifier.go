// Package device pushes colors to the lamp's microcontroller.
// Every notifier is best-effort: Notify never blocks on the network and
// never reports failure.
package device

import (
	"github.com/dokzlo13/lampd/internal/color"
)

// Notifier instructs the physical lamp to adopt a color.
type Notifier interface {
	Notify(c color.Color)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(c color.Color)

// Notify calls f(c).
func (f NotifierFunc) Notify(c color.Color) { f(c) }

// Multi fans a notification out to several notifiers.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(c color.Color) {
	for _, n := range m {
		if n != nil {
			n.Notify(c)
		}
	}
}

// Nop discards notifications.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(color.Color) {}
