package lampsync

import "github.com/dokzlo13/lampd/internal/color"

// EventKind names a transition of the engine.
type EventKind string

const (
	EventInitialized   EventKind = "initialized"
	EventRemoteChange  EventKind = "remote_change"
	EventUserEdit      EventKind = "user_edit"
	EventWriteOK       EventKind = "cloud_write_ok"
	EventWriteFailed   EventKind = "cloud_write_failed"
	EventReadFailed    EventKind = "cloud_read_failed"
	EventReadDiscarded EventKind = "read_discarded"
	EventPollUnchanged EventKind = "poll_unchanged"
	EventPollSkipped   EventKind = "poll_skipped"
)

// Event describes one transition. EditID links a user edit to its write result.
type Event struct {
	Kind   EventKind
	Color  color.Color
	EditID string
	Err    error
}

// Recorder observes engine transitions. It is called on the engine loop.
type Recorder interface {
	Record(ev Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ev Event)

// Record calls f(ev).
func (f RecorderFunc) Record(ev Event) { f(ev) }

type nopRecorder struct{}

func (nopRecorder) Record(Event) {}
