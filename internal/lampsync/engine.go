// Package lampsync keeps the lamp color consistent between the cloud property,
// the local device and whoever is watching the preview.
//
// All state transitions run on a single loop goroutine. Network calls run in
// helper goroutines and post their results back to the loop, so State is
// never shared.
package lampsync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/color"
	"github.com/dokzlo13/lampd/internal/device"
)

var (
	// ErrNotReady is returned for edits that arrive before the first cloud read.
	ErrNotReady = errors.New("lampsync: no color loaded yet")

	// ErrStopped is returned when the engine loop is not running anymore.
	ErrStopped = errors.New("lampsync: engine stopped")
)

// DefaultPollInterval keeps polling under the cloud API rate limit.
const DefaultPollInterval = 10 * time.Second

// Cloud is the property that stores the color remotely.
type Cloud interface {
	Read(ctx context.Context) (color.Color, error)
	Write(ctx context.Context, c color.Color) error
}

// Presenter renders the current color. Init is called exactly once, with the
// first color read from the cloud; Update for every later change.
// Both are called from the engine loop and must not block.
type Presenter interface {
	Init(c color.Color)
	Update(c color.Color)
}

// Ticker drives polling. The engine pauses it while a write is pending.
type Ticker interface {
	C() <-chan time.Time
	Pause()
	Resume()
	Stop()
}

// State is the engine's view of the lamp.
type State struct {
	Current        color.Color
	LastKnownCloud *color.Color
	PendingWrite   bool
	Initialized    bool
}

func (s State) clone() State {
	if s.LastKnownCloud != nil {
		c := *s.LastKnownCloud
		s.LastKnownCloud = &c
	}
	return s
}

// Deps are the engine collaborators. Recorder is optional.
type Deps struct {
	Cloud     Cloud
	Notifier  device.Notifier
	Presenter Presenter
	Ticker    Ticker
	Recorder  Recorder
}

type work func(ctx context.Context)

// Engine is the color synchronization state machine.
type Engine struct {
	cloud     Cloud
	notifier  device.Notifier
	presenter Presenter
	ticker    Ticker
	recorder  Recorder

	// Loop-owned state.
	state     State
	inflight  int
	reading   bool
	edits     uint64
	lastWrite chan struct{}

	work    chan work
	stopped chan struct{}
}

// New creates an engine. It does nothing until Run is called.
func New(deps Deps) *Engine {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = device.Nop{}
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Engine{
		cloud:     deps.Cloud,
		notifier:  notifier,
		presenter: deps.Presenter,
		ticker:    deps.Ticker,
		recorder:  recorder,
		work:      make(chan work, 16),
		stopped:   make(chan struct{}),
	}
}

// Run polls once immediately and then on every tick, and serves edits,
// until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)
	defer e.ticker.Stop()

	log.Info().Msg("Color sync started")
	e.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Color sync stopping")
			return nil
		case <-e.ticker.C():
			e.poll(ctx)
		case w := <-e.work:
			w(ctx)
		}
	}
}

// UserEdit applies a color chosen by the user. It returns once the local
// state and the preview reflect c; the cloud write completes in the background.
func (e *Engine) UserEdit(ctx context.Context, c color.Color) error {
	return e.call(ctx, func(loopCtx context.Context) error {
		return e.applyUserEdit(loopCtx, c)
	})
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot(ctx context.Context) (State, error) {
	var out State
	err := e.call(ctx, func(context.Context) error {
		out = e.state.clone()
		return nil
	})
	return out, err
}

// call runs fn on the loop and waits for its result. ctx only bounds the
// handoff: once the loop has taken fn its outcome is always reported.
func (e *Engine) call(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	w := work(func(loopCtx context.Context) { done <- fn(loopCtx) })

	select {
	case e.work <- w:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-e.stopped:
		return ErrStopped
	}
}

// post hands a result back to the loop. Only helper goroutines call this.
func (e *Engine) post(w work) {
	select {
	case e.work <- w:
	case <-e.stopped:
	}
}

func (e *Engine) applyUserEdit(ctx context.Context, c color.Color) error {
	if !e.state.Initialized {
		return ErrNotReady
	}

	editID := uuid.NewString()
	e.edits++

	// Local state first, so the preview never lags behind the network.
	e.state.Current = c
	e.presenter.Update(c)

	e.inflight++
	e.state.PendingWrite = true
	e.ticker.Pause()

	log.Info().Str("color", c.Hex()).Str("edit", editID).Msg("User changed color")
	e.recorder.Record(Event{Kind: EventUserEdit, Color: c, EditID: editID})

	e.startWrite(ctx, editID, c)

	// The device follows user intent whatever happens to the cloud write.
	e.notifier.Notify(c)
	return nil
}

// startWrite queues the cloud write behind any earlier one so writes land in
// edit order.
func (e *Engine) startWrite(ctx context.Context, editID string, c color.Color) {
	prev := e.lastWrite
	done := make(chan struct{})
	e.lastWrite = done

	go func() {
		defer close(done)
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				return
			}
		}
		err := e.cloud.Write(ctx, c)
		e.post(func(context.Context) { e.finishWrite(editID, c, err) })
	}()
}

func (e *Engine) finishWrite(editID string, c color.Color, err error) {
	e.inflight--

	if err != nil {
		// The cloud keeps whatever it had; forget our guess so the next poll
		// reconciles to it.
		e.state.LastKnownCloud = nil
		log.Error().Err(err).Str("color", c.Hex()).Str("edit", editID).Msg("Failed to update color")
		e.recorder.Record(Event{Kind: EventWriteFailed, Color: c, EditID: editID, Err: err})
	} else {
		written := c
		e.state.LastKnownCloud = &written
		log.Info().Str("color", c.Hex()).Str("edit", editID).Msg("Color updated")
		e.recorder.Record(Event{Kind: EventWriteOK, Color: c, EditID: editID})
	}

	if e.inflight == 0 {
		e.state.PendingWrite = false
		e.ticker.Resume()
	}
}

func (e *Engine) poll(ctx context.Context) {
	if e.state.PendingWrite {
		log.Debug().Msg("Write pending, skipping poll")
		e.recorder.Record(Event{Kind: EventPollSkipped})
		return
	}
	if e.reading {
		log.Debug().Msg("Previous read still in flight, skipping poll")
		e.recorder.Record(Event{Kind: EventPollSkipped})
		return
	}

	e.reading = true
	issuedAt := e.edits
	go func() {
		c, err := e.cloud.Read(ctx)
		e.post(func(context.Context) { e.finishRead(issuedAt, c, err) })
	}()
}

func (e *Engine) finishRead(issuedAt uint64, c color.Color, err error) {
	e.reading = false

	if err != nil {
		log.Warn().Err(err).Msg("Failed to read cloud color")
		e.recorder.Record(Event{Kind: EventReadFailed, Err: err})
		return
	}

	// The user edited while this read was in flight; its value predates the edit.
	if e.edits != issuedAt || e.state.PendingWrite {
		log.Debug().Str("color", c.Hex()).Msg("Discarding read that raced a user edit")
		e.recorder.Record(Event{Kind: EventReadDiscarded, Color: c})
		return
	}

	if e.state.LastKnownCloud != nil && *e.state.LastKnownCloud == c {
		e.recorder.Record(Event{Kind: EventPollUnchanged, Color: c})
		return
	}

	observed := c
	e.state.Current = c
	e.state.LastKnownCloud = &observed

	if !e.state.Initialized {
		e.state.Initialized = true
		log.Info().Str("color", c.Hex()).Msg("Initial color loaded from cloud")
		e.presenter.Init(c)
		e.recorder.Record(Event{Kind: EventInitialized, Color: c})
		return
	}

	log.Info().Str("color", c.Hex()).Msg("Cloud color changed remotely")
	e.presenter.Update(c)
	e.notifier.Notify(c)
	e.recorder.Record(Event{Kind: EventRemoteChange, Color: c})
}
