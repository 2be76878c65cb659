// Package script runs optional Lua hooks on color changes.
//
// A script may define two global functions:
//
//	function on_init(c) end    -- first color read from the cloud
//	function on_change(c) end  -- every later color
//
// c is a table with r, g, b, hex and decimal fields. The "log" module
// exposes zerolog to the script and the "lamp" module lets it pick a color.
package script

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lampd/internal/color"
)

// Hook names looked up in the script's globals.
const (
	HookInit   = "on_init"
	HookChange = "on_change"
)

// Work is executed on the Lua VM goroutine. All Lua access goes through it.
type Work func(ctx context.Context)

// SetColorFunc applies a color chosen by the script.
type SetColorFunc func(ctx context.Context, c color.Color) error

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L        *lua.LState
	setColor SetColorFunc

	workQueue chan Work

	// Closed to tell senders to stop. workQueue is never closed.
	closing   chan struct{}
	closeOnce sync.Once

	// started is claimed by the first Run, or by Close when Run never ran.
	// Whoever claims it owns closing the Lua state.
	started atomic.Bool
}

// NewRuntime creates a Lua runtime. setColor may be nil, in which case
// lamp.set raises an error in the script.
func NewRuntime(setColor SetColorFunc) *Runtime {
	r := &Runtime{
		L:         lua.NewState(),
		setColor:  setColor,
		workQueue: make(chan Work, 100),
		closing:   make(chan struct{}),
	}

	r.L.PreloadModule("log", NewLogModule().Loader)
	r.L.PreloadModule("lamp", r.lampLoader)

	return r
}

// Close signals the runtime to stop accepting new work. The Lua state is
// closed by Run once it has drained the queue, or right here if Run was
// never started.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
	if r.started.CompareAndSwap(false, true) {
		r.L.Close()
	}
}

// Do queues work to be executed on the Lua VM (non-blocking).
// Returns false if the runtime is closing, the queue is full, or ctx is done.
func (r *Runtime) Do(ctx context.Context, work Work) bool {
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	default:
	}

	select {
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// Run is the only goroutine that touches Lua. Exits when ctx is cancelled
// or the runtime is closed. It returns at once if the runtime already ran
// or was closed.
func (r *Runtime) Run(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	defer r.L.Close()
	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			r.drainQueue(ctx)
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

func (r *Runtime) executeWork(ctx context.Context, work Work) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadFile executes a Lua script (must be called before Run)
func (r *Runtime) LoadFile(path string) error {
	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().
		Bool("on_init", r.hasHook(HookInit)).
		Bool("on_change", r.hasHook(HookChange)).
		Msg("Lua script loaded successfully")
	return nil
}

// LoadString executes Lua source (must be called before Run)
func (r *Runtime) LoadString(src string) error {
	if err := r.L.DoString(src); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}
	return nil
}

// OnInit queues the on_init hook for c
func (r *Runtime) OnInit(ctx context.Context, c color.Color) bool {
	return r.Do(ctx, func(context.Context) { r.callHook(HookInit, c) })
}

// OnChange queues the on_change hook for c
func (r *Runtime) OnChange(ctx context.Context, c color.Color) bool {
	return r.Do(ctx, func(context.Context) { r.callHook(HookChange, c) })
}

func (r *Runtime) hasHook(name string) bool {
	_, ok := r.L.GetGlobal(name).(*lua.LFunction)
	return ok
}

func (r *Runtime) callHook(name string, c color.Color) {
	fn, ok := r.L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return
	}

	err := r.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, colorTable(r.L, c))
	if err != nil {
		log.Error().Err(err).Str("hook", name).Str("color", c.Hex()).Msg("Lua hook failed")
	}
}

func colorTable(L *lua.LState, c color.Color) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "r", lua.LNumber(c.R))
	L.SetField(t, "g", lua.LNumber(c.G))
	L.SetField(t, "b", lua.LNumber(c.B))
	L.SetField(t, "hex", lua.LString(c.Hex()))
	L.SetField(t, "decimal", lua.LString(c.Decimal()))
	return t
}
