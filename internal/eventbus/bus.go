// Package eventbus fans color changes out to presentation subscribers
// (websocket clients, console swatch, Lua hooks).
package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/color"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeColorInitialized carries the first color read from the cloud.
	EventTypeColorInitialized EventType = "color_initialized"
	// EventTypeColorChanged carries every later color, user edits and remote changes alike.
	EventTypeColorChanged EventType = "color_changed"
)

// Default configuration. One worker keeps delivery in publish order.
const (
	DefaultWorkerCount = 1
	DefaultQueueSize   = 100
)

// Event represents an event in the system
type Event struct {
	Type  EventType
	Color color.Color
}

// Handler is a function that handles events
type Handler func(Event)

// work represents a unit of work for the worker pool
type work struct {
	event   Event
	handler Handler
}

// Bus provides event routing with a bounded worker pool
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler

	workQueue chan work
	wg        sync.WaitGroup

	// Closed to tell publishers to stop before the work queue is closed.
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a new event bus with default settings
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a new event bus with custom worker count and queue size
func NewWithConfig(workerCount, queueSize int) *Bus {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	b := &Bus{
		handlers:  make(map[EventType][]Handler),
		workQueue: make(chan work, queueSize),
		closing:   make(chan struct{}),
	}

	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for w := range b.workQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event_type", string(w.event.Type)).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(w.event)
		}()
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for both color event types
func (b *Bus) SubscribeAll(handler Handler) {
	b.Subscribe(EventTypeColorInitialized, handler)
	b.Subscribe(EventTypeColorChanged, handler)
}

// Publish sends an event to all subscribed handlers.
// Non-blocking: if the work queue is full or the bus is closing, the event is dropped.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	for _, handler := range handlers {
		select {
		case <-b.closing:
			log.Warn().Str("event_type", string(event.Type)).Msg("Event bus closing, dropping event")
			return
		default:
		}

		select {
		case b.workQueue <- work{event: event, handler: handler}:
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Str("color", event.Color.Hex()).
				Msg("Event bus queue full, dropping event")
		}
	}
}

// Close shuts down the worker pool gracefully.
// Publish must not be called concurrently with Close.
func (b *Bus) Close(ctx context.Context) {
	first := false
	b.closeOnce.Do(func() {
		close(b.closing)
		first = true
	})
	if !first {
		return
	}

	close(b.workQueue)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}

// Presenter publishes the engine's presentation calls onto the bus.
type Presenter struct {
	bus *Bus
}

// NewPresenter creates a Presenter publishing to bus
func NewPresenter(bus *Bus) *Presenter {
	return &Presenter{bus: bus}
}

// Init publishes the first color.
func (p *Presenter) Init(c color.Color) {
	p.bus.Publish(Event{Type: EventTypeColorInitialized, Color: c})
}

// Update publishes a color change.
func (p *Presenter) Update(c color.Color) {
	p.bus.Publish(Event{Type: EventTypeColorChanged, Color: c})
}
