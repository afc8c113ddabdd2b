package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/requisition-approval/internal/domain/event"
)

// Dispatcher fans committed domain events out to their subscribers.
//
// Handlers for a type run in subscription order, followed by the handlers
// subscribed to every event. A failing handler does not stop the others;
// their errors are joined.
type Dispatcher interface {
	Subscribe(eventType event.Type, name string, handler Handler)
	// SubscribeAll registers a handler for every event type
	SubscribeAll(name string, handler Handler)
	Unsubscribe(name string)
	Dispatch(ctx context.Context, evt *event.Event) error
	// Handlers lists the handler names that would receive eventType
	Handlers(eventType event.Type) []string
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	byType   map[event.Type][]Registration
	wildcard []Registration
	logger   Logger
	inflight sync.WaitGroup
	closed   atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		byType: make(map[event.Type][]Registration),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	d.byType[eventType] = append(d.byType[eventType], Registration{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})
	d.mu.Unlock()

	d.info("Handler registered", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) SubscribeAll(name string, handler Handler) {
	d.mu.Lock()
	d.wildcard = append(d.wildcard, Registration{Name: name, Handler: handler})
	d.mu.Unlock()

	d.info("Handler registered", "event_type", "*", "handler_name", name)
}

// Unsubscribe removes every registration with the given name
func (d *eventDispatcher) Unsubscribe(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for t, regs := range d.byType {
		d.byType[t] = without(regs, name)
	}
	d.wildcard = without(d.wildcard, name)
}

func without(regs []Registration, name string) []Registration {
	kept := regs[:0:0]
	for _, r := range regs {
		if r.Name != name {
			kept = append(kept, r)
		}
	}
	return kept
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return fmt.Errorf("dispatcher is closed")
	}
	if !evt.Type.IsValid() {
		return fmt.Errorf("unknown event type %q", evt.Type)
	}

	d.inflight.Add(1)
	defer d.inflight.Done()

	regs := d.registrations(evt.Type)
	d.info("Dispatching event",
		"event_type", evt.Type,
		"event_id", evt.ID,
		"requisition_id", evt.RequisitionID,
		"handler_count", len(regs),
	)

	var errs []error
	for _, reg := range regs {
		if err := d.safeExecute(ctx, evt, reg); err != nil {
			if d.logger != nil {
				d.logger.Error("Handler error",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", reg.Name,
					"error", err,
				)
			}
			errs = append(errs, fmt.Errorf("handler %s failed: %w", reg.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *eventDispatcher) registrations(eventType event.Type) []Registration {
	d.mu.RLock()
	defer d.mu.RUnlock()

	regs := make([]Registration, 0, len(d.byType[eventType])+len(d.wildcard))
	regs = append(regs, d.byType[eventType]...)
	return append(regs, d.wildcard...)
}

func (d *eventDispatcher) Handlers(eventType event.Type) []string {
	regs := d.registrations(eventType)
	names := make([]string, len(regs))
	for i, r := range regs {
		names[i] = r.Name
	}
	return names
}

// Close rejects further events and waits for in-flight dispatches
func (d *eventDispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatcher already closed")
	}
	d.inflight.Wait()
	d.info("Dispatcher closed")
	return nil
}

func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, reg Registration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return reg.Handler(ctx, evt)
}

func (d *eventDispatcher) info(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}
