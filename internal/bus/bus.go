// Package bus delivers domain events to local subscribers and, through a
// Transport, to every other running context.
package bus

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"qms/ticketing/internal/clock"
)

type Handler func(Event)

type Bus struct {
	primary  Transport
	fallback Transport
	clock    clock.Clock
	instance string

	mu       sync.RWMutex
	nextID   uint64
	handlers map[Type][]subscriber

	stampMu sync.Mutex
	last    int64
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Subscription identifies one registered handler.
type Subscription struct {
	bus *Bus
	typ Type
	id  uint64
}

// Unsubscribe removes the handler. It is safe to call more than once.
func (s Subscription) Unsubscribe() {
	if s.bus != nil {
		s.bus.Off(s)
	}
}

type Option func(*Bus)

func WithClock(c clock.Clock) Option {
	return func(b *Bus) { b.clock = c }
}

// WithInstanceID overrides the generated id used to drop this context's own
// frames when a transport echoes them back.
func WithInstanceID(id string) Option {
	return func(b *Bus) { b.instance = id }
}

// New builds a bus. primary may be nil when the broadcast transport could not
// be set up; events then go straight to fallback.
func New(primary, fallback Transport, opts ...Option) *Bus {
	b := &Bus{
		primary:  primary,
		fallback: fallback,
		clock:    clock.Real(),
		instance: uuid.NewString(),
		handlers: make(map[Type][]subscriber),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) InstanceID() string { return b.instance }

// Start subscribes to the transports. A transport that fails to subscribe is
// logged and skipped.
func (b *Bus) Start(ctx context.Context) error {
	var started int
	for _, t := range b.transports() {
		if err := t.Subscribe(ctx, b.receive); err != nil {
			log.Printf("bus subscribe failed transport=%s err=%v", t.Name(), err)
			continue
		}
		started++
	}
	if started == 0 && len(b.transports()) > 0 {
		return errors.New("bus: no transport could subscribe")
	}
	return nil
}

// Emit publishes payload to other contexts and then runs local handlers.
// Transport failures are logged, never returned.
func (b *Bus) Emit(ctx context.Context, payload Payload, source string) Event {
	if payload == nil {
		log.Printf("bus emit dropped nil payload source=%s", source)
		return Event{}
	}
	event := Event{
		Type:      payload.Type(),
		Data:      payload,
		Timestamp: b.stamp(),
		Source:    source,
	}

	frame, err := encodeWire(event, b.instance)
	if err != nil {
		log.Printf("bus encode failed type=%s err=%v", event.Type, err)
	} else {
		b.fanOut(ctx, event, frame)
	}

	b.dispatch(event)
	return event
}

func (b *Bus) fanOut(ctx context.Context, event Event, frame []byte) {
	if b.primary != nil {
		err := b.primary.Publish(ctx, frame)
		if err == nil {
			return
		}
		log.Printf("bus publish failed transport=%s type=%s err=%v", b.primary.Name(), event.Type, err)
	}
	if b.fallback == nil {
		return
	}
	if err := b.fallback.Publish(ctx, frame); err != nil {
		log.Printf("bus publish failed transport=%s type=%s err=%v", b.fallback.Name(), event.Type, err)
	}
}

// On registers handler for t, or for every type when t is Wildcard.
func (b *Bus) On(t Type, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[t] = append(b.handlers[t], subscriber{id: b.nextID, handler: handler})
	return Subscription{bus: b, typ: t, id: b.nextID}
}

func (b *Bus) Off(s Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[s.typ]
	for i, sub := range subs {
		if sub.id == s.id {
			b.handlers[s.typ] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) RemoveAllListeners() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[Type][]subscriber)
}

// Close drops every handler and closes the transports.
func (b *Bus) Close() error {
	b.RemoveAllListeners()
	var errs []error
	for _, t := range b.transports() {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) transports() []Transport {
	var out []Transport
	if b.primary != nil {
		out = append(out, b.primary)
	}
	if b.fallback != nil {
		out = append(out, b.fallback)
	}
	return out
}

func (b *Bus) receive(frame []byte) {
	event, sender, err := decodeWire(frame)
	if err != nil {
		log.Printf("bus drop frame err=%v", err)
		return
	}
	if sender == b.instance {
		return
	}
	b.dispatch(event)
}

func (b *Bus) dispatch(event Event) {
	b.mu.RLock()
	typed := b.handlers[event.Type]
	wildcard := b.handlers[Wildcard]
	targets := make([]subscriber, 0, len(typed)+len(wildcard))
	targets = append(targets, typed...)
	targets = append(targets, wildcard...)
	b.mu.RUnlock()

	for _, sub := range targets {
		invoke(sub.handler, event)
	}
}

func invoke(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bus handler panic type=%s source=%s panic=%v", event.Type, event.Source, r)
		}
	}()
	h(event)
}

// stamp returns the current time in milliseconds, bumped so that it is
// strictly greater than the previous stamp.
func (b *Bus) stamp() int64 {
	now := b.clock.Now().UnixMilli()
	b.stampMu.Lock()
	defer b.stampMu.Unlock()
	if now <= b.last {
		now = b.last + 1
	}
	b.last = now
	return now
}
