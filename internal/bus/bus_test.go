package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"qms/ticketing/internal/clock"
	"qms/ticketing/internal/models"
)

type fakeTransport struct {
	name        string
	publishFunc func(ctx context.Context, frame []byte) error

	mu        sync.Mutex
	published [][]byte
	deliver   func([]byte)
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Publish(ctx context.Context, frame []byte) error {
	if f.publishFunc != nil {
		if err := f.publishFunc(ctx, frame); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, frame)
	return nil
}

func (f *fakeTransport) Subscribe(_ context.Context, deliver func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliver = deliver
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func sampleTicket() models.Ticket {
	return models.Ticket{TicketID: "t1", Code: "P001", ServiceID: "preferencial", Status: models.StatusWaiting, Priority: true}
}

func TestTypedAndWildcardReceiveOnce(t *testing.T) {
	b := New(&fakeTransport{name: "primary"}, &fakeTransport{name: "fallback"})

	var order []string
	b.On(Wildcard, func(Event) { order = append(order, "wildcard") })
	b.On(TypeTicketIssued, func(Event) { order = append(order, "typed-1") })
	b.On(TypeTicketIssued, func(Event) { order = append(order, "typed-2") })
	b.On(TypeTicketCalled, func(Event) { order = append(order, "other") })

	b.Emit(context.Background(), TicketIssued{Ticket: sampleTicket()}, "Kiosk")

	want := []string{"typed-1", "typed-2", "wildcard"}
	if len(order) != len(want) {
		t.Fatalf("handlers ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("handlers ran %v, want %v", order, want)
		}
	}
}

func TestFallbackOnPrimaryFailure(t *testing.T) {
	primary := &fakeTransport{name: "primary", publishFunc: func(context.Context, []byte) error {
		return errors.New("channel closed")
	}}
	fallback := &fakeTransport{name: "fallback"}
	b := New(primary, fallback)

	delivered := 0
	b.On(TypeTicketCalled, func(Event) { delivered++ })
	b.Emit(context.Background(), TicketCalled{Ticket: sampleTicket()}, "Controller")

	if fallback.count() != 1 {
		t.Fatalf("expected fallback publish, got %d", fallback.count())
	}
	if delivered != 1 {
		t.Fatalf("local delivery dropped on transport failure")
	}
}

func TestNilPrimaryUsesFallback(t *testing.T) {
	fallback := &fakeTransport{name: "fallback"}
	b := New(nil, fallback)
	b.Emit(context.Background(), StationUpdated{}, "Stations")
	if fallback.count() != 1 {
		t.Fatalf("expected fallback publish, got %d", fallback.count())
	}
}

func TestEmitSurvivesTotalTransportFailure(t *testing.T) {
	failing := func(context.Context, []byte) error { return errors.New("down") }
	b := New(&fakeTransport{name: "p", publishFunc: failing}, &fakeTransport{name: "f", publishFunc: failing})

	delivered := false
	b.On(Wildcard, func(Event) { delivered = true })
	b.Emit(context.Background(), TicketFinished{Ticket: sampleTicket()}, "Controller")
	if !delivered {
		t.Fatalf("local delivery dropped")
	}
}

func TestEmitDropsNilPayload(t *testing.T) {
	primary := &fakeTransport{name: "p"}
	b := New(primary, nil)

	delivered := false
	b.On(Wildcard, func(Event) { delivered = true })
	event := b.Emit(context.Background(), nil, "Controller")
	if event != (Event{}) {
		t.Fatalf("expected zero event, got %+v", event)
	}
	if delivered || primary.count() != 0 {
		t.Fatalf("nil payload reached handlers or transport")
	}
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	b := New(nil, nil)
	ran := false
	b.On(TypeTicketIssued, func(Event) { panic("boom") })
	b.On(TypeTicketIssued, func(Event) { ran = true })
	b.Emit(context.Background(), TicketIssued{Ticket: sampleTicket()}, "Kiosk")
	if !ran {
		t.Fatalf("second handler skipped after panic")
	}
}

func TestUnsubscribeAndRemoveAll(t *testing.T) {
	b := New(nil, nil)
	count := 0
	sub := b.On(TypeTicketIssued, func(Event) { count++ })
	b.On(Wildcard, func(Event) { count += 10 })

	sub.Unsubscribe()
	sub.Unsubscribe()
	b.Emit(context.Background(), TicketIssued{Ticket: sampleTicket()}, "Kiosk")
	if count != 10 {
		t.Fatalf("expected only wildcard delivery, got %d", count)
	}

	b.RemoveAllListeners()
	b.Emit(context.Background(), TicketIssued{Ticket: sampleTicket()}, "Kiosk")
	if count != 10 {
		t.Fatalf("handlers ran after RemoveAllListeners")
	}
}

func TestRemoteFramesDeliveredOwnEchoDropped(t *testing.T) {
	ctx := context.Background()
	shared := &fakeTransport{name: "shared"}
	sender := New(shared, nil, WithInstanceID("a"))
	receiver := New(&fakeTransport{name: "r"}, nil, WithInstanceID("b"))

	var got []Event
	receiver.On(TypeTicketCalled, func(e Event) { got = append(got, e) })
	if err := receiver.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	sender.Emit(ctx, TicketCalled{Ticket: sampleTicket()}, "Controller")
	frame := shared.published[0]

	receiverTransport := receiver.primary.(*fakeTransport)
	receiverTransport.deliver(frame)
	if len(got) != 1 || got[0].Source != "Controller" {
		t.Fatalf("remote event not delivered: %+v", got)
	}
	ticket, ok := TicketOf(got[0].Data)
	if !ok || ticket.Code != "P001" {
		t.Fatalf("unexpected payload %+v", got[0].Data)
	}

	echoed := 0
	sender.On(TypeTicketCalled, func(Event) { echoed++ })
	if err := sender.Start(ctx); err != nil {
		t.Fatalf("start sender: %v", err)
	}
	shared.deliver(frame)
	if echoed != 0 {
		t.Fatalf("own frame was delivered again")
	}
}

func TestTimestampsStrictlyIncrease(t *testing.T) {
	fake := clock.NewFake(time.UnixMilli(1_700_000_000_000))
	b := New(nil, nil, WithClock(fake))

	first := b.Emit(context.Background(), TicketIssued{Ticket: sampleTicket()}, "Kiosk")
	second := b.Emit(context.Background(), TicketIssued{Ticket: sampleTicket()}, "Kiosk")
	if second.Timestamp <= first.Timestamp {
		t.Fatalf("timestamps not increasing: %d then %d", first.Timestamp, second.Timestamp)
	}
	if first.Timestamp != 1_700_000_000_000 {
		t.Fatalf("unexpected first timestamp %d", first.Timestamp)
	}
}
