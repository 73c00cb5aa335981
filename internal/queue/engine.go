// Package queue issues tickets, selects the next ticket for a station and
// moves tickets through their lifecycle. Every mutation is written to the
// shared ticket store before its event is published.
package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"qms/ticketing/internal/bus"
	"qms/ticketing/internal/clock"
	"qms/ticketing/internal/lease"
	"qms/ticketing/internal/models"
	"qms/ticketing/internal/store"
	"qms/ticketing/internal/telemetry"
)

// Event sources.
const (
	SourceKiosk            = "Kiosk"
	SourceController       = "Controller"
	SourceControllerRecall = "Controller-Recall"
)

// Publisher is satisfied by *bus.Bus.
type Publisher interface {
	Emit(ctx context.Context, payload bus.Payload, source string) bus.Event
}

type Options struct {
	Clock clock.Clock
	// Location decides the calendar day used for rollover. Defaults to
	// time.Local.
	Location *time.Location
	// Leases serializes mutations across contexts. Without it only
	// in-process mutations are serialized.
	Leases         *lease.Manager
	LockTTL        time.Duration
	LockAttempts   int
	LockRetryDelay time.Duration
}

type Engine struct {
	tickets   store.TicketStore
	catalog   store.Catalog
	publisher Publisher
	leases    *lease.Manager
	clock     clock.Clock
	location  *time.Location

	lockTTL        time.Duration
	lockAttempts   int
	lockRetryDelay time.Duration

	mu sync.Mutex
}

func New(tickets store.TicketStore, catalog store.Catalog, publisher Publisher, opts Options) *Engine {
	e := &Engine{
		tickets:        tickets,
		catalog:        catalog,
		publisher:      publisher,
		leases:         opts.Leases,
		clock:          opts.Clock,
		location:       opts.Location,
		lockTTL:        opts.LockTTL,
		lockAttempts:   opts.LockAttempts,
		lockRetryDelay: opts.LockRetryDelay,
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.location == nil {
		e.location = time.Local
	}
	if e.lockTTL <= 0 {
		e.lockTTL = 5 * time.Second
	}
	if e.lockAttempts <= 0 {
		e.lockAttempts = 20
	}
	if e.lockRetryDelay <= 0 {
		e.lockRetryDelay = 50 * time.Millisecond
	}
	return e
}

func (e *Engine) IssueTicket(ctx context.Context, serviceID string) (models.Ticket, error) {
	svc, err := e.catalog.Service(ctx, serviceID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !svc.Active {
		return models.Ticket{}, fmt.Errorf("%w: %s", store.ErrServiceInactive, serviceID)
	}

	var issued models.Ticket
	err = e.mutate(ctx, func(tickets []models.Ticket) ([]models.Ticket, error) {
		count := 0
		for _, t := range tickets {
			if t.ServiceID == serviceID {
				count++
			}
		}
		snapshot := svc
		issued = models.Ticket{
			TicketID:  uuid.NewString(),
			Sequence:  count + 1,
			Code:      fmt.Sprintf("%s%03d", svc.Code, count+1),
			ServiceID: serviceID,
			Service:   &snapshot,
			Status:    models.StatusWaiting,
			Priority:  svc.Preferential(),
			IssuedAt:  e.clock.Now(),
		}
		return append(tickets, issued), nil
	})
	if err != nil {
		return models.Ticket{}, err
	}
	e.publish(ctx, bus.TicketIssued{Ticket: issued}, SourceKiosk)
	return issued, nil
}

func (e *Engine) CallTicket(ctx context.Context, ticketID, stationID string) (models.Ticket, error) {
	station, err := e.catalog.Station(ctx, stationID)
	if err != nil {
		return models.Ticket{}, err
	}
	var called models.Ticket
	err = e.mutate(ctx, func(tickets []models.Ticket) ([]models.Ticket, error) {
		i, err := findTicket(tickets, ticketID)
		if err != nil {
			return nil, err
		}
		if err := checkTransition(store.ActionCall, tickets[i]); err != nil {
			return nil, err
		}
		e.applyCall(&tickets[i], station)
		called = tickets[i]
		return tickets, nil
	})
	if err != nil {
		return models.Ticket{}, err
	}
	e.publish(ctx, bus.TicketCalled{Ticket: called}, SourceController)
	return called, nil
}

func (e *Engine) StartService(ctx context.Context, ticketID string) (models.Ticket, error) {
	t, err := e.transition(ctx, ticketID, store.ActionStart, func(t *models.Ticket, now time.Time) {
		t.Status = models.StatusServing
		t.ServiceStartedAt = &now
	})
	if err != nil {
		return models.Ticket{}, err
	}
	e.publish(ctx, bus.TicketServiceStarted{Ticket: t}, SourceController)
	return t, nil
}

func (e *Engine) FinishService(ctx context.Context, ticketID string) (models.Ticket, error) {
	t, err := e.transition(ctx, ticketID, store.ActionFinish, func(t *models.Ticket, now time.Time) {
		t.Status = models.StatusDone
		t.FinishedAt = &now
	})
	if err != nil {
		return models.Ticket{}, err
	}
	e.publish(ctx, bus.TicketFinished{Ticket: t}, SourceController)
	return t, nil
}

func (e *Engine) MarkAbsent(ctx context.Context, ticketID string) (models.Ticket, error) {
	t, err := e.transition(ctx, ticketID, store.ActionAbsent, func(t *models.Ticket, now time.Time) {
		t.Status = models.StatusAbsent
	})
	if err != nil {
		return models.Ticket{}, err
	}
	e.publish(ctx, bus.TicketCancelled{Ticket: t}, SourceController)
	return t, nil
}

// NextEligibleTicket returns the ticket station would call next without
// changing anything. ok is false when nothing eligible is waiting.
func (e *Engine) NextEligibleTicket(ctx context.Context, stationID string) (models.Ticket, bool, error) {
	station, err := e.catalog.Station(ctx, stationID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	tickets, err := e.Tickets(ctx)
	if err != nil {
		return models.Ticket{}, false, err
	}
	i := selectNext(tickets, station)
	if i < 0 {
		return models.Ticket{}, false, nil
	}
	return tickets[i], true, nil
}

// CallNext calls the next eligible ticket for station. When configured, a
// standard ticket is refused while any preferential ticket has waited
// longer than the configured limit.
func (e *Engine) CallNext(ctx context.Context, stationID string) (models.Ticket, error) {
	station, err := e.catalog.Station(ctx, stationID)
	if err != nil {
		return models.Ticket{}, err
	}
	cfg, err := e.catalog.Config(ctx)
	if err != nil {
		return models.Ticket{}, err
	}

	var called models.Ticket
	err = e.mutate(ctx, func(tickets []models.Ticket) ([]models.Ticket, error) {
		i := selectNext(tickets, station)
		if i < 0 {
			return nil, store.ErrQueueEmpty
		}
		if !tickets[i].Priority {
			if err := e.checkPreferentialBlock(tickets, cfg); err != nil {
				return nil, err
			}
		}
		e.applyCall(&tickets[i], station)
		called = tickets[i]
		return tickets, nil
	})
	if err != nil {
		return models.Ticket{}, err
	}
	e.publish(ctx, bus.TicketCalled{Ticket: called}, SourceController)
	return called, nil
}

// Recall announces an already called ticket again without changing it.
func (e *Engine) Recall(ctx context.Context, ticketID string) (models.Ticket, error) {
	tickets, err := e.Tickets(ctx)
	if err != nil {
		return models.Ticket{}, err
	}
	i, err := findTicket(tickets, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if err := checkTransition(store.ActionRecall, tickets[i]); err != nil {
		return models.Ticket{}, err
	}
	e.publish(ctx, bus.TicketCalled{Ticket: tickets[i]}, SourceControllerRecall)
	return tickets[i], nil
}

func (e *Engine) checkPreferentialBlock(tickets []models.Ticket, cfg models.QueueConfig) error {
	if !cfg.BlockStandardWhilePreferentialWaiting {
		return nil
	}
	minutes := cfg.PreferentialBlockMinutes
	if minutes <= 0 {
		minutes = 20
	}
	limit := time.Duration(minutes) * time.Minute
	now := e.clock.Now()
	for _, t := range tickets {
		if t.Status != models.StatusWaiting || !t.Priority {
			continue
		}
		if waited := now.Sub(t.IssuedAt); waited >= limit {
			return fmt.Errorf("%w: %s waiting for %d minutes", store.ErrStandardBlocked, t.Code, int(waited/time.Minute))
		}
	}
	return nil
}

func (e *Engine) transition(ctx context.Context, ticketID, action string, apply func(*models.Ticket, time.Time)) (models.Ticket, error) {
	var out models.Ticket
	err := e.mutate(ctx, func(tickets []models.Ticket) ([]models.Ticket, error) {
		i, err := findTicket(tickets, ticketID)
		if err != nil {
			return nil, err
		}
		if err := checkTransition(action, tickets[i]); err != nil {
			return nil, err
		}
		apply(&tickets[i], e.clock.Now())
		out = tickets[i]
		return tickets, nil
	})
	return out, err
}

func (e *Engine) applyCall(t *models.Ticket, station models.Station) {
	now := e.clock.Now()
	t.Status = models.StatusCalling
	t.CalledAt = &now
	t.WaitMinutes = int(now.Sub(t.IssuedAt) / time.Minute)
	if t.WaitMinutes < 0 {
		t.WaitMinutes = 0
	}
	t.StationID = station.StationID
	t.StationNumber = station.Number
	t.OperatorName = station.OperatorName
}

// selectNext returns the index of the first waiting preferential ticket the
// station serves, else the first waiting one, else -1. Tickets are kept in
// issuance order.
func selectNext(tickets []models.Ticket, station models.Station) int {
	first := -1
	for i, t := range tickets {
		if t.Status != models.StatusWaiting || !station.Serves(t.ServiceID) {
			continue
		}
		if t.Priority {
			return i
		}
		if first < 0 {
			first = i
		}
	}
	return first
}

func findTicket(tickets []models.Ticket, ticketID string) (int, error) {
	for i := range tickets {
		if tickets[i].TicketID == ticketID {
			return i, nil
		}
	}
	return -1, store.ErrTicketNotFound
}

func checkTransition(action string, t models.Ticket) error {
	if !store.ValidTransition(action, t.Status) {
		return fmt.Errorf("%w: cannot %s ticket %s in status %s", store.ErrInvalidTransition, action, t.Code, t.Status)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, payload bus.Payload, source string) {
	if e.publisher == nil {
		return
	}
	e.publisher.Emit(ctx, payload, source)
}

// mutate runs fn over the current ticket list and saves the result. Nothing
// is written when fn fails.
func (e *Engine) mutate(ctx context.Context, fn func([]models.Ticket) ([]models.Ticket, error)) (err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "queue.mutate")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	release, err := e.lockStore(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, err := e.rolloverLocked(ctx); err != nil {
		return err
	}
	tickets, err := e.tickets.LoadTickets(ctx)
	if err != nil {
		return err
	}
	updated, err := fn(tickets)
	if err != nil {
		return err
	}
	return e.tickets.SaveTickets(ctx, updated)
}

func (e *Engine) lockStore(ctx context.Context) (func(), error) {
	if e.leases == nil {
		return func() {}, nil
	}
	for attempt := 0; attempt < e.lockAttempts; attempt++ {
		l, ok, err := e.leases.Acquire(ctx, store.KeyTicketsLock, e.lockTTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				if err := l.Release(context.WithoutCancel(ctx)); err != nil {
					log.Printf("queue lock release failed err=%v", err)
				}
			}, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.clock.Sleep(e.lockRetryDelay)
	}
	return nil, store.ErrStoreBusy
}
