package queue

import (
	"context"
	"log"
	"sort"

	"qms/ticketing/internal/models"
	"qms/ticketing/internal/store"
)

// EnsureDay clears the ticket list when the calendar day changed since the
// stored epoch. The first run only records the epoch. It reports whether a
// rollover happened.
func (e *Engine) EnsureDay(ctx context.Context) (bool, error) {
	due, _, _, err := e.dayState(ctx)
	if err != nil || !due {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	release, err := e.lockStore(ctx)
	if err != nil {
		return false, err
	}
	defer release()
	return e.rolloverLocked(ctx)
}

func (e *Engine) today() string {
	return e.clock.Now().In(e.location).Format(store.DayLayout)
}

// dayState reports whether the stored epoch differs from today, along with
// the stored epoch itself.
func (e *Engine) dayState(ctx context.Context) (due bool, epoch string, found bool, err error) {
	cfg, err := e.catalog.Config(ctx)
	if err != nil {
		return false, "", false, err
	}
	if !cfg.DailyReset {
		return false, "", false, nil
	}
	epoch, found, err = e.tickets.DayEpoch(ctx)
	if err != nil {
		return false, "", false, err
	}
	return !found || epoch != e.today(), epoch, found, nil
}

// rolloverLocked must run with the store lock held.
func (e *Engine) rolloverLocked(ctx context.Context) (bool, error) {
	due, epoch, found, err := e.dayState(ctx)
	if err != nil || !due {
		return false, err
	}
	today := e.today()
	if !found {
		log.Printf("queue day epoch initialised day=%s", today)
		return false, e.tickets.SetDayEpoch(ctx, today)
	}
	if err := e.tickets.SaveTickets(ctx, []models.Ticket{}); err != nil {
		return false, err
	}
	if err := e.tickets.SetDayEpoch(ctx, today); err != nil {
		return false, err
	}
	log.Printf("queue day rollover from=%s to=%s", epoch, today)
	return true, nil
}

// ResetDay clears every ticket regardless of the date.
func (e *Engine) ResetDay(ctx context.Context) error {
	err := e.mutate(ctx, func([]models.Ticket) ([]models.Ticket, error) {
		return []models.Ticket{}, nil
	})
	if err != nil {
		return err
	}
	log.Printf("queue manual reset day=%s", e.today())
	return e.tickets.SetDayEpoch(ctx, e.today())
}

// Tickets returns the day's tickets in issuance order.
func (e *Engine) Tickets(ctx context.Context) ([]models.Ticket, error) {
	if _, err := e.EnsureDay(ctx); err != nil {
		return nil, err
	}
	return e.tickets.LoadTickets(ctx)
}

func (e *Engine) Waiting(ctx context.Context) ([]models.Ticket, error) {
	return e.withStatus(ctx, models.StatusWaiting)
}

func (e *Engine) Calling(ctx context.Context) ([]models.Ticket, error) {
	return e.withStatus(ctx, models.StatusCalling)
}

func (e *Engine) Serving(ctx context.Context) ([]models.Ticket, error) {
	return e.withStatus(ctx, models.StatusServing)
}

func (e *Engine) withStatus(ctx context.Context, status string) ([]models.Ticket, error) {
	tickets, err := e.Tickets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

// RecentCalls returns up to n called tickets, most recent call first. n <= 0
// uses the configured count.
func (e *Engine) RecentCalls(ctx context.Context, n int) ([]models.Ticket, error) {
	if n <= 0 {
		cfg, err := e.catalog.Config(ctx)
		if err != nil {
			return nil, err
		}
		n = cfg.RecentCalls()
	}
	tickets, err := e.Tickets(ctx)
	if err != nil {
		return nil, err
	}
	called := make([]models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.CalledAt != nil {
			called = append(called, t)
		}
	}
	sort.SliceStable(called, func(i, j int) bool {
		return called[i].CalledAt.After(*called[j].CalledAt)
	})
	if len(called) > n {
		called = called[:n]
	}
	return called, nil
}
