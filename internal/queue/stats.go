package queue

import (
	"context"
	"time"

	"qms/ticketing/internal/models"
	"qms/ticketing/internal/store"
)

// DailyStats summarises the tickets issued on date's calendar day. Average
// wait only counts called tickets.
func (e *Engine) DailyStats(ctx context.Context, date time.Time) (models.DailyStats, error) {
	tickets, err := e.Tickets(ctx)
	if err != nil {
		return models.DailyStats{}, err
	}
	services, err := e.catalog.Services(ctx)
	if err != nil {
		return models.DailyStats{}, err
	}
	stations, err := e.catalog.Stations(ctx)
	if err != nil {
		return models.DailyStats{}, err
	}

	day := date.In(e.location).Format(store.DayLayout)
	var today []models.Ticket
	for _, t := range tickets {
		if t.IssuedAt.In(e.location).Format(store.DayLayout) == day {
			today = append(today, t)
		}
	}

	stats := models.DailyStats{
		Date:      date,
		Issued:    len(today),
		ByService: make(map[string]models.ServiceStats, len(services)),
		ByStation: make(map[string]models.StationStats, len(stations)),
	}
	var wait, service average
	for _, t := range today {
		switch t.Status {
		case models.StatusDone:
			stats.Finished++
		case models.StatusAbsent:
			stats.Absent++
		}
		if t.CalledAt != nil {
			wait.add(float64(t.WaitMinutes))
		}
		if d, ok := serviceMinutes(t); ok {
			service.add(d)
		}
	}
	stats.AvgWaitMinutes = wait.value()
	stats.AvgServiceMinutes = service.value()

	for _, svc := range services {
		var s models.ServiceStats
		var w average
		for _, t := range today {
			if t.ServiceID != svc.ServiceID {
				continue
			}
			s.Issued++
			if t.Status == models.StatusDone {
				s.Finished++
			}
			if t.CalledAt != nil {
				w.add(float64(t.WaitMinutes))
			}
		}
		s.AvgWaitMinutes = w.value()
		stats.ByService[svc.ServiceID] = s
	}

	for _, st := range stations {
		var s models.StationStats
		var d average
		for _, t := range today {
			if t.StationID != st.StationID || t.Status != models.StatusDone {
				continue
			}
			s.Finished++
			if m, ok := serviceMinutes(t); ok {
				d.add(m)
			}
		}
		s.AvgServiceMinutes = d.value()
		stats.ByStation[st.StationID] = s
	}
	return stats, nil
}

func serviceMinutes(t models.Ticket) (float64, bool) {
	if t.Status != models.StatusDone || t.ServiceStartedAt == nil || t.FinishedAt == nil {
		return 0, false
	}
	return t.FinishedAt.Sub(*t.ServiceStartedAt).Minutes(), true
}

type average struct {
	sum   float64
	count int
}

func (a *average) add(v float64) {
	a.sum += v
	a.count++
}

func (a average) value() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}
