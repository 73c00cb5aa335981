package queue

import (
	"context"
	"testing"
	"time"
)

func TestDailyStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.issue(t, "preferencial")
	c1 := env.issue(t, "comum")
	env.issue(t, "comum")

	env.clock.Advance(4 * time.Minute)
	if _, err := env.engine.CallTicket(ctx, p.TicketID, "g1"); err != nil {
		t.Fatalf("call: %v", err)
	}
	if _, err := env.engine.StartService(ctx, p.TicketID); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Advance(6 * time.Minute)
	if _, err := env.engine.FinishService(ctx, p.TicketID); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if _, err := env.engine.CallTicket(ctx, c1.TicketID, "g2"); err != nil {
		t.Fatalf("call: %v", err)
	}
	if _, err := env.engine.MarkAbsent(ctx, c1.TicketID); err != nil {
		t.Fatalf("absent: %v", err)
	}

	stats, err := env.engine.DailyStats(ctx, env.clock.Now())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Issued != 3 || stats.Finished != 1 || stats.Absent != 1 {
		t.Fatalf("unexpected counts %+v", stats)
	}
	// waits: P 4 min, C001 10 min
	if stats.AvgWaitMinutes != 7 {
		t.Fatalf("avg wait %v", stats.AvgWaitMinutes)
	}
	if stats.AvgServiceMinutes != 6 {
		t.Fatalf("avg service %v", stats.AvgServiceMinutes)
	}
	if s := stats.ByService["comum"]; s.Issued != 2 || s.Finished != 0 || s.AvgWaitMinutes != 10 {
		t.Fatalf("comum stats %+v", s)
	}
	if s := stats.ByStation["g1"]; s.Finished != 1 || s.AvgServiceMinutes != 6 {
		t.Fatalf("g1 stats %+v", s)
	}
	if _, ok := stats.ByStation["g2"]; !ok {
		t.Fatalf("station without finished tickets missing from stats")
	}

	other, _ := env.engine.DailyStats(ctx, env.clock.Now().AddDate(0, 0, -1))
	if other.Issued != 0 {
		t.Fatalf("tickets counted for another day")
	}
}
