package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"qms/ticketing/internal/clock"
	"qms/ticketing/internal/kv/memory"
	"qms/ticketing/internal/models"
	"qms/ticketing/internal/store"
)

func newTestStore() (*Store, *memory.Store) {
	medium := memory.New(clock.NewFake(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)))
	return NewStore(medium), medium
}

func TestDefaultsWhenAbsent(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()

	services, err := st.Services(ctx)
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	if len(services) != 2 || services[0].Code != "P" || services[1].Code != "C" {
		t.Fatalf("unexpected default services %+v", services)
	}
	cfg, err := st.Config(ctx)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !cfg.DailyReset || cfg.RecentCallsShown != 3 {
		t.Fatalf("unexpected default config %+v", cfg)
	}
	tickets, err := st.LoadTickets(ctx)
	if err != nil || tickets == nil || len(tickets) != 0 {
		t.Fatalf("expected empty ticket list, got %v err=%v", tickets, err)
	}
}

func TestPartialConfigKeepsDefaults(t *testing.T) {
	ctx := context.Background()
	st, medium := newTestStore()
	_ = medium.Set(ctx, store.KeyConfig, `{"daily_reset":false,"tone_volume":40}`, 0)

	cfg, err := st.Config(ctx)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.DailyReset || cfg.ToneVolume != 40 || cfg.VoiceVolume != 100 {
		t.Fatalf("unexpected merged config %+v", cfg)
	}
}

func TestLookups(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()

	if err := st.SaveStations(ctx, []models.Station{{StationID: "g1", Number: 1, ServiceIDs: []string{"comum"}}}); err != nil {
		t.Fatalf("save stations: %v", err)
	}
	station, err := st.Station(ctx, "g1")
	if err != nil || station.Number != 1 {
		t.Fatalf("station lookup: %+v err=%v", station, err)
	}
	if _, err := st.Station(ctx, "g9"); !errors.Is(err, store.ErrStationNotFound) {
		t.Fatalf("expected ErrStationNotFound, got %v", err)
	}
	if _, err := st.Service(ctx, "nope"); !errors.Is(err, store.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestCorruptDocumentIsAnError(t *testing.T) {
	ctx := context.Background()
	st, medium := newTestStore()
	_ = medium.Set(ctx, store.KeyTickets, "{not json", 0)

	if _, err := st.LoadTickets(ctx); err == nil {
		t.Fatalf("expected decode error")
	}
}
