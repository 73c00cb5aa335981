// Package kvstore keeps tickets and the catalog as JSON documents on the
// shared medium, under the keys every context agrees on.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"

	"qms/ticketing/internal/kv"
	"qms/ticketing/internal/models"
	"qms/ticketing/internal/store"
)

type Store struct {
	kv kv.Store
}

func NewStore(medium kv.Store) *Store {
	return &Store{kv: medium}
}

func (s *Store) LoadTickets(ctx context.Context) ([]models.Ticket, error) {
	var tickets []models.Ticket
	if _, err := s.readJSON(ctx, store.KeyTickets, &tickets); err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return tickets, nil
}

func (s *Store) SaveTickets(ctx context.Context, tickets []models.Ticket) error {
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return s.writeJSON(ctx, store.KeyTickets, tickets)
}

func (s *Store) DayEpoch(ctx context.Context) (string, bool, error) {
	day, found, err := s.kv.Get(ctx, store.KeyDayEpoch)
	if err != nil {
		return "", false, fmt.Errorf("read day epoch: %w", err)
	}
	return day, found, nil
}

func (s *Store) SetDayEpoch(ctx context.Context, day string) error {
	if err := s.kv.Set(ctx, store.KeyDayEpoch, day, 0); err != nil {
		return fmt.Errorf("write day epoch: %w", err)
	}
	return nil
}

func (s *Store) Services(ctx context.Context) ([]models.ServiceDefinition, error) {
	var services []models.ServiceDefinition
	found, err := s.readJSON(ctx, store.KeyServices, &services)
	if err != nil {
		return nil, err
	}
	if !found {
		return store.DefaultServices(), nil
	}
	return services, nil
}

func (s *Store) Service(ctx context.Context, serviceID string) (models.ServiceDefinition, error) {
	services, err := s.Services(ctx)
	if err != nil {
		return models.ServiceDefinition{}, err
	}
	for _, svc := range services {
		if svc.ServiceID == serviceID {
			return svc, nil
		}
	}
	return models.ServiceDefinition{}, store.ErrServiceNotFound
}

func (s *Store) Stations(ctx context.Context) ([]models.Station, error) {
	var stations []models.Station
	if _, err := s.readJSON(ctx, store.KeyStations, &stations); err != nil {
		return nil, err
	}
	return stations, nil
}

func (s *Store) Station(ctx context.Context, stationID string) (models.Station, error) {
	stations, err := s.Stations(ctx)
	if err != nil {
		return models.Station{}, err
	}
	for _, st := range stations {
		if st.StationID == stationID {
			return st, nil
		}
	}
	return models.Station{}, store.ErrStationNotFound
}

func (s *Store) Config(ctx context.Context) (models.QueueConfig, error) {
	cfg := store.DefaultConfig()
	if _, err := s.readJSON(ctx, store.KeyConfig, &cfg); err != nil {
		return models.QueueConfig{}, err
	}
	return cfg, nil
}

func (s *Store) SaveServices(ctx context.Context, services []models.ServiceDefinition) error {
	return s.writeJSON(ctx, store.KeyServices, services)
}

func (s *Store) SaveStations(ctx context.Context, stations []models.Station) error {
	return s.writeJSON(ctx, store.KeyStations, stations)
}

func (s *Store) SaveConfig(ctx context.Context, cfg models.QueueConfig) error {
	return s.writeJSON(ctx, store.KeyConfig, cfg)
}

func (s *Store) readJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !found || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) writeJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, string(raw), 0); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
