package store

import (
	"context"

	"qms/ticketing/internal/models"
)

// Keys of the shared medium.
const (
	KeyTickets     = "senha-senhas"
	KeyTicketsLock = "senha-senhas-lock"
	KeyDayEpoch    = "senha-ultima-data"
	KeyServices    = "senha-servicos"
	KeyStations    = "senha-guiches"
	KeyConfig      = "senha-configuracao"
)

// DayLayout is the format of the stored day epoch.
const DayLayout = "2006-01-02"

// TicketStore holds the day's ticket list and the day epoch. SaveTickets
// replaces the whole list; callers serialize read-modify-write cycles.
type TicketStore interface {
	LoadTickets(ctx context.Context) ([]models.Ticket, error)
	SaveTickets(ctx context.Context, tickets []models.Ticket) error
	DayEpoch(ctx context.Context) (string, bool, error)
	SetDayEpoch(ctx context.Context, day string) error
}

// Catalog is the read-only reference data consumed by the queue.
type Catalog interface {
	Services(ctx context.Context) ([]models.ServiceDefinition, error)
	Service(ctx context.Context, serviceID string) (models.ServiceDefinition, error)
	Stations(ctx context.Context) ([]models.Station, error)
	Station(ctx context.Context, stationID string) (models.Station, error)
	Config(ctx context.Context) (models.QueueConfig, error)
}

// CatalogWriter is used by the configuration surface and seeding only.
type CatalogWriter interface {
	SaveServices(ctx context.Context, services []models.ServiceDefinition) error
	SaveStations(ctx context.Context, stations []models.Station) error
	SaveConfig(ctx context.Context, cfg models.QueueConfig) error
}
