package models

import "time"

type Ticket struct {
	TicketID         string             `json:"ticket_id"`
	Sequence         int                `json:"sequence"`
	Code             string             `json:"code"`
	ServiceID        string             `json:"service_id"`
	Service          *ServiceDefinition `json:"service,omitempty"`
	Status           string             `json:"status"`
	Priority         bool               `json:"priority"`
	IssuedAt         time.Time          `json:"issued_at"`
	CalledAt         *time.Time         `json:"called_at,omitempty"`
	ServiceStartedAt *time.Time         `json:"service_started_at,omitempty"`
	FinishedAt       *time.Time         `json:"finished_at,omitempty"`
	WaitMinutes      int                `json:"wait_minutes"`
	StationID        string             `json:"station_id,omitempty"`
	StationNumber    int                `json:"station_number,omitempty"`
	OperatorName     string             `json:"operator_name,omitempty"`
}

const (
	StatusWaiting = "waiting"
	StatusCalling = "calling"
	StatusServing = "serving"
	StatusDone    = "done"
	StatusAbsent  = "absent"
)

// Terminal reports whether no further transition may leave the ticket's status.
func (t Ticket) Terminal() bool {
	return t.Status == StatusDone || t.Status == StatusAbsent
}
