package bus

import (
	"bytes"
	"encoding/json"
	"fmt"

	"qms/ticketing/internal/models"
)

// Type is the wire name of a DomainEvent.
type Type string

const (
	TypeTicketIssued         Type = "senha_emitida"
	TypeTicketCalled         Type = "senha_chamada"
	TypeTicketServiceStarted Type = "senha_atendendo"
	TypeTicketFinished       Type = "senha_finalizada"
	TypeTicketCancelled      Type = "senha_cancelada"
	TypeStationUpdated       Type = "guiche_atualizado"
	TypeConfigUpdated        Type = "config_atualizada"

	// Wildcard subscribes to every type.
	Wildcard Type = "*"
)

// Payload is implemented only by the event variants of this package.
type Payload interface {
	Type() Type
	isPayload()
}

type TicketIssued struct{ Ticket models.Ticket }
type TicketCalled struct{ Ticket models.Ticket }
type TicketServiceStarted struct{ Ticket models.Ticket }
type TicketFinished struct{ Ticket models.Ticket }
type TicketCancelled struct{ Ticket models.Ticket }
type StationUpdated struct{ Stations []models.Station }

// ConfigUpdated carries either the configuration object or the service
// catalog, whichever was saved.
type ConfigUpdated struct {
	Config   *models.QueueConfig
	Services []models.ServiceDefinition
}

func (TicketIssued) Type() Type         { return TypeTicketIssued }
func (TicketCalled) Type() Type         { return TypeTicketCalled }
func (TicketServiceStarted) Type() Type { return TypeTicketServiceStarted }
func (TicketFinished) Type() Type       { return TypeTicketFinished }
func (TicketCancelled) Type() Type      { return TypeTicketCancelled }
func (StationUpdated) Type() Type       { return TypeStationUpdated }
func (ConfigUpdated) Type() Type        { return TypeConfigUpdated }

func (TicketIssued) isPayload()         {}
func (TicketCalled) isPayload()         {}
func (TicketServiceStarted) isPayload() {}
func (TicketFinished) isPayload()       {}
func (TicketCancelled) isPayload()      {}
func (StationUpdated) isPayload()       {}
func (ConfigUpdated) isPayload()        {}

// TicketOf returns the ticket carried by a ticket event.
func TicketOf(p Payload) (models.Ticket, bool) {
	switch v := p.(type) {
	case TicketIssued:
		return v.Ticket, true
	case TicketCalled:
		return v.Ticket, true
	case TicketServiceStarted:
		return v.Ticket, true
	case TicketFinished:
		return v.Ticket, true
	case TicketCancelled:
		return v.Ticket, true
	}
	return models.Ticket{}, false
}

type Event struct {
	Type      Type
	Data      Payload
	Timestamp int64
	Source    string
}

type wireEvent struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Source    string          `json:"source"`
	Instance  string          `json:"instance,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	return encodeWire(e, "")
}

func (e *Event) UnmarshalJSON(raw []byte) error {
	decoded, _, err := decodeWire(raw)
	if err != nil {
		return err
	}
	*e = decoded
	return nil
}

func encodeWire(e Event, instance string) ([]byte, error) {
	data, err := marshalPayload(e.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{
		Type:      e.Data.Type(),
		Data:      data,
		Timestamp: e.Timestamp,
		Source:    e.Source,
		Instance:  instance,
	})
}

func decodeWire(raw []byte) (Event, string, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, "", fmt.Errorf("decode event: %w", err)
	}
	payload, err := unmarshalPayload(w.Type, w.Data)
	if err != nil {
		return Event{}, "", err
	}
	return Event{Type: w.Type, Data: payload, Timestamp: w.Timestamp, Source: w.Source}, w.Instance, nil
}

func marshalPayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, fmt.Errorf("encode event: nil payload")
	}
	var v any
	switch d := p.(type) {
	case StationUpdated:
		if d.Stations == nil {
			v = []models.Station{}
		} else {
			v = d.Stations
		}
	case ConfigUpdated:
		if d.Config != nil {
			v = d.Config
		} else {
			v = d.Services
		}
	default:
		ticket, _ := TicketOf(p)
		v = ticket
	}
	return json.Marshal(v)
}

func unmarshalPayload(t Type, data json.RawMessage) (Payload, error) {
	switch t {
	case TypeTicketIssued, TypeTicketCalled, TypeTicketServiceStarted, TypeTicketFinished, TypeTicketCancelled:
		var ticket models.Ticket
		if err := json.Unmarshal(data, &ticket); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		switch t {
		case TypeTicketIssued:
			return TicketIssued{Ticket: ticket}, nil
		case TypeTicketCalled:
			return TicketCalled{Ticket: ticket}, nil
		case TypeTicketServiceStarted:
			return TicketServiceStarted{Ticket: ticket}, nil
		case TypeTicketFinished:
			return TicketFinished{Ticket: ticket}, nil
		default:
			return TicketCancelled{Ticket: ticket}, nil
		}
	case TypeStationUpdated:
		var stations []models.Station
		if err := json.Unmarshal(data, &stations); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return StationUpdated{Stations: stations}, nil
	case TypeConfigUpdated:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var services []models.ServiceDefinition
			if err := json.Unmarshal(trimmed, &services); err != nil {
				return nil, fmt.Errorf("decode %s payload: %w", t, err)
			}
			return ConfigUpdated{Services: services}, nil
		}
		var cfg models.QueueConfig
		if err := json.Unmarshal(trimmed, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return ConfigUpdated{Config: &cfg}, nil
	}
	return nil, fmt.Errorf("decode event: unknown type %q", t)
}
