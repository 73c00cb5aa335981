package models

const (
	StationFree     = "free"
	StationOccupied = "occupied"
	StationPaused   = "paused"
)

type Station struct {
	StationID    string   `json:"station_id" yaml:"id"`
	Number       int      `json:"number" yaml:"number"`
	Name         string   `json:"name" yaml:"name"`
	Active       bool     `json:"active" yaml:"active"`
	OperatorID   string   `json:"operator_id,omitempty" yaml:"operator_id"`
	OperatorName string   `json:"operator_name,omitempty" yaml:"operator_name"`
	ServiceIDs   []string `json:"service_ids" yaml:"service_ids"`
	Status       string   `json:"status" yaml:"status"`
}

func (s Station) Serves(serviceID string) bool {
	for _, id := range s.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}
