package models

const (
	PriorityPreferential = "preferential"
	PriorityStandard     = "standard"
)

type ServiceDefinition struct {
	ServiceID         string `json:"service_id" yaml:"id"`
	Name              string `json:"name" yaml:"name"`
	Code              string `json:"code" yaml:"code"`
	Color             string `json:"color" yaml:"color"`
	Active            bool   `json:"active" yaml:"active"`
	PriorityClass     string `json:"priority_class" yaml:"priority_class"`
	AvgServiceMinutes int    `json:"avg_service_minutes" yaml:"avg_service_minutes"`
	Order             int    `json:"order" yaml:"order"`
}

func (s ServiceDefinition) Preferential() bool {
	return s.PriorityClass == PriorityPreferential
}
