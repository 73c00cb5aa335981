package store

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"qms/ticketing/internal/models"
)

// CatalogFile is the YAML seed for services, stations and configuration.
// Config fields absent from the file keep their defaults.
type CatalogFile struct {
	Services []models.ServiceDefinition `yaml:"services"`
	Stations []models.Station           `yaml:"stations"`
	Config   *models.QueueConfig        `yaml:"config"`
}

func LoadCatalogFile(path string) (CatalogFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return CatalogFile{}, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (CatalogFile, error) {
	var file struct {
		Services []models.ServiceDefinition `yaml:"services"`
		Stations []models.Station           `yaml:"stations"`
		Config   yaml.Node                  `yaml:"config"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return CatalogFile{}, fmt.Errorf("parse catalog file: %w", err)
	}
	out := CatalogFile{Services: file.Services, Stations: file.Stations}
	if !file.Config.IsZero() {
		cfg := DefaultConfig()
		if err := file.Config.Decode(&cfg); err != nil {
			return CatalogFile{}, fmt.Errorf("parse catalog config: %w", err)
		}
		out.Config = &cfg
	}
	if err := out.validate(); err != nil {
		return CatalogFile{}, err
	}
	return out, nil
}

func (f CatalogFile) validate() error {
	seen := make(map[string]bool)
	codes := make(map[string]string)
	for _, svc := range f.Services {
		if svc.ServiceID == "" {
			return fmt.Errorf("catalog: service without id")
		}
		if n := len([]rune(svc.Code)); n < 1 || n > 3 {
			return fmt.Errorf("catalog: service %s code must have 1-3 characters", svc.ServiceID)
		}
		switch svc.PriorityClass {
		case models.PriorityPreferential, models.PriorityStandard:
		default:
			return fmt.Errorf("catalog: service %s has unknown priority class %q", svc.ServiceID, svc.PriorityClass)
		}
		if seen[svc.ServiceID] {
			return fmt.Errorf("catalog: duplicate service %s", svc.ServiceID)
		}
		seen[svc.ServiceID] = true
		// Sequences restart per service, so a shared code would repeat
		// display codes within a day.
		code := strings.ToUpper(svc.Code)
		if other, ok := codes[code]; ok {
			return fmt.Errorf("catalog: services %s and %s share code %s", other, svc.ServiceID, svc.Code)
		}
		codes[code] = svc.ServiceID
	}
	numbers := make(map[int]string)
	for _, st := range f.Stations {
		if st.StationID == "" {
			return fmt.Errorf("catalog: station without id")
		}
		if other, ok := numbers[st.Number]; ok {
			return fmt.Errorf("catalog: stations %s and %s share number %d", other, st.StationID, st.Number)
		}
		numbers[st.Number] = st.StationID
	}
	return nil
}

// Apply writes every section present in the file.
func (f CatalogFile) Apply(ctx context.Context, w CatalogWriter) error {
	if len(f.Services) > 0 {
		if err := w.SaveServices(ctx, f.Services); err != nil {
			return err
		}
	}
	if len(f.Stations) > 0 {
		if err := w.SaveStations(ctx, f.Stations); err != nil {
			return err
		}
	}
	if f.Config != nil {
		if err := w.SaveConfig(ctx, *f.Config); err != nil {
			return err
		}
	}
	return nil
}
