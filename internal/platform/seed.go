package platform

import (
	"context"
	"fmt"

	"qms/ticketing/internal/bus"
	"qms/ticketing/internal/store"
)

// SourceAdmin marks catalog events published by seeding.
const SourceAdmin = "Admin"

// Seed applies a catalog file to the medium and announces each saved
// section so running contexts reload it.
func (p *Platform) Seed(ctx context.Context, path string) error {
	file, err := store.LoadCatalogFile(path)
	if err != nil {
		return err
	}
	if err := file.Apply(ctx, p.Catalog); err != nil {
		return fmt.Errorf("apply catalog: %w", err)
	}
	if len(file.Services) > 0 {
		p.Bus.Emit(ctx, bus.ConfigUpdated{Services: file.Services}, SourceAdmin)
	}
	if len(file.Stations) > 0 {
		p.Bus.Emit(ctx, bus.StationUpdated{Stations: file.Stations}, SourceAdmin)
	}
	if file.Config != nil {
		p.Bus.Emit(ctx, bus.ConfigUpdated{Config: file.Config}, SourceAdmin)
	}
	return nil
}
