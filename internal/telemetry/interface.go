package telemetry

import (
	"context"

	"codeberg.org/mutker/vehicled/internal/vehicle"
)

// Collector is the durable persistence boundary. Its write methods satisfy
// the store's sink contract; LoadHistory replays persisted snapshots into
// the store on startup.
type Collector interface {
	SaveSnapshot(ctx context.Context, snapshot vehicle.Snapshot) error
	SaveAlert(ctx context.Context, alert vehicle.Alert) error
	LoadHistory(ctx context.Context, limit int) ([]vehicle.Snapshot, error)
	Close() error
}

// Repository is the driver-specific storage backend behind the collector.
type Repository interface {
	SaveSnapshot(snapshot vehicle.Snapshot) error
	SaveAlert(alert vehicle.Alert) error
	LoadHistory(ctx context.Context, limit int) ([]vehicle.Snapshot, error)
	Close() error
}
