// Package telemetry persists snapshots and alerts to durable storage and
// replays them into the store on startup. Writes are buffered and flushed
// in batches so the tick loop never waits on disk.
package telemetry

import (
	"context"

	"codeberg.org/mutker/vehicled/internal/errors"
	"codeberg.org/mutker/vehicled/internal/logger"
	"codeberg.org/mutker/vehicled/internal/metrics"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

type service struct {
	repo Repository
	cfg  Config
}

// No-op implementation
type noopCollector struct{}

func NewCollector(cfg Config) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If persistence is disabled, return a no-op collector
	if !cfg.Enabled {
		logger.Debug().Msg("Telemetry persistence disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	var (
		repo Repository
		err  error
	)
	switch cfg.Driver {
	case DriverPostgres:
		repo, err = newPostgresRepository(cfg)
	default:
		repo, err = newSQLiteRepository(cfg)
	}
	if err != nil {
		return nil, err
	}

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) SaveSnapshot(ctx context.Context, snapshot vehicle.Snapshot) error {
	errFactory := errors.New()

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	if err := s.repo.SaveSnapshot(snapshot); err != nil {
		metrics.PersistFailures.Inc()
		return errFactory.Wrap(ErrStorageAccess, err)
	}
	metrics.SnapshotsPersisted.Inc()

	return nil
}

func (s *service) SaveAlert(ctx context.Context, alert vehicle.Alert) error {
	errFactory := errors.New()

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	if err := s.repo.SaveAlert(alert); err != nil {
		metrics.PersistFailures.Inc()
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *service) LoadHistory(ctx context.Context, limit int) ([]vehicle.Snapshot, error) {
	snapshots, err := s.repo.LoadHistory(ctx, limit)
	if err != nil {
		return nil, errors.New().Wrap(ErrStorageLoad, err)
	}

	return snapshots, nil
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}

	return nil
}

// No-op implementation
func (*noopCollector) SaveSnapshot(_ context.Context, _ vehicle.Snapshot) error {
	return nil
}

func (*noopCollector) SaveAlert(_ context.Context, _ vehicle.Alert) error {
	return nil
}

func (*noopCollector) LoadHistory(_ context.Context, _ int) ([]vehicle.Snapshot, error) {
	return nil, nil
}

func (*noopCollector) Close() error {
	return nil
}
