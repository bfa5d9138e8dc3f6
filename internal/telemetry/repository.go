package telemetry

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"codeberg.org/mutker/vehicled/internal/errors"
	"codeberg.org/mutker/vehicled/internal/logger"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

// sqliteRepository buffers writes and flushes them in batches. A flush is
// triggered by the buffer reaching BatchSize or by the flush ticker.
type sqliteRepository struct {
	db            *sql.DB
	cfg           Config
	mu            sync.Mutex
	snapshots     []vehicle.Snapshot
	alerts        []vehicle.Alert
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func newSQLiteRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_data_dir",
			Path:  filepath.Dir(cfg.DBPath),
			Error: err.Error(),
		})
	}

	dsn := "file:" + cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "open_database",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.DBPath); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Debug().Err(closeErr).Msg("Failed to close database after schema error")
		}

		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	repo := &sqliteRepository{
		db:            db,
		cfg:           cfg,
		snapshots:     make([]vehicle.Snapshot, 0, cfg.BatchSize),
		alerts:        make([]vehicle.Alert, 0, cfg.BatchSize),
		flushTicker:   time.NewTicker(time.Duration(cfg.FlushInterval) * time.Second),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}
	go repo.flusher()

	logger.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Int("flush_interval_s", cfg.FlushInterval).
		Msg("Telemetry storage initialized")

	return repo, nil
}

func (r *sqliteRepository) SaveSnapshot(snapshot vehicle.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshots = append(r.snapshots, snapshot)
	if len(r.snapshots) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

// SaveAlert buffers the alert; it rides along with the next flush.
func (r *sqliteRepository) SaveAlert(alert vehicle.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.alerts = append(r.alerts, alert)

	return nil
}

func (r *sqliteRepository) LoadHistory(ctx context.Context, limit int) ([]vehicle.Snapshot, error) {
	errFactory := errors.New()

	// Surface buffered rows to the query below.
	r.mu.Lock()
	err := r.flush()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, selectHistorySQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageLoad, err)
	}
	defer rows.Close()

	var snapshots []vehicle.Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageLoad, err)
	}

	// Rows come back newest first; callers want chronological order.
	for i, j := 0, len(snapshots)-1; i < j; i, j = i+1, j-1 {
		snapshots[i], snapshots[j] = snapshots[j], snapshots[i]
	}

	return snapshots, nil
}

func (r *sqliteRepository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				logger.Warn().Err(err).Msg("Periodic telemetry flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				logger.Warn().Err(err).Msg("Final telemetry flush failed")
			}
			r.mu.Unlock()

			return
		}
	}
}

// flush writes both buffers in one transaction. The caller must hold mu.
// Buffers are kept on failure so the next flush retries them.
func (r *sqliteRepository) flush() error {
	if len(r.snapshots) == 0 && len(r.alerts) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if err := insertSnapshots(tx, r.snapshots); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}

		return err
	}

	if err := insertAlerts(tx, r.alerts); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	logger.Debug().
		Int("snapshots", len(r.snapshots)).
		Int("alerts", len(r.alerts)).
		Msg("Flushed telemetry batch")

	r.snapshots = r.snapshots[:0]
	r.alerts = r.alerts[:0]

	return nil
}

func insertSnapshots(tx *sql.Tx, snapshots []vehicle.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	errFactory := errors.New()

	stmt, err := tx.Prepare(insertSnapshotSQL)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}
	defer stmt.Close()

	for i := range snapshots {
		s := &snapshots[i]
		if _, err := stmt.Exec(
			s.Timestamp.UnixMilli(),
			s.Speed,
			s.Battery.SoC,
			s.Battery.Voltage,
			s.Battery.Temperature,
			s.Battery.Health,
			s.Tires.FrontLeft,
			s.Tires.FrontRight,
			s.Tires.RearLeft,
			s.Tires.RearRight,
			s.Drivetrain.Throttle,
			s.Drivetrain.Brake,
			s.Drivetrain.Gear,
			s.Drivetrain.SteeringAngle,
			s.EV.Range,
			boolToInt(s.EV.Charging),
			boolToInt(s.EV.RegenBraking),
			s.GPS.Latitude,
			s.GPS.Longitude,
			s.Odometer,
			s.FuelLevel,
			s.EngineStatus,
			string(s.Variant),
		); err != nil {
			return errFactory.Wrap(ErrStorageAccess, err)
		}
	}

	return nil
}

func insertAlerts(tx *sql.Tx, alerts []vehicle.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	errFactory := errors.New()

	stmt, err := tx.Prepare(insertAlertSQL)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}
	defer stmt.Close()

	for i := range alerts {
		a := &alerts[i]
		if _, err := stmt.Exec(
			a.ID,
			string(a.Type),
			string(a.Severity),
			a.Message,
			a.Signal,
			a.Value,
			a.Threshold,
			a.Timestamp.UnixMilli(),
		); err != nil {
			return errFactory.Wrap(ErrStorageAccess, err)
		}
	}

	return nil
}

func scanSnapshot(rows *sql.Rows) (vehicle.Snapshot, error) {
	var (
		s        vehicle.Snapshot
		ts       int64
		charging int
		regen    int
		variant  string
	)
	if err := rows.Scan(
		&ts,
		&s.Speed,
		&s.Battery.SoC,
		&s.Battery.Voltage,
		&s.Battery.Temperature,
		&s.Battery.Health,
		&s.Tires.FrontLeft,
		&s.Tires.FrontRight,
		&s.Tires.RearLeft,
		&s.Tires.RearRight,
		&s.Drivetrain.Throttle,
		&s.Drivetrain.Brake,
		&s.Drivetrain.Gear,
		&s.Drivetrain.SteeringAngle,
		&s.EV.Range,
		&charging,
		&regen,
		&s.GPS.Latitude,
		&s.GPS.Longitude,
		&s.Odometer,
		&s.FuelLevel,
		&s.EngineStatus,
		&variant,
	); err != nil {
		return vehicle.Snapshot{}, errors.New().Wrap(ErrStorageLoad, err)
	}

	s.Timestamp = time.UnixMilli(ts).UTC()
	s.EV.Charging = charging != 0
	s.EV.RegenBraking = regen != 0
	s.Variant = vehicle.ParseVariant(variant)

	return s, nil
}

// Close drains buffered writes, checkpoints the WAL and closes the database.
func (r *sqliteRepository) Close() error {
	errFactory := errors.New()

	close(r.shutdownChan)
	r.flushTicker.Stop()
	<-r.flushDoneChan

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logger.Warn().Err(err).Msg("Failed to checkpoint WAL before close")
	}

	if err := r.db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	logger.Debug().Msg("Telemetry storage closed gracefully")

	return nil
}
