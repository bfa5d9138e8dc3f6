package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"codeberg.org/mutker/vehicled/internal/errors"
	"codeberg.org/mutker/vehicled/internal/logger"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS telemetry_log (
	    id               BIGSERIAL PRIMARY KEY,
	    timestamp        TIMESTAMPTZ NOT NULL,
	    speed            DOUBLE PRECISION NOT NULL,
	    battery_soc      DOUBLE PRECISION NOT NULL,
	    battery_voltage  DOUBLE PRECISION NOT NULL,
	    battery_temp     DOUBLE PRECISION NOT NULL,
	    battery_health   TEXT NOT NULL,
	    tire_fl          DOUBLE PRECISION NOT NULL,
	    tire_fr          DOUBLE PRECISION NOT NULL,
	    tire_rl          DOUBLE PRECISION NOT NULL,
	    tire_rr          DOUBLE PRECISION NOT NULL,
	    throttle         DOUBLE PRECISION NOT NULL,
	    brake            DOUBLE PRECISION NOT NULL,
	    gear             TEXT NOT NULL,
	    steering_angle   DOUBLE PRECISION NOT NULL,
	    ev_range         DOUBLE PRECISION NOT NULL,
	    charging         BOOLEAN NOT NULL,
	    regen_braking    BOOLEAN NOT NULL,
	    latitude         DOUBLE PRECISION NOT NULL,
	    longitude        DOUBLE PRECISION NOT NULL,
	    odometer         DOUBLE PRECISION NOT NULL,
	    fuel_level       DOUBLE PRECISION NOT NULL,
	    engine_status    TEXT NOT NULL,
	    variant          TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_log_timestamp ON telemetry_log (timestamp)`,
	`CREATE TABLE IF NOT EXISTS alerts (
	    id          TEXT PRIMARY KEY,
	    alert_type  TEXT NOT NULL,
	    severity    TEXT NOT NULL,
	    message     TEXT NOT NULL,
	    signal      TEXT NOT NULL,
	    value       DOUBLE PRECISION NOT NULL,
	    threshold   TEXT NOT NULL,
	    timestamp   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts (timestamp)`,
}

var telemetryColumns = []string{
	"timestamp", "speed",
	"battery_soc", "battery_voltage", "battery_temp", "battery_health",
	"tire_fl", "tire_fr", "tire_rl", "tire_rr",
	"throttle", "brake", "gear", "steering_angle",
	"ev_range", "charging", "regen_braking",
	"latitude", "longitude", "odometer", "fuel_level",
	"engine_status", "variant",
}

const (
	insertAlertPGSQL = `
    INSERT INTO alerts (id, alert_type, severity, message, signal, value, threshold, timestamp)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    ON CONFLICT (id) DO NOTHING`

	selectHistoryPGSQL = `
    SELECT timestamp, speed,
        battery_soc, battery_voltage, battery_temp, battery_health,
        tire_fl, tire_fr, tire_rl, tire_rr,
        throttle, brake, gear, steering_angle,
        ev_range, charging, regen_braking,
        latitude, longitude, odometer, fuel_level,
        engine_status, variant
    FROM telemetry_log
    ORDER BY id DESC
    LIMIT $1`
)

// postgresRepository mirrors the sqlite backend's buffering but batches
// snapshot writes through CopyFrom.
type postgresRepository struct {
	pool          *pgxpool.Pool
	cfg           Config
	mu            sync.Mutex
	snapshots     []vehicle.Snapshot
	alerts        []vehicle.Alert
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func newPostgresRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_pool",
			Error: err.Error(),
		})
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "ping",
			Error: err.Error(),
		})
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()

			return nil, errFactory.WithData(ErrStorageInit, struct {
				Phase string
				Error string
			}{
				Phase: "create_schema",
				Error: err.Error(),
			})
		}
	}

	repo := &postgresRepository{
		pool:          pool,
		cfg:           cfg,
		snapshots:     make([]vehicle.Snapshot, 0, cfg.BatchSize),
		alerts:        make([]vehicle.Alert, 0, cfg.BatchSize),
		flushTicker:   time.NewTicker(time.Duration(cfg.FlushInterval) * time.Second),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}
	go repo.flusher()

	logger.Info().
		Int("batch_size", cfg.BatchSize).
		Int("flush_interval_s", cfg.FlushInterval).
		Msg("Telemetry storage initialized (postgres)")

	return repo, nil
}

func (r *postgresRepository) SaveSnapshot(snapshot vehicle.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshots = append(r.snapshots, snapshot)
	if len(r.snapshots) >= r.cfg.BatchSize {
		return r.flush(context.Background())
	}

	return nil
}

func (r *postgresRepository) SaveAlert(alert vehicle.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.alerts = append(r.alerts, alert)

	return nil
}

func (r *postgresRepository) LoadHistory(ctx context.Context, limit int) ([]vehicle.Snapshot, error) {
	errFactory := errors.New()

	r.mu.Lock()
	err := r.flush(ctx)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, selectHistoryPGSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageLoad, err)
	}
	defer rows.Close()

	var snapshots []vehicle.Snapshot
	for rows.Next() {
		var (
			s       vehicle.Snapshot
			ts      time.Time
			variant string
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
			&s.EV.Charging,
			&s.EV.RegenBraking,
			&s.GPS.Latitude,
			&s.GPS.Longitude,
			&s.Odometer,
			&s.FuelLevel,
			&s.EngineStatus,
			&variant,
		); err != nil {
			return nil, errFactory.Wrap(ErrStorageLoad, err)
		}
		s.Timestamp = ts.UTC()
		s.Variant = vehicle.ParseVariant(variant)
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageLoad, err)
	}

	for i, j := 0, len(snapshots)-1; i < j; i, j = i+1, j-1 {
		snapshots[i], snapshots[j] = snapshots[j], snapshots[i]
	}

	return snapshots, nil
}

func (r *postgresRepository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("Periodic telemetry flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			r.mu.Lock()
			if err := r.flush(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("Final telemetry flush failed")
			}
			r.mu.Unlock()

			return
		}
	}
}

// flush writes both buffers. The caller must hold mu. Buffers are kept on
// failure so the next flush retries them.
func (r *postgresRepository) flush(ctx context.Context) error {
	if len(r.snapshots) == 0 && len(r.alerts) == 0 {
		return nil
	}

	errFactory := errors.New()

	if len(r.snapshots) > 0 {
		rows := make([][]interface{}, len(r.snapshots))
		for i := range r.snapshots {
			s := &r.snapshots[i]
			rows[i] = []interface{}{
				s.Timestamp,
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
				s.EV.Charging,
				s.EV.RegenBraking,
				s.GPS.Latitude,
				s.GPS.Longitude,
				s.Odometer,
				s.FuelLevel,
				s.EngineStatus,
				string(s.Variant),
			}
		}

		if _, err := r.pool.CopyFrom(
			ctx,
			pgx.Identifier{"telemetry_log"},
			telemetryColumns,
			pgx.CopyFromRows(rows),
		); err != nil {
			return errFactory.Wrap(ErrStorageAccess, err)
		}
	}

	for i := range r.alerts {
		a := &r.alerts[i]
		if _, err := r.pool.Exec(ctx, insertAlertPGSQL,
			a.ID,
			string(a.Type),
			string(a.Severity),
			a.Message,
			a.Signal,
			a.Value,
			a.Threshold,
			a.Timestamp,
		); err != nil {
			return errFactory.Wrap(ErrStorageAccess, err)
		}
	}

	logger.Debug().
		Int("snapshots", len(r.snapshots)).
		Int("alerts", len(r.alerts)).
		Msg("Flushed telemetry batch")

	r.snapshots = r.snapshots[:0]
	r.alerts = r.alerts[:0]

	return nil
}

func (r *postgresRepository) Close() error {
	close(r.shutdownChan)
	r.flushTicker.Stop()
	<-r.flushDoneChan

	r.pool.Close()

	logger.Debug().Msg("Telemetry storage closed gracefully")

	return nil
}
