package telemetry

import (
	"database/sql"

	"codeberg.org/mutker/vehicled/internal/errors"
	"codeberg.org/mutker/vehicled/internal/logger"
)

const (
	SchemaVersion = 1

	// SQL statements derived from schema
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS telemetry_log (
	       id               INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp        INTEGER NOT NULL,
	       speed            REAL NOT NULL,
	       battery_soc      REAL NOT NULL,
	       battery_voltage  REAL NOT NULL,
	       battery_temp     REAL NOT NULL,
	       battery_health   TEXT NOT NULL,
	       tire_fl          REAL NOT NULL,
	       tire_fr          REAL NOT NULL,
	       tire_rl          REAL NOT NULL,
	       tire_rr          REAL NOT NULL,
	       throttle         REAL NOT NULL,
	       brake            REAL NOT NULL,
	       gear             TEXT NOT NULL,
	       steering_angle   REAL NOT NULL,
	       ev_range         REAL NOT NULL,
	       charging         INTEGER NOT NULL CHECK (charging IN (0, 1)),
	       regen_braking    INTEGER NOT NULL CHECK (regen_braking IN (0, 1)),
	       latitude         REAL NOT NULL,
	       longitude        REAL NOT NULL,
	       odometer         REAL NOT NULL,
	       fuel_level       REAL NOT NULL,
	       engine_status    TEXT NOT NULL,
	       variant          TEXT NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS idx_telemetry_log_timestamp ON telemetry_log (timestamp);
	   CREATE TABLE IF NOT EXISTS alerts (
	       id          TEXT PRIMARY KEY,
	       alert_type  TEXT NOT NULL,
	       severity    TEXT NOT NULL,
	       message     TEXT NOT NULL,
	       signal      TEXT NOT NULL,
	       value       REAL NOT NULL,
	       threshold   TEXT NOT NULL,
	       timestamp   INTEGER NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts (timestamp);`

	insertSnapshotSQL = `
    INSERT INTO telemetry_log (
        timestamp, speed,
        battery_soc, battery_voltage, battery_temp, battery_health,
        tire_fl, tire_fr, tire_rl, tire_rr,
        throttle, brake, gear, steering_angle,
        ev_range, charging, regen_braking,
        latitude, longitude, odometer, fuel_level,
        engine_status, variant
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertAlertSQL = `
    INSERT OR IGNORE INTO alerts (
        id, alert_type, severity, message, signal, value, threshold, timestamp
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectHistorySQL = `
    SELECT timestamp, speed,
        battery_soc, battery_voltage, battery_temp, battery_health,
        tire_fl, tire_fr, tire_rl, tire_rr,
        throttle, brake, gear, steering_angle,
        ev_range, charging, regen_braking,
        latitude, longitude, odometer, fuel_level,
        engine_status, variant
    FROM telemetry_log
    ORDER BY id DESC
    LIMIT ?`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB) error {
	errFactory := errors.New()

	logger.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				// Only log if it's not the "already committed" error
				if !errors.Is(err, sql.ErrTxDone) {
					logger.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	// Record schema version
	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	logger.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()

	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}
