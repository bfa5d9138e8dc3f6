package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/vehicled/internal/errors"
	"codeberg.org/mutker/vehicled/internal/logger"
)

// ValidateAndUpdateSchema checks the schema version and rebuilds the schema
// when it is missing or stale. Existing data is backed up first.
func ValidateAndUpdateSchema(db *sql.DB, dbPath string) error {
	errFactory := errors.New()

	version, err := GetSchemaVersion(db)
	if err != nil {
		return errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	if version == SchemaVersion {
		logger.Debug().
			Int("version", version).
			Msg("Schema version is current")

		return nil
	}

	if version == 0 {
		logger.Info().Msg("No schema found, initializing database")

		return InitSchema(db)
	}

	logger.Warn().
		Int("found", version).
		Int("want", SchemaVersion).
		Msg("Schema version mismatch, rebuilding database")

	if err := backupDatabase(db, dbPath, version); err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	if err := dropTables(db); err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	return InitSchema(db)
}

// backupDatabase writes a consistent copy of the database next to the
// original before a destructive migration.
func backupDatabase(db *sql.DB, dbPath string, version int) error {
	errFactory := errors.New()

	backupDir := filepath.Join(filepath.Dir(dbPath), "backups")
	if err := os.MkdirAll(backupDir, defaultDirPerm); err != nil {
		return errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup_dir",
			Path:  backupDir,
			Error: err.Error(),
		})
	}

	timestamp := time.Now().UTC().Format("20060102T150405Z")
	backupPath := filepath.Join(backupDir, fmt.Sprintf("telemetry_v%d_%s.db", version, timestamp))

	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s'", backupPath)); err != nil {
		return errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "vacuum_into",
			Path:  backupPath,
			Error: err.Error(),
		})
	}

	logger.Info().
		Str("path", backupPath).
		Msg("Database backup created")

	return nil
}

func dropTables(db *sql.DB) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				logger.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	for _, table := range []string{"telemetry_log", "alerts", "schema_versions"} {
		if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return errFactory.WithData(ErrSchemaMigrationFailed, struct {
				Phase string
				Table string
				Error string
			}{
				Phase: "drop_table",
				Table: table,
				Error: err.Error(),
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}
	committed = true

	return nil
}
