package telemetry

import "codeberg.org/mutker/vehicled/internal/errors"

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/vehicled/telemetry.db"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Enabled bool
	Driver  string
	DBPath  string
	DSN     string
	// BatchSize is the number of buffered writes that forces a flush;
	// FlushInterval (seconds) bounds how long a write can sit buffered.
	BatchSize     int
	FlushInterval int
}

func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Driver:        DriverSQLite,
		DBPath:        defaultDBPath,
		BatchSize:     32,
		FlushInterval: 5,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled {
		return nil
	}

	switch c.Driver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errFactory.New(ErrInvalidDBPath)
		}
	case DriverPostgres:
		if c.DSN == "" {
			return errFactory.New(ErrInvalidDSN)
		}
	default:
		return errFactory.WithData(ErrUnknownDriver, c.Driver)
	}

	if c.BatchSize < 1 || c.FlushInterval < 1 {
		return errFactory.New(ErrInvalidBatching)
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
