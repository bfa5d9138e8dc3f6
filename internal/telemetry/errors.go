package telemetry

import "codeberg.org/mutker/vehicled/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig   = errors.ErrInvalidConfig
	ErrInvalidDBPath   = errors.ErrorCode("telemetry_invalid_db_path")
	ErrInvalidDSN      = errors.ErrorCode("telemetry_invalid_dsn")
	ErrUnknownDriver   = errors.ErrorCode("telemetry_unknown_driver")
	ErrInvalidBatching = errors.ErrorCode("telemetry_invalid_batching")

	// Schema errors
	ErrSchemaInitFailed       = errors.ErrorCode("telemetry_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("telemetry_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("telemetry_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("telemetry_transaction_failed")

	// Storage errors
	ErrStorageInit   = errors.ErrInitTelemetry
	ErrStorageAccess = errors.ErrRecordTelemetry
	ErrStorageLoad   = errors.ErrLoadTelemetry
	ErrStorageClose  = errors.ErrCloseTelemetry

	// Operation errors
	ErrOperationTimeout = errors.ErrTimeout
	ErrServiceShutdown  = errors.ErrShutdownFailed
)
