package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingConfig   ErrorCode = "missing_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Application errors
	ErrInitApp  ErrorCode = "init_app_failed"
	ErrMainLoop ErrorCode = "main_loop_failed"

	// Operation errors
	ErrOperationFailed  ErrorCode = "operation_failed"
	ErrTimeout          ErrorCode = "operation_timeout"
	ErrInvalidOperation ErrorCode = "invalid_operation"

	// Persistence errors
	ErrInitTelemetry   ErrorCode = "init_telemetry_failed"
	ErrRecordTelemetry ErrorCode = "record_telemetry_failed"
	ErrLoadTelemetry   ErrorCode = "load_telemetry_failed"
	ErrCloseTelemetry  ErrorCode = "close_telemetry_failed"

	// Transport errors
	ErrInitServer    ErrorCode = "init_server_failed"
	ErrInitFeed      ErrorCode = "init_feed_failed"
	ErrInitBroker    ErrorCode = "init_broker_failed"
	ErrInitMirror    ErrorCode = "init_mirror_failed"
	ErrInitDiscovery ErrorCode = "init_discovery_failed"
	ErrPublishFailed ErrorCode = "publish_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:         "Internal error occurred",
	ErrInvalidArgument:  "Invalid argument provided",
	ErrUnavailable:      "Service unavailable",
	ErrAlreadyRunning:   "Another instance is already running",
	ErrInvalidConfig:    "Invalid configuration",
	ErrMissingConfig:    "Missing configuration",
	ErrBindFlags:        "Failed to bind flags",
	ErrReadConfig:       "Failed to read configuration",
	ErrInvalidInterval:  "Invalid interval value",
	ErrInvalidLogLevel:  "Invalid log level",
	ErrInitFailed:       "Initialization failed",
	ErrShutdownFailed:   "Shutdown failed",
	ErrInitApp:          "Failed to initialize application",
	ErrMainLoop:         "Error in main loop",
	ErrOperationFailed:  "Operation failed",
	ErrTimeout:          "Operation timed out",
	ErrInvalidOperation: "Invalid operation",
	ErrInitTelemetry:    "Failed to initialize telemetry storage",
	ErrRecordTelemetry:  "Failed to record telemetry",
	ErrLoadTelemetry:    "Failed to load telemetry history",
	ErrCloseTelemetry:   "Failed to close telemetry storage",
	ErrInitServer:       "Failed to initialize HTTP server",
	ErrInitFeed:         "Failed to initialize telemetry feed",
	ErrInitBroker:       "Failed to initialize broker connection",
	ErrInitMirror:       "Failed to initialize live-state mirror",
	ErrInitDiscovery:    "Failed to initialize service discovery",
	ErrPublishFailed:    "Failed to publish message",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
