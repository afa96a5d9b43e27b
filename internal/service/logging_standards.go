package service

// Logging Standards for wamirror
//
// Standard field names, shared by the ingest pipeline, the HTTP layer and
// the notifier sinks. Identifier fields are masked by SafeFields.
const (
	// Core identifiers
	LogFieldMessageID = "message_id"
	LogFieldContactID = "wa_id"
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Message and event fields
	LogFieldEvent     = "event"
	LogFieldUnit      = "unit"    // "message" or "status"
	LogFieldOutcome   = "outcome" // "stored", "matched", "placeholder", "skipped", "failed"
	LogFieldStatus    = "status"
	LogFieldDirection = "direction" // "inbound" or "outbound"
	LogFieldShape     = "payload_shape"
	LogFieldSource    = "source"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Network and external services
	LogFieldURL        = "url"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldSink       = "sink"

	// File and batch
	LogFieldFilePath = "file_path"
	LogFieldFileName = "file_name"

	// Error and debugging
	LogFieldErrorCode  = "error_code"
	LogFieldErrorType  = "error_type"
	LogFieldRetryCount = "retry_count"
	LogFieldAttempt    = "attempt"
)

// Log Level Usage Guidelines
//
// DEBUG: per-unit flow, raw payload fragments (verbose mode only).
// INFO: startup/shutdown, configuration loaded, payload ingest summaries.
// WARN: skipped units, retryable store errors, dropped notifications.
// ERROR: failed units after retries, failed requests.
// FATAL: configuration or store unavailable at startup.

// Standard Log Message Patterns
//
// Starting operations: "Starting [operation]"
// Completed operations: "Completed [operation]"
// Failed operations: "Failed to [operation]"
// Skipping operations: "Skipping [operation]: [reason]"
//
// logger.WithFields(SafeFields(ctx, logrus.Fields{
//     LogFieldMessageID: messageID,
//     LogFieldUnit:      "status",
//     LogFieldOutcome:   "placeholder",
// })).Info("Reconciled status event")
