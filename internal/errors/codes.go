// Package errors provides structured error handling for indexq.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (content files, index data, locks)
//   - 3XX: Backend errors (search engine, control socket)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryStorage    Category = "STORAGE"
	CategoryBackend    Category = "BACKEND"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound   = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeConfigPermission = "ERR_103_CONFIG_PERMISSION"

	// Storage errors (200-299)
	ErrCodeContentNotFound = "ERR_201_CONTENT_NOT_FOUND"
	ErrCodeFilePermission  = "ERR_202_FILE_PERMISSION"
	ErrCodeDiskFull        = "ERR_203_DISK_FULL"
	ErrCodeCorruptIndex    = "ERR_204_CORRUPT_INDEX"
	ErrCodeStateStore      = "ERR_205_STATE_STORE"
	ErrCodeLockHeld        = "ERR_206_LOCK_HELD"

	// Backend errors (300-399)
	ErrCodeEngineBusy        = "ERR_301_ENGINE_BUSY"
	ErrCodeEngineUnavailable = "ERR_302_ENGINE_UNAVAILABLE"
	ErrCodeDaemonUnavailable = "ERR_303_DAEMON_UNAVAILABLE"
	ErrCodeDaemonTimeout     = "ERR_304_DAEMON_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeInvalidInput     = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidReference = "ERR_402_INVALID_REFERENCE"
	ErrCodeInvalidQuery     = "ERR_403_INVALID_QUERY"
	ErrCodeQueryEmpty       = "ERR_404_QUERY_EMPTY"
	ErrCodeInvalidPriority  = "ERR_405_INVALID_PRIORITY"
	ErrCodeInvalidPath      = "ERR_406_INVALID_PATH"
	ErrCodeInvalidJob       = "ERR_407_INVALID_JOB"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeIndexFailed  = "ERR_502_INDEX_FAILED"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeDiskFull, ErrCodeLockHeld:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode reports whether an operation failing with code is worth
// another attempt.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEngineBusy, ErrCodeEngineUnavailable, ErrCodeDaemonTimeout:
		return true
	default:
		return false
	}
}
