package errors

import (
	stderrors "errors"
	"fmt"
)

// IndexqError is the structured error type for indexq.
// It carries enough context for logging, retries and CLI presentation.
type IndexqError struct {
	// Code is the unique error code (e.g., "ERR_407_INVALID_JOB").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *IndexqError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexqError) Unwrap() error {
	return e.Cause
}

// Is matches another IndexqError by code, so errors.Is works against
// code-only templates such as New(ErrCodeLockHeld, "", nil).
func (e *IndexqError) Is(target error) bool {
	if t, ok := target.(*IndexqError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *IndexqError) WithDetail(key, value string) *IndexqError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *IndexqError) WithSuggestion(suggestion string) *IndexqError {
	e.Suggestion = suggestion
	return e
}

// New creates a new IndexqError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IndexqError {
	return &IndexqError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an IndexqError from an existing error, reusing its message.
func Wrap(code string, err error) *IndexqError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *IndexqError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a storage-related error for the index state store.
func StorageError(message string, cause error) *IndexqError {
	return New(ErrCodeStateStore, message, cause)
}

// EngineError creates a retryable search engine error.
func EngineError(message string, cause error) *IndexqError {
	return New(ErrCodeEngineUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *IndexqError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *IndexqError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first IndexqError in err's chain.
func As(err error) (*IndexqError, bool) {
	var ie *IndexqError
	if stderrors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// IsRetryable reports whether any IndexqError in err's chain is retryable.
func IsRetryable(err error) bool {
	ie, ok := As(err)
	return ok && ie.Retryable
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	ie, ok := As(err)
	return ok && ie.Severity == SeverityFatal
}

// GetCode extracts the error code, or "" if err carries none.
func GetCode(err error) string {
	if ie, ok := As(err); ok {
		return ie.Code
	}
	return ""
}

// GetCategory extracts the category, or "" if err carries none.
func GetCategory(err error) Category {
	if ie, ok := As(err); ok {
		return ie.Category
	}
	return ""
}
