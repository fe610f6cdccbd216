package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexqError_UnwrapPreservesCause(t *testing.T) {
	cause := errors.New("disk read failed")
	err := New(ErrCodeStateStore, "load index state", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[ERR_205_STATE_STORE] load index state: disk read failed", err.Error())
}

func TestIndexqError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("open data dir: %w", New(ErrCodeLockHeld, "locked by pid 42", nil))

	assert.ErrorIs(t, err, New(ErrCodeLockHeld, "", nil))
	assert.NotErrorIs(t, err, New(ErrCodeDiskFull, "", nil))
}

func TestIndexqError_DetailsAndSuggestion(t *testing.T) {
	err := ConfigError("bad capacity", nil).
		WithDetail("field", "queue.capacity").
		WithSuggestion("use a positive number")

	assert.Equal(t, "queue.capacity", err.Details["field"])
	assert.Equal(t, "use a positive number", err.Suggestion)
}

func TestNew_DerivesClassificationFromCode(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeLockHeld, CategoryStorage, SeverityFatal, false},
		{ErrCodeCorruptIndex, CategoryStorage, SeverityFatal, false},
		{ErrCodeEngineBusy, CategoryBackend, SeverityWarning, true},
		{ErrCodeDaemonUnavailable, CategoryBackend, SeverityError, false},
		{ErrCodeInvalidJob, CategoryValidation, SeverityError, false},
		{ErrCodeIndexFailed, CategoryInternal, SeverityError, false},
		{"bogus", CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestHelpers_LookThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("index doc: %w", EngineError("busy", nil))

	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsFatal(wrapped))
	assert.Equal(t, ErrCodeEngineUnavailable, GetCode(wrapped))
	assert.Equal(t, CategoryBackend, GetCategory(wrapped))

	plain := errors.New("plain")
	assert.False(t, IsRetryable(plain))
	assert.Empty(t, GetCode(plain))
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}
