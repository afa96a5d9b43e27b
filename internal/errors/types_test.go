package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(ErrCodeMissingIdentifier, "message unit has no identifier"),
			expected: "MISSING_IDENTIFIER: message unit has no identifier",
		},
		{
			name:     "error with cause",
			err:      Wrap(errors.New("database is locked"), ErrCodeStoreFailure, "store upsert failed"),
			expected: "STORE_FAILURE: store upsert failed: database is locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternalError, "something went wrong")

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestAppError_WithContext(t *testing.T) {
	err := New(ErrCodeValidationFailed, "validation failed")

	result := err.WithContext("field", "wa_id").WithContext("value", "")

	assert.Same(t, err, result)
	assert.Len(t, err.Context, 2)
	assert.Equal(t, "wa_id", err.Context["field"])
}

func TestAs_FindsWrappedAppError(t *testing.T) {
	inner := NewStoreError("append", errors.New("disk I/O error"), true)
	outer := fmt.Errorf("reconcile m1: %w", inner)

	appErr, ok := As(outer)
	require.True(t, ok)
	assert.Equal(t, ErrCodeStoreFailure, appErr.Code)
	assert.True(t, IsRetryable(outer))
	assert.True(t, HasCode(outer, ErrCodeStoreFailure))
}

func TestGetCode_Defaults(t *testing.T) {
	assert.Equal(t, ErrCodeInternalError, GetCode(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, HasCode(nil, ErrCodeInternalError))
	assert.Equal(t, "An internal error occurred", GetUserMessage(errors.New("plain")))
}
