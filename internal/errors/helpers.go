package errors

import (
	"fmt"
	"net/http"
)

// NewMissingIdentifierError is returned for a webhook unit that carries no usable id.
func NewMissingIdentifierError(unitKind string, triedFields []string) *AppError {
	return New(ErrCodeMissingIdentifier, fmt.Sprintf("%s unit has no identifier", unitKind)).
		WithContext("unit", unitKind).
		WithContext("tried_fields", triedFields)
}

// NewMalformedPayloadError wraps a parse or structural failure of a whole payload.
func NewMalformedPayloadError(source string, err error) *AppError {
	return Wrap(err, ErrCodeMalformedPayload, "malformed webhook payload").
		WithContext("source", source).
		WithUserMessage("Request body is not a valid webhook payload")
}

// NewStoreError wraps a persistence failure. Transient failures are marked retryable.
func NewStoreError(operation string, err error, transient bool) *AppError {
	appErr := Wrap(err, ErrCodeStoreFailure, fmt.Sprintf("store %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Storage is temporarily unavailable")
	appErr.Retryable = transient
	return appErr
}

// NewNotifierError wraps a best-effort fan-out failure.
func NewNotifierError(sink string, err error) *AppError {
	return WrapRetryable(err, ErrCodeNotifierFailure, fmt.Sprintf("%s notification failed", sink)).
		WithContext("sink", sink)
}

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

func NewConflictError(resource, identifier string) *AppError {
	return New(ErrCodeConflict, fmt.Sprintf("%s already exists", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s already exists", resource))
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}

// HTTPStatusCode maps error codes to HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeMalformedPayload, ErrCodeMissingIdentifier:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeStoreFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the JSON body written for failed API requests
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}

	appErr, ok := As(err)
	if !ok {
		response.Error.Code = ErrCodeInternalError
		response.Error.Message = GetUserMessage(err)
		return response
	}

	response.Error.Code = appErr.Code
	response.Error.Message = GetUserMessage(err)
	if appErr.Code == ErrCodeValidationFailed || appErr.Code == ErrCodeConflict {
		public := make(map[string]interface{})
		for k, v := range appErr.Context {
			if k != "secret" && k != "token" {
				public[k] = v
			}
		}
		if len(public) > 0 {
			response.Error.Context = public
		}
	}
	return response
}
