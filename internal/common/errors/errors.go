// Package errors provides the error taxonomy shared by the procedure
// transport and the background workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Codes surfaced over the procedure boundary.
const (
	ErrCodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrCodeInternalServerError ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest          ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeTooManyRequests     ErrorCode = "TOO_MANY_REQUESTS"
)

// Codes used by background jobs.
const (
	ErrCodeInvalidInput             ErrorCode = "INVALID_INPUT"
	ErrCodeAccountNotFound          ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeSearchQueryFailed        ErrorCode = "SEARCH_QUERY_FAILED"
)

// ReasonNoSession is the reason attached to UNAUTHORIZED when a private
// procedure is called without a live session.
const ReasonNoSession = "NO_SESSION"

// NoSessionMessage is returned verbatim to callers.
const NoSessionMessage = "NO_SESSION. No auth session found for incoming request."

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Reason returns the "reason" metadata entry, if any.
func (e *StandardError) Reason() string {
	if e.Metadata == nil {
		return ""
	}
	r, _ := e.Metadata["reason"].(string)
	return r
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewNoSessionError is raised for private procedures without a valid session.
// Never retried.
func NewNoSessionError() *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthorized,
		Message:   NoSessionMessage,
		Retryable: false,
		Metadata:  map[string]interface{}{"reason": ReasonNoSession},
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps cause. metadata is attached as-is and is expected to
// carry the failing payload and the user identity where one exists.
func NewInternalError(message string, cause error, metadata map[string]interface{}) *StandardError {
	e := &StandardError{
		Code:      ErrCodeInternalServerError,
		Message:   message,
		Retryable: false,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

func NewBadRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeBadRequest,
		Message:   "Invalid procedure input",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewNotFoundError(path string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("No procedure found on path %q", path),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewTooManyRequestsError() *StandardError {
	return &StandardError{
		Code:      ErrCodeTooManyRequests,
		Message:   "Rate limit exceeded",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidInputError creates a non-retryable job input error.
func NewInvalidInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Invalid job input",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAccountNotFoundError creates a non-retryable missing account error.
func NewAccountNotFoundError(userID, provider string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAccountNotFound,
		Message:   "Provider account not linked",
		Details:   fmt.Sprintf("userId: %s, provider: %s", userID, provider),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewSearchQueryFailedError creates a retryable search query error.
func NewSearchQueryFailedError(index string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchQueryFailed,
		Message:   "Elasticsearch query error",
		Details:   fmt.Sprintf("index: %s, error: %s", index, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 4. Conversion
// ==========================

// AsStandardError extracts a StandardError from err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Normalize always returns a StandardError; unknown errors become
// INTERNAL_SERVER_ERROR.
func Normalize(err error) *StandardError {
	if se, ok := AsStandardError(err); ok {
		return se
	}
	return NewInternalError("Unexpected error", err, nil)
}

// IsNoSession reports whether err is the NO_SESSION unauthorized error.
func IsNoSession(err error) bool {
	se, ok := AsStandardError(err)
	return ok && se.Code == ErrCodeUnauthorized && se.Reason() == ReasonNoSession
}

// HTTPStatus maps a procedure error code to its HTTP status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeBadRequest, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeNotFound, ErrCodeAccountNotFound:
		return http.StatusNotFound
	case ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// GetRetryCount returns the recommended job retry count.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeSearchQueryFailed:
		return 3
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case code == ErrCodeUnauthorized || strings.Contains(codeStr, "ACCOUNT"):
		return "AUTH"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY_EXECUTION"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "INVALID") || code == ErrCodeBadRequest:
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
