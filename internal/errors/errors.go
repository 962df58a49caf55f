// Package errors provides the error types and classification helpers used
// across prflow.
//
// # Error Types
//
// Domain errors describe failures at the two backend boundaries:
//   - RequestError: the synchronous run request or health check failed
//   - StreamError: the runtime event subscription failed
//
// Semantic errors describe common conditions:
//   - ValidationError: invalid input or configuration
//   - TimeoutError: an operation exceeded its deadline
//
// # Usage
//
//	err := errors.NewRequestError(errors.KindBackend, "run workflow", nil).
//		WithStatus(502).WithDetail("upstream unavailable")
//
//	if errors.IsRetryable(err) { ... }
//	msg := errors.UserMessage(err)
//
// UserMessage is the only text the dashboard shows for a failed run. Backend
// details are surfaced verbatim; connectivity failures get a hint.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Sentinel errors.
var (
	// ErrBackendUnreachable indicates the API could not be reached at all.
	ErrBackendUnreachable = New("backend unreachable")
	// ErrBackendRejected indicates the API answered with a non-2xx status.
	ErrBackendRejected = New("backend rejected request")
	// ErrMalformedResponse indicates a 2xx body that could not be decoded.
	ErrMalformedResponse = New("malformed response")
	// ErrStreamClosed indicates the event stream ended.
	ErrStreamClosed = New("event stream closed")
	// ErrRunInProgress indicates a run is already being submitted.
	ErrRunInProgress = New("run already in progress")
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// FallbackDetail is shown when the backend fails without a usable detail.
const FallbackDetail = "Failed to run workflow. The API returned no details."

// ConnectivityHint is appended to messages for network failures.
const ConnectivityHint = "Check that the backend is running, the base URL is correct, and network/CORS settings allow the request."

// PrflowError is the base interface for all prflow errors.
type PrflowError interface {
	error
	Unwrap() error
	Is(target error) bool
	Severity() Severity
	IsRetryable() bool
}

type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity {
	return e.severity
}

func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// -----------------------------------------------------------------------------
// Domain Errors
// -----------------------------------------------------------------------------

// RequestKind categorises a failed request.
type RequestKind string

const (
	// KindNetwork is a dial, DNS or connection failure before any response.
	KindNetwork RequestKind = "network"
	// KindBackend is a non-2xx response.
	KindBackend RequestKind = "backend"
	// KindDecode is a 2xx response whose body could not be decoded.
	KindDecode RequestKind = "decode"
	// KindCanceled is a request abandoned by its context.
	KindCanceled RequestKind = "canceled"
)

// RequestError represents a failed call to the workflow API.
//
// Example:
//
//	err := errors.NewRequestError(errors.KindNetwork, "run workflow", dialErr).
//		WithURL("http://localhost:8000/workflow/run").
//		WithRequestID("4b0c...")
type RequestError struct {
	baseError
	Kind       RequestKind
	Operation  string
	URL        string
	StatusCode int
	Detail     string
	RequestID  string
}

// NewRequestError creates a new RequestError.
func NewRequestError(kind RequestKind, operation string, cause error) *RequestError {
	return &RequestError{
		baseError: baseError{
			message:   operation,
			cause:     cause,
			severity:  requestSeverity(kind),
			retryable: kind == KindNetwork,
		},
		Kind:      kind,
		Operation: operation,
	}
}

// requestSeverity logs canceled requests at info, everything else at error.
func requestSeverity(kind RequestKind) Severity {
	if kind == KindCanceled {
		return SeverityInfo
	}
	return SeverityError
}

// WithURL adds the request URL to the error context.
func (e *RequestError) WithURL(url string) *RequestError {
	e.URL = url
	return e
}

// WithStatus adds the HTTP status code. 5xx responses are retryable.
func (e *RequestError) WithStatus(code int) *RequestError {
	e.StatusCode = code
	e.retryable = code >= 500
	return e
}

// WithDetail adds the backend-supplied failure detail.
func (e *RequestError) WithDetail(detail string) *RequestError {
	e.Detail = detail
	return e
}

// WithRequestID adds the correlation id of the failed request.
func (e *RequestError) WithRequestID(id string) *RequestError {
	e.RequestID = id
	return e
}

// Error returns the formatted error message.
func (e *RequestError) Error() string {
	parts := []string{"kind=" + string(e.Kind)}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.RequestID != "" {
		parts = append(parts, "request="+e.RequestID)
	}
	prefix := fmt.Sprintf("request error [%s]", strings.Join(parts, ", "))

	msg := e.message
	if e.Detail != "" {
		msg = msg + ": " + e.Detail
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Is checks if this error matches the target.
func (e *RequestError) Is(target error) bool {
	if _, ok := target.(*RequestError); ok {
		return true
	}
	switch {
	case target == ErrBackendUnreachable && e.Kind == KindNetwork,
		target == ErrBackendRejected && e.Kind == KindBackend,
		target == ErrMalformedResponse && e.Kind == KindDecode,
		target == ErrCanceled && e.Kind == KindCanceled:
		return true
	}
	return e.baseError.Is(target)
}

// StreamError represents a failure of the runtime event subscription.
// Stream errors are never user-facing: the dashboard freezes on the last
// known state instead of reporting them as run failures.
type StreamError struct {
	baseError
	RequestID string
}

// NewStreamError creates a new StreamError.
func NewStreamError(message string, cause error) *StreamError {
	return &StreamError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityWarning,
		},
	}
}

// WithRequestID adds the correlation id of the subscription.
func (e *StreamError) WithRequestID(id string) *StreamError {
	e.RequestID = id
	return e
}

// Error returns the formatted error message.
func (e *StreamError) Error() string {
	prefix := "stream error"
	if e.RequestID != "" {
		prefix = fmt.Sprintf("stream error [request=%s]", e.RequestID)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StreamError) Is(target error) bool {
	if _, ok := target.(*StreamError); ok {
		return true
	}
	if target == ErrStreamClosed {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or configuration.
//
// Example:
//
//	err := errors.NewValidationError("must be greater than 0").
//		WithField("issue_number").WithValue(0)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			severity: SeverityWarning,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Message returns the bare validation message without context.
func (e *ValidationError) Message() string {
	if e.Field != "" {
		return e.Field + " " + e.message
	}
	return e.message
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Value != nil && fmt.Sprint(e.Value) != "" {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:   operation,
			severity:  SeverityWarning,
			retryable: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe PrflowError
	if As(err, &pe) {
		return pe.IsRetryable()
	}
	return Is(err, ErrTimeout)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement PrflowError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var pe PrflowError
	if As(err, &pe) {
		return pe.Severity()
	}
	return SeverityError
}

// UserMessage returns the text shown to the user for a failed run.
//
//   - backend failures: the backend detail verbatim, else FallbackDetail
//   - network failures: a categorised message with ConnectivityHint
//   - validation failures: the validation messages joined with "; "
//   - anything else: the raw error text
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var reqErr *RequestError
	if As(err, &reqErr) {
		switch reqErr.Kind {
		case KindBackend:
			if reqErr.Detail != "" {
				return reqErr.Detail
			}
			return FallbackDetail
		case KindNetwork:
			target := "the workflow API"
			if reqErr.URL != "" {
				target = reqErr.URL
			}
			return fmt.Sprintf("Network error: could not reach %s. %s", target, ConnectivityHint)
		case KindDecode:
			return "The workflow API returned a response that could not be read."
		case KindCanceled:
			return "The request was canceled."
		}
	}

	if msgs := validationMessages(err); len(msgs) > 0 {
		return strings.Join(msgs, "; ")
	}

	var timeout *TimeoutError
	if As(err, &timeout) {
		return fmt.Sprintf("Timed out after %s while waiting to %s.", timeout.Duration, timeout.Operation)
	}

	return err.Error()
}

func validationMessages(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, validationMessages(e)...)
		}
		return out
	}
	var v *ValidationError
	if As(err, &v) {
		return []string{v.Message()}
	}
	return nil
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
