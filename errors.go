package optiq

import (
	"errors"
	"fmt"
	"time"
)

// Error type classifiers carried by RequestError.Type.
const (
	// ErrorTypeTimeout marks calls that exceeded their allotted time.
	ErrorTypeTimeout = "Timeout"

	// ErrorTypeNetwork marks transport-level failures with no usable response.
	ErrorTypeNetwork = "Network"

	// ErrorTypeServer marks responses that were received but indicate failure.
	ErrorTypeServer = "Server"

	// ErrorTypeValidation marks malformed inputs rejected before any network
	// activity (e.g. non-primitive parameter values).
	ErrorTypeValidation = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrNoTransport is returned when a request is made without a transport configured.
	ErrNoTransport = errors.New("optiq: no transport configured")

	// ErrReset is delivered to waiters whose pending operation was discarded by Reset.
	ErrReset = errors.New("optiq: client reset")
)

// RequestError represents a classified failure of an optimized request.
// All waiters attached to the same settlement receive the same *RequestError.
type RequestError struct {
	Type       string
	Message    string
	Endpoint   string
	StatusCode int
	Cause      error
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Endpoint != "" {
		msg = fmt.Sprintf("%s (endpoint %s)", msg, e.Endpoint)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*RequestError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsTimeout reports whether err is a timeout-classified request error.
func IsTimeout(err error) bool {
	return hasErrorType(err, ErrorTypeTimeout)
}

// IsNetworkError reports whether err is a transport-level failure.
func IsNetworkError(err error) bool {
	return hasErrorType(err, ErrorTypeNetwork)
}

// IsServerError reports whether err carries a failure response from the backend.
func IsServerError(err error) bool {
	return hasErrorType(err, ErrorTypeServer)
}

// IsValidationError reports whether err was rejected before any network activity.
func IsValidationError(err error) bool {
	return hasErrorType(err, ErrorTypeValidation)
}

func hasErrorType(err error, errorType string) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Type == errorType
	}
	return false
}

func newRequestError(errorType, endpoint, message string, cause error, statusCode int, start time.Time) *RequestError {
	return &RequestError{
		Type:       errorType,
		Message:    message,
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Cause:      cause,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
	}
}
