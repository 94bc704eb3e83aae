package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidTransition = errors.New("invalid step transition")
	ErrOperationInFlight = errors.New("operation already in flight")
	ErrSessionFatal      = errors.New("checkout session ended")
	ErrCouponRejected    = errors.New("coupon rejected")
	ErrPaymentFailed     = errors.New("payment failed")
	ErrUpstreamError     = errors.New("upstream error")
	ErrRateLimited       = errors.New("rate limited")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"` // Set for field-scoped validation errors
	StatusCode int    `json:"-"`               // HTTP status, not serialized
	Err        error  `json:"-"`               // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input on a single field.
// Validation errors never reach the network.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Field:      field,
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidRequest,
	}
}

// NewTransitionError creates a 409 error for a blocked wizard step change.
func NewTransitionError(from, to, reason string) *APIError {
	return &APIError{
		Code:       "STEP_BLOCKED",
		Message:    fmt.Sprintf("cannot move from %s to %s: %s", from, to, reason),
		StatusCode: http.StatusConflict,
		Err:        ErrInvalidTransition,
	}
}

// NewInFlightError creates a 409 error when the same operation category
// is already outstanding for a wizard.
func NewInFlightError(operation string) *APIError {
	return &APIError{
		Code:       "OPERATION_IN_FLIGHT",
		Message:    fmt.Sprintf("%s already in progress", operation),
		StatusCode: http.StatusConflict,
		Err:        ErrOperationInFlight,
	}
}

// NewSessionError creates a 410 error for unrecoverable session problems:
// missing user, missing session token, empty cart, abandoned wizard.
// Callers must exit the wizard instead of showing an inline error.
func NewSessionError(reason string) *APIError {
	return &APIError{
		Code:       "SESSION_ENDED",
		Message:    reason,
		StatusCode: http.StatusGone,
		Err:        ErrSessionFatal,
	}
}

// NewCouponError creates a 422 error for a rejected coupon code.
// The message is the backend's text, shown as-is to the buyer.
func NewCouponError(message string) *APIError {
	return &APIError{
		Code:       "COUPON_REJECTED",
		Message:    message,
		Field:      "coupon_code",
		StatusCode: http.StatusUnprocessableEntity,
		Err:        ErrCouponRejected,
	}
}

// NewUpstreamError creates a 502 error for backend failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: http.StatusBadGateway,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewUpstreamMessageError creates a 502 error that carries the backend's
// own error text verbatim.
func NewUpstreamMessageError(message string, status int) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Err:        fmt.Errorf("%w: status %d", ErrUpstreamError, status),
	}
}

// NewPaymentError creates a 402 error for payment issues.
func NewPaymentError(reason string) *APIError {
	return &APIError{
		Code:       "PAYMENT_ERROR",
		Message:    reason,
		StatusCode: http.StatusPaymentRequired,
		Err:        ErrPaymentFailed,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: http.StatusTooManyRequests,
		Err:        ErrRateLimited,
	}
}

// MessageOf returns the buyer-facing message carried by err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// IsFatal reports whether err ends the wizard.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSessionFatal)
}

// IsRetryable reports whether the buyer can retry the same action,
// possibly after changing input (transactional errors).
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrSessionFatal):
		return false
	case errors.Is(err, ErrPaymentFailed),
		errors.Is(err, ErrCouponRejected),
		errors.Is(err, ErrUpstreamError),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrOperationInFlight):
		return true
	default:
		return false
	}
}
