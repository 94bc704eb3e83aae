package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "without wrapped error",
			err: &APIError{
				Code:    "TEST_ERROR",
				Message: "something went wrong",
			},
			want: "TEST_ERROR: something went wrong",
		},
		{
			name: "with wrapped error",
			err: &APIError{
				Code:    "TEST_ERROR",
				Message: "something went wrong",
				Err:     errors.New("underlying cause"),
			},
			want: "TEST_ERROR: something went wrong (underlying cause)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &APIError{
		Code:    "TEST",
		Message: "test",
		Err:     underlying,
	}

	unwrapped := err.Unwrap()
	if unwrapped != underlying {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, underlying)
	}

	// Test nil case
	errNoWrap := &APIError{Code: "TEST", Message: "test"}
	if errNoWrap.Unwrap() != nil {
		t.Error("Unwrap() should return nil when no wrapped error")
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("checkout")

	if err.Code != "NOT_FOUND" {
		t.Errorf("Code = %q, want %q", err.Code, "NOT_FOUND")
	}
	if err.Message != "checkout not found" {
		t.Errorf("Message = %q, want %q", err.Message, "checkout not found")
	}
	if err.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, 404)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("error should wrap ErrNotFound sentinel")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("email", "must be a valid email address")

	if err.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want %q", err.Code, "VALIDATION_ERROR")
	}
	if err.Message != "invalid email: must be a valid email address" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Field != "email" {
		t.Errorf("Field = %q, want email", err.Field)
	}
	if err.StatusCode != 400 {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, 400)
	}
	if !errors.Is(err, ErrInvalidRequest) {
		t.Error("error should wrap ErrInvalidRequest sentinel")
	}
}

func TestNewTransitionError(t *testing.T) {
	err := NewTransitionError("shipping_choice", "payment", "no shipping option selected")

	if err.Code != "STEP_BLOCKED" {
		t.Errorf("Code = %q, want STEP_BLOCKED", err.Code)
	}
	if err.Message != "cannot move from shipping_choice to payment: no shipping option selected" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.StatusCode != 409 {
		t.Errorf("StatusCode = %d, want 409", err.StatusCode)
	}
}

func TestNewSessionError(t *testing.T) {
	err := NewSessionError("cart is empty")

	if err.StatusCode != 410 {
		t.Errorf("StatusCode = %d, want 410", err.StatusCode)
	}
	if !IsFatal(err) {
		t.Error("session errors must be fatal")
	}
	if IsRetryable(err) {
		t.Error("session errors must not be retryable")
	}
}

func TestNewCouponError(t *testing.T) {
	err := NewCouponError("Cupom expirado")

	if err.Message != "Cupom expirado" {
		t.Errorf("Message = %q, want backend text verbatim", err.Message)
	}
	if err.StatusCode != 422 {
		t.Errorf("StatusCode = %d, want 422", err.StatusCode)
	}
	if !IsRetryable(err) {
		t.Error("coupon errors are transactional and retryable")
	}
}

func TestNewUpstreamError(t *testing.T) {
	underlying := errors.New("connection refused")
	err := NewUpstreamError("shipping", underlying)

	if err.Code != "UPSTREAM_ERROR" {
		t.Errorf("Code = %q, want %q", err.Code, "UPSTREAM_ERROR")
	}
	if err.Message != "shipping request failed" {
		t.Errorf("Message = %q, want %q", err.Message, "shipping request failed")
	}
	if err.StatusCode != 502 {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, 502)
	}
	if !errors.Is(err, ErrUpstreamError) {
		t.Error("error should wrap ErrUpstreamError sentinel")
	}
}

func TestNewUpstreamMessageError(t *testing.T) {
	err := NewUpstreamMessageError("Pedido já processado", 409)

	if err.Message != "Pedido já processado" {
		t.Errorf("Message = %q, want backend text verbatim", err.Message)
	}
	if !errors.Is(err, ErrUpstreamError) {
		t.Error("error should wrap ErrUpstreamError sentinel")
	}
}

func TestNewPaymentError(t *testing.T) {
	err := NewPaymentError("card declined")

	if err.Code != "PAYMENT_ERROR" {
		t.Errorf("Code = %q, want %q", err.Code, "PAYMENT_ERROR")
	}
	if err.StatusCode != 402 {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, 402)
	}
	if !errors.Is(err, ErrPaymentFailed) {
		t.Error("error should wrap ErrPaymentFailed sentinel")
	}
}

func TestNewInternalError(t *testing.T) {
	underlying := errors.New("nil map")
	err := NewInternalError(underlying)

	if err.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, 500)
	}
	if err.Err != underlying {
		t.Error("wrapped error should be preserved")
	}
}

// TestErrorsIs verifies that errors.Is() works correctly with all sentinel errors.
// Handlers rely on it to pick response codes.
func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		sentinel error
	}{
		{"NotFound", NewNotFoundError("x"), ErrNotFound},
		{"Validation", NewValidationError("x", "y"), ErrInvalidRequest},
		{"Transition", NewTransitionError("a", "b", "c"), ErrInvalidTransition},
		{"InFlight", NewInFlightError("finalize"), ErrOperationInFlight},
		{"Session", NewSessionError("x"), ErrSessionFatal},
		{"Coupon", NewCouponError("x"), ErrCouponRejected},
		{"Upstream", NewUpstreamError("x", nil), ErrUpstreamError},
		{"Payment", NewPaymentError("x"), ErrPaymentFailed},
		{"RateLimit", NewRateLimitError("x"), ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%T, %v) = false, want true", tt.err, tt.sentinel)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", NewValidationError("cvv", "too short"), false},
		{"transition", NewTransitionError("a", "b", "c"), false},
		{"payment", NewPaymentError("declined"), true},
		{"wrapped upstream", fmt.Errorf("finalize: %w", NewUpstreamError("backend", nil)), true},
		{"in flight", NewInFlightError("coupon"), true},
		{"fatal", NewSessionError("gone"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestAPIErrorImplementsError verifies the error interface is properly implemented.
func TestAPIErrorImplementsError(t *testing.T) {
	var err error = &APIError{Code: "TEST", Message: "test"}
	_ = err.Error()

	wrapped := fmt.Errorf("outer: %w", err)
	var apiErr *APIError
	if !errors.As(wrapped, &apiErr) {
		t.Error("errors.As should find *APIError in wrapped error")
	}
}
