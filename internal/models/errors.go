package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("requested resource not found")
var ErrForbidden = errors.New("user does not have permission to access this resource")
var ErrValidation = errors.New("invalid input")

// Order lifecycle errors.
var ErrInvalidTransition = errors.New("invalid order status transition")
var ErrTerminalState = errors.New("order is in a terminal state")
var ErrCancellationWindowExpired = errors.New("cancellation window has expired")

// ErrStatusConflict reports that a status-guarded write affected zero rows:
// the order's status changed between the caller's read and its write.
var ErrStatusConflict = errors.New("order status changed concurrently")
var ErrBelowMinimumOrder = errors.New("order subtotal is below the service minimum")
var ErrServiceClosed = errors.New("service is currently closed")
var ErrItemUnavailable = errors.New("menu item is not available")

// OTP errors. These are distinct so clients can decide between "retry the
// code", "request a new one", and "stop asking".
var ErrOTPExpired = errors.New("delivery OTP has expired")
var ErrOTPMismatch = errors.New("delivery OTP does not match")
var ErrOTPAttemptsExceeded = errors.New("delivery OTP attempt limit exceeded")
var ErrOTPNotIssued = errors.New("no delivery OTP issued for this order")

// Assignment errors.
var ErrAgentNotFound = errors.New("team member not found")
var ErrAgentWrongRole = errors.New("user is not a team member")
var ErrAgentInactive = errors.New("team member is not active")

// InvalidTransitionError reports the offending from/to pair of a rejected
// status change. It unwraps to ErrInvalidTransition (or ErrTerminalState when
// the source status is terminal) so callers can match with errors.Is.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %q to %q", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	if e.From.IsTerminal() {
		return ErrTerminalState
	}
	return ErrInvalidTransition
}

// CancellationWindowError carries the elapsed time since order creation for
// operator diagnosis.
type CancellationWindowError struct {
	Elapsed time.Duration
	Window  time.Duration
}

func (e *CancellationWindowError) Error() string {
	return fmt.Sprintf("order can only be cancelled within %s of placement (elapsed %s)", e.Window, e.Elapsed.Round(time.Second))
}

func (e *CancellationWindowError) Unwrap() error { return ErrCancellationWindowExpired }

// BelowMinimumOrderError carries both the computed subtotal and the required
// minimum.
type BelowMinimumOrderError struct {
	Subtotal float64
	Minimum  float64
}

func (e *BelowMinimumOrderError) Error() string {
	return fmt.Sprintf("order subtotal %.2f is below the minimum order amount %.2f", e.Subtotal, e.Minimum)
}

func (e *BelowMinimumOrderError) Unwrap() error { return ErrBelowMinimumOrder }

// ErrorResponse is the standard JSON error body returned by handlers.
type ErrorResponse struct {
	Message string `json:"message"`
}
