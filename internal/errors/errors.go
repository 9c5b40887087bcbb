package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrSubscriptionInactive = errors.New("subscription inactive")
	ErrSignatureInvalid     = errors.New("signature invalid")
	ErrTransientUpstream    = errors.New("transient upstream failure")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInternalError        = errors.New("internal error")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeNotFound             ErrorType = "not_found"
	ErrorTypeUnauthenticated      ErrorType = "unauthenticated"
	ErrorTypeUnauthorized         ErrorType = "unauthorized"
	ErrorTypeSubscriptionInactive ErrorType = "subscription_inactive"
	ErrorTypeSignatureInvalid     ErrorType = "signature_invalid"
	ErrorTypeUpstream             ErrorType = "upstream"
	ErrorTypeValidation           ErrorType = "validation"
	ErrorTypeInternal             ErrorType = "internal"
)

// SubscriptionReason is the user-facing reason code attached to
// subscription_inactive errors so callers can route to the right next step.
type SubscriptionReason string

const (
	ReasonNoSubscription SubscriptionReason = "no_subscription"
	ReasonTrialExpired   SubscriptionReason = "trial_expired"
	ReasonPaymentIssue   SubscriptionReason = "payment_issue"
)

// AccessError is a structured error for access-control and billing operations.
type AccessError struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g., "resolve_tenant", "apply_event")
	TenantID   string // Tenant scope if known
	Reason     SubscriptionReason
	Err        error // Underlying error
	StatusCode int   // HTTP status code if applicable
	Timestamp  time.Time
	Retryable  bool
}

func (e *AccessError) Error() string {
	if e.TenantID != "" {
		return fmt.Sprintf("%s failed for tenant %s: %v", e.Op, e.TenantID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *AccessError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound
	case ErrUnauthenticated:
		return e.Type == ErrorTypeUnauthenticated
	case ErrUnauthorized:
		return e.Type == ErrorTypeUnauthorized
	case ErrSubscriptionInactive:
		return e.Type == ErrorTypeSubscriptionInactive
	case ErrSignatureInvalid:
		return e.Type == ErrorTypeSignatureInvalid
	case ErrTransientUpstream:
		return e.Type == ErrorTypeUpstream
	case ErrInvalidInput:
		return e.Type == ErrorTypeValidation
	}

	return errors.Is(e.Err, target)
}

// NewAccessError creates a new AccessError
func NewAccessError(errorType ErrorType, op string, err error) *AccessError {
	return &AccessError{
		Type:      errorType,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType),
	}
}

// WithTenant adds tenant scope to the error
func (e *AccessError) WithTenant(tenantID string) *AccessError {
	e.TenantID = tenantID
	return e
}

// WithReason attaches a subscription reason code to the error
func (e *AccessError) WithReason(reason SubscriptionReason) *AccessError {
	e.Reason = reason
	return e
}

// WithStatusCode adds HTTP status code to the error
func (e *AccessError) WithStatusCode(code int) *AccessError {
	e.StatusCode = code
	if code >= 500 || code == 429 || code == 408 {
		e.Retryable = true
	} else if code >= 400 && code < 500 {
		e.Retryable = false
	}
	return e
}

// isRetryable determines if an error should be retried. Authorization and
// signature failures are final; only upstream failures warrant a retry.
func isRetryable(errorType ErrorType) bool {
	return errorType == ErrorTypeUpstream
}

// ReasonOf extracts the subscription reason code from an error chain, if any.
func ReasonOf(err error) SubscriptionReason {
	var ae *AccessError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}
