// Package errors defines the unified error taxonomy for the routing gateway.
// Every component surfaces failures through GatewayError so that admission,
// retry, and HTTP-response logic can switch on a closed set of kinds instead
// of inspecting ad-hoc error strings.
package errors

import (
	"fmt"
	"net/http"
)

// Kind is the closed set of error categories the core distinguishes.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindRateLimited     Kind = "rate_limited"
	KindTransient       Kind = "transient"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindBudgetExceeded  Kind = "budget_exceeded"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindCircuitOpen     Kind = "circuit_open"
	KindDataUnavailable Kind = "data_unavailable"
	KindInternal        Kind = "internal"
)

// GatewayError is the standardized error carried across component boundaries.
type GatewayError struct {
	Kind       Kind    `json:"kind"`
	Message    string  `json:"message"`
	Component  string  `json:"component,omitempty"`
	RetryAfter float64 `json:"retry_after,omitempty"`
	Retryable  bool    `json:"-"`
}

func (e *GatewayError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("[%s] %s (component=%s)", e.Kind, e.Message, e.Component)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// HTTPStatusCode maps a Kind to the status code the HTTP surface should send.
func (e *GatewayError) HTTPStatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimited, KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindBudgetExceeded:
		return http.StatusPaymentRequired
	case KindTransient, KindDataUnavailable:
		return http.StatusServiceUnavailable
	case KindCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, component, message string) *GatewayError {
	return &GatewayError{Kind: kind, Component: component, Message: message, Retryable: kind == KindTransient || kind == KindRateLimited}
}

func NewValidation(component, message string) *GatewayError {
	return New(KindValidation, component, message)
}

func NewNotFound(component, message string) *GatewayError {
	return New(KindNotFound, component, message)
}

func NewConflict(component, message string) *GatewayError {
	return New(KindConflict, component, message)
}

func NewInternal(component, message string) *GatewayError {
	return New(KindInternal, component, message)
}

// NewRateLimited builds a rate-limit error with the seconds a caller should wait.
func NewRateLimited(component, message string, retryAfter float64) *GatewayError {
	e := New(KindRateLimited, component, message)
	e.RetryAfter = retryAfter
	return e
}

// NewQuotaExceeded builds an admission-time quota denial.
func NewQuotaExceeded(component, message string, retryAfter float64) *GatewayError {
	e := New(KindQuotaExceeded, component, message)
	e.RetryAfter = retryAfter
	return e
}

// NewBudgetExceeded builds an admission-time budget denial.
func NewBudgetExceeded(component, message string) *GatewayError {
	return New(KindBudgetExceeded, component, message)
}

// NewDataUnavailable signals an adapter fetch failed with nothing usable in cache.
func NewDataUnavailable(component, message string) *GatewayError {
	return New(KindDataUnavailable, component, message)
}

// NewTransient signals a retryable upstream failure (timeout, connection error, 5xx).
func NewTransient(component, message string) *GatewayError {
	return New(KindTransient, component, message)
}

// IsRetryable reports whether the transport-level status code should trigger
// an adapter retry: 429, 408, and any 5xx.
func IsRetryable(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout {
		return true
	}
	return statusCode >= 500
}

// IsCooldownRequired reports whether an upstream status code warrants
// cooling the model down: 429, 401, 404, 408, and any 5xx.
func IsCooldownRequired(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusUnauthorized, http.StatusNotFound, http.StatusRequestTimeout:
		return true
	}
	return statusCode >= 500
}

// As extracts a *GatewayError from err, if it is one.
func As(err error) (*GatewayError, bool) {
	ge, ok := err.(*GatewayError)
	return ge, ok
}
