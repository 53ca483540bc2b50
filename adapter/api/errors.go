package api

import (
	"errors"
	"fmt"
	"net/http"

	accessDomain "github.com/felixgeelhaar/mtgate/internal/access/domain"
	proxyDomain "github.com/felixgeelhaar/mtgate/internal/proxy/domain"
	"github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/scheduler"
)

// APIError is the JSON error body.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches API errors by code so callers can use errors.Is with the
// values below.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

func (e *APIError) with(message string) *APIError {
	return &APIError{Status: e.Status, Code: e.Code, Message: message}
}

// Common API errors.
var (
	ErrBadRequest = &APIError{
		Status:  http.StatusBadRequest,
		Code:    "bad_request",
		Message: "Invalid request",
	}
	ErrUnauthorized = &APIError{
		Status:  http.StatusUnauthorized,
		Code:    "unauthorized",
		Message: "Missing or invalid API token",
	}
	ErrNotFound = &APIError{
		Status:  http.StatusNotFound,
		Code:    "not_found",
		Message: "Resource not found",
	}
	ErrCapacityExceeded = &APIError{
		Status:  http.StatusConflict,
		Code:    "capacity_exceeded",
		Message: "Capacity ceiling reached",
	}
	ErrAlreadyActive = &APIError{
		Status:  http.StatusConflict,
		Code:    "already_active",
		Message: "Entitlement already active",
	}
	ErrSalesBlocked = &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "sales_blocked",
		Message: "New sales are closed",
	}
	ErrTrialUnavailable = &APIError{
		Status:  http.StatusForbidden,
		Code:    "trial_unavailable",
		Message: "Trial not available for this subscriber",
	}
	ErrExpired = &APIError{
		Status:  http.StatusGone,
		Code:    "expired",
		Message: "Entitlement expired",
	}
	ErrProxy = &APIError{
		Status:  http.StatusBadGateway,
		Code:    "proxy_error",
		Message: "Proxy operation failed",
	}
	ErrInternalServer = &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "Internal server error",
	}
)

var sentinels = []struct {
	err    error
	apiErr *APIError
}{
	{accessDomain.ErrInvalidGrant, ErrBadRequest},
	{accessDomain.ErrNotFound, ErrNotFound},
	{accessDomain.ErrCapacityExceeded, ErrCapacityExceeded},
	// Trial refusals for active subscribers also match ErrAlreadyActive.
	{accessDomain.ErrTrialUnavailable, ErrTrialUnavailable},
	{accessDomain.ErrAlreadyActive, ErrAlreadyActive},
	{accessDomain.ErrSalesBlocked, ErrSalesBlocked},
	{accessDomain.ErrExpired, ErrExpired},
	{proxyDomain.ErrConvergenceFailed, ErrProxy},
	{scheduler.ErrUnknownJob, ErrNotFound},
}

// toAPIError maps domain sentinels to HTTP errors. Unknown errors become 500.
func toAPIError(err error) *APIError {
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.apiErr.with(err.Error())
		}
	}
	return ErrInternalServer.with(err.Error())
}
