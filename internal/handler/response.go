package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rental/internal/repository"
	"rental/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, ErrorResponse{Error: errorCode(code), Message: err.Error()})
}

// respondBadRequest rejects a malformed request before it reaches a service.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: errorCode(http.StatusBadRequest), Message: message})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidRenterID),
		errors.Is(err, service.ErrInvalidUserID),
		errors.Is(err, service.ErrInvalidVehicleID),
		errors.Is(err, service.ErrInvalidBookingID),
		errors.Is(err, service.ErrInvalidPaymentID),
		errors.Is(err, service.ErrInvalidInstallmentID),
		errors.Is(err, service.ErrInvalidDateRange),
		errors.Is(err, service.ErrStartDateInPast),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidRefundAmount),
		errors.Is(err, service.ErrInvalidNotification),
		errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrAmountMismatch):
		return http.StatusBadRequest

	// Well-formed but not acceptable
	case errors.Is(err, service.ErrInvalidInstallmentOption),
		errors.Is(err, service.ErrNotEligible):
		return http.StatusUnprocessableEntity

	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusPaymentRequired

	// Conflict errors
	case errors.Is(err, service.ErrBookingConflict),
		errors.Is(err, repository.ErrLockTimeout),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, service.ErrBookingNotPending),
		errors.Is(err, service.ErrInvalidStatusTransition),
		errors.Is(err, service.ErrBookingAlreadyCancelled),
		errors.Is(err, service.ErrBookingCompleted),
		errors.Is(err, service.ErrVehicleUnavailable),
		errors.Is(err, service.ErrPaymentNotRefundable),
		errors.Is(err, service.ErrAlreadyProcessed):
		return http.StatusConflict

	// Forbidden
	case errors.Is(err, service.ErrNotBookingParty),
		errors.Is(err, service.ErrNotVehicleOwner):
		return http.StatusForbidden

	// Upstream gateway
	case errors.Is(err, service.ErrGatewayUnavailable),
		errors.Is(err, service.ErrRefundFailed):
		return http.StatusBadGateway

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	case http.StatusPaymentRequired:
		return "insufficient_funds"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusBadGateway:
		return "gateway_error"
	default:
		return "internal_error"
	}
}
