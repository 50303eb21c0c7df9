package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tsanders-rh/modelctl/internal/deployment"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/internal/policy"
	"github.com/tsanders-rh/modelctl/internal/pricing"
	"github.com/tsanders-rh/modelctl/internal/store"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string                   `json:"error"`
	Message string                   `json:"message,omitempty"`
	Details []map[string]interface{} `json:"details,omitempty"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(error, message string) *ErrorResponse {
	return &ErrorResponse{
		Error:   error,
		Message: message,
	}
}

// WithDetails adds details to an error response
func (e *ErrorResponse) WithDetails(details []map[string]interface{}) *ErrorResponse {
	e.Details = details
	return e
}

// ErrorBadRequest returns a 400 Bad Request error
func ErrorBadRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", message))
}

// ErrorNotFound returns a 404 Not Found error
func ErrorNotFound(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", message))
}

// ErrorConflict returns a 409 Conflict error
func ErrorConflict(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, NewErrorResponse("conflict", message))
}

// ErrorValidation returns a 422 Unprocessable Entity error with validation details
func ErrorValidation(c echo.Context, errs []policy.ValidationError) error {
	details := make([]map[string]interface{}, len(errs))
	for i, err := range errs {
		details[i] = map[string]interface{}{
			"field":   err.Field,
			"message": err.Message,
		}
	}

	return c.JSON(http.StatusUnprocessableEntity, NewErrorResponse(
		"validation_failed",
		"Request validation failed",
	).WithDetails(details))
}

// ErrorInternal returns a 500 Internal Server Error
func ErrorInternal(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", message))
}

// ErrorServiceUnavailable returns a 503 Service Unavailable error
func ErrorServiceUnavailable(c echo.Context, message string) error {
	return c.JSON(http.StatusServiceUnavailable, NewErrorResponse("service_unavailable", message))
}

// ErrorFrom maps a domain error onto its HTTP status
func ErrorFrom(c echo.Context, err error) error {
	var invalid *deployment.InvalidPolicyError
	var provErr *deployment.ProvisionerError

	switch {
	case errors.As(err, &invalid):
		return ErrorValidation(c, invalid.Errors)
	case errors.Is(err, deployment.ErrInvalidPolicy),
		errors.Is(err, pricing.ErrUnknownProvider),
		errors.Is(err, pricing.ErrUnknownRegion):
		return ErrorBadRequest(c, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return ErrorNotFound(c, err.Error())
	case errors.Is(err, deployment.ErrConflictingState), errors.Is(err, store.ErrConflict):
		return ErrorConflict(c, err.Error())
	case errors.As(err, &provErr):
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("provisioner_failed", err.Error()))
	default:
		logger.Log.Errorw("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
		return ErrorInternal(c, err.Error())
	}
}
