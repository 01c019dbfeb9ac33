package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/tsanders-rh/kubecostd/internal/query"
	"github.com/tsanders-rh/kubecostd/internal/tsdb"
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

// ErrorValidation returns a 422 Unprocessable Entity error with validation details
func ErrorValidation(c echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ErrorBadRequest(c, err.Error())
	}

	details := make([]map[string]interface{}, len(verrs))
	for i, fe := range verrs {
		details[i] = map[string]interface{}{
			"field":   fe.Field(),
			"message": fe.Error(),
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

// ErrorFromQuery maps a query error onto the matching response
func ErrorFromQuery(c echo.Context, err error) error {
	switch {
	case errors.Is(err, query.ErrInvalidQuery),
		errors.Is(err, tsdb.ErrInvalidRange),
		errors.Is(err, tsdb.ErrRangeTooLarge),
		errors.Is(err, tsdb.ErrUnknownField),
		errors.Is(err, tsdb.ErrInvalidKey):
		return ErrorBadRequest(c, err.Error())
	case errors.Is(err, query.ErrNoInventory),
		errors.Is(err, context.DeadlineExceeded):
		return ErrorServiceUnavailable(c, err.Error())
	default:
		return ErrorInternal(c, err.Error())
	}
}
