package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/invoicedesk/internal/catalog"
	invoicedomain "github.com/smallbiznis/invoicedesk/internal/invoice/domain"
)

type errorPayload struct {
	Type          string                          `json:"type"`
	Message       string                          `json:"message"`
	Errors        []invoicedomain.ValidationError `json:"errors,omitempty"`
	InvoiceNumber int64                           `json:"invoice_number,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return invoicedomain.NewValidationError(field, code, message)
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var vErr *invoicedomain.ValidationError
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []invoicedomain.ValidationError{*vErr},
		}
	}

	var rErr *invoicedomain.RenderError
	if errors.As(err, &rErr) {
		return http.StatusInternalServerError, errorPayload{
			Type:          "render_error",
			Message:       "invoice saved but document could not be produced",
			InvoiceNumber: rErr.InvoiceNumber,
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []invoicedomain.ValidationError{*invoicedomain.NewValidationError("request", "invalid_request", "invalid request")},
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case invoicedomain.IsStorageError(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "storage_unavailable",
			Message: "invoice storage unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, catalog.ErrNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog returns the error type and code for the access log.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	var vErr *invoicedomain.ValidationError
	if errors.As(err, &vErr) {
		code = vErr.Code
	}
	var rErr *invoicedomain.RenderError
	if errors.As(err, &rErr) {
		code = rErr.Reason
	}
	var sErr *invoicedomain.StorageError
	if errors.As(err, &sErr) {
		code = sErr.Op
	}
	return payload.Type, code
}
