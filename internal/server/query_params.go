package server

import (
	"strconv"
	"strings"
)

// parseInvoiceNumber accepts a positive decimal invoice number.
func parseInvoiceNumber(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, ErrInvalidRequest
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, newValidationError("number", "invalid_number", "invoice number must be a positive integer")
	}
	return parsed, nil
}
