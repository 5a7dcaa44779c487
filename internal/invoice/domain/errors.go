package domain

import (
	"errors"
	"fmt"
)

var ErrInvoiceNotFound = errors.New("invoice_not_found")

// ValidationError reports a rejected submission. Index is the position of
// the offending raw item, or -1 when the field is not item scoped.
type ValidationError struct {
	Field   string `json:"field"`
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewValidationError(field, code, message string) *ValidationError {
	return &ValidationError{Field: field, Index: -1, Code: code, Message: message}
}

func NewItemValidationError(index int, field, code, message string) *ValidationError {
	return &ValidationError{Field: field, Index: index, Code: code, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("items[%d].%s: %s", e.Index, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// StorageError wraps a failure to read from or append to a store. An
// invoice number is never considered issued when Save returns one.
type StorageError struct {
	Op      string
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func NewStorageError(backend, op string, err error) *StorageError {
	return &StorageError{Op: op, Backend: backend, Err: err}
}

// RenderError is returned after the record was committed; the record can
// be rendered again later.
type RenderError struct {
	InvoiceNumber int64
	Reason        string
	Err           error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render invoice %d: %s: %v", e.InvoiceNumber, e.Reason, e.Err)
	}
	return fmt.Sprintf("render invoice %d: %s", e.InvoiceNumber, e.Reason)
}

func (e *RenderError) Unwrap() error { return e.Err }

func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsStorageError(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

func IsRenderError(err error) bool {
	var target *RenderError
	return errors.As(err, &target)
}
