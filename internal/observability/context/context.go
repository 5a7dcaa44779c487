package context

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

type requestIDKey struct{}

type correlationIDKey struct{}

type invoiceNumberKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// EnsureCorrelationID returns ctx carrying a correlation id, generating a
// ULID when none is present. Background jobs use it in place of a request id.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return context.WithValue(ctx, correlationIDKey{}, id), id
}

func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(correlationIDKey{}).(string)
	return v
}

func WithInvoiceNumber(ctx context.Context, number int64) context.Context {
	if number <= 0 {
		return ctx
	}
	return context.WithValue(ctx, invoiceNumberKey{}, number)
}

func InvoiceNumberFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	v, ok := ctx.Value(invoiceNumberKey{}).(int64)
	return v, ok
}
