package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  req-1 ")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	assert.Equal(t, "", RequestIDFromContext(WithRequestID(context.Background(), "")))
}

func TestEnsureCorrelationID_IsStable(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	assert.Len(t, id, 26)

	again, same := EnsureCorrelationID(ctx)
	assert.Equal(t, id, same)
	assert.Equal(t, id, CorrelationIDFromContext(again))
}

func TestInvoiceNumber(t *testing.T) {
	ctx := WithInvoiceNumber(context.Background(), 42)
	n, ok := InvoiceNumberFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = InvoiceNumberFromContext(WithInvoiceNumber(context.Background(), 0))
	assert.False(t, ok)
}
