package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributes_DropsCustomerFields(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("customer_name", "Ali Traders"),
		attribute.Int64("invoice_number", 3),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("invoice_number"), attrs[0].Key)
}

func TestSafeError(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.Equal(t, "a b", SafeError(errors.New("a\n  b")).Error())
	assert.Len(t, SafeError(errors.New(strings.Repeat("x", 500))).Error(), 256)
}
