package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeLine(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name         string
		qty          int64
		rate         string
		discount     string
		wantDiscount string
		wantNet      string
		wantTotal    string
	}{
		{"ten percent", 10, "100", "10", "10.00", "90.00", "900.00"},
		{"no discount keeps rate", 5, "50", "0", "0.00", "50.00", "250.00"},
		{"full discount", 3, "19.99", "100", "19.99", "0.00", "0.00"},
		{"discount stays exact", 1, "10.01", "12.5", "1.25125", "8.75875", "8.76"},
		{"exact net rate scales with quantity", 100, "99.99", "7.5", "7.49925", "92.49075", "9249.08"},
		{"sub cent discount is not lost", 1000, "0.05", "10", "0.005", "0.045", "45.00"},
		{"line total rounds half away from zero", 1, "0.125", "0", "0.00", "0.125", "0.13"},
		{"fractional rate times quantity", 7, "3.333", "0", "0.00", "3.333", "23.33"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := p.ComputeLine(tt.qty, dec(tt.rate), dec(tt.discount))
			require.NoError(t, err)
			assert.True(t, dec(tt.wantDiscount).Equal(line.DiscountAmount), "discount %s", line.DiscountAmount)
			assert.True(t, dec(tt.wantNet).Equal(line.NetRate), "net %s", line.NetRate)
			assert.True(t, dec(tt.wantTotal).Equal(line.LineTotal), "total %s", line.LineTotal)
		})
	}
}

func TestComputeLine_RejectsInvalidInput(t *testing.T) {
	p := DefaultPolicy()

	_, err := p.ComputeLine(-1, dec("1"), dec("0"))
	assert.ErrorIs(t, err, ErrNegativeQuantity)

	_, err = p.ComputeLine(1, dec("-0.01"), dec("0"))
	assert.ErrorIs(t, err, ErrNegativeUnitRate)

	_, err = p.ComputeLine(1, dec("1"), dec("100.01"))
	assert.ErrorIs(t, err, ErrDiscountOutOfRange)

	_, err = p.ComputeLine(1, dec("1"), dec("-1"))
	assert.ErrorIs(t, err, ErrDiscountOutOfRange)
}

func TestComputeInvoiceTotal_ScenarioTotals(t *testing.T) {
	p := DefaultPolicy()

	a, err := p.ComputeLine(10, dec("100"), dec("10"))
	require.NoError(t, err)
	b, err := p.ComputeLine(5, dec("50"), dec("0"))
	require.NoError(t, err)

	total := p.ComputeInvoiceTotal([]decimal.Decimal{a.LineTotal, b.LineTotal})
	assert.Equal(t, "1150.00", p.FormatAmount(total))
}

func TestComputeInvoiceTotal_ManySmallLinesIsExact(t *testing.T) {
	p := DefaultPolicy()

	// 0.335 rounds to 0.34 on every line; summing first would give 11.725 -> 11.73.
	lineTotals := make([]decimal.Decimal, 0, 35)
	for i := 0; i < 35; i++ {
		line, err := p.ComputeLine(1, dec("0.335"), dec("0"))
		require.NoError(t, err)
		lineTotals = append(lineTotals, line.LineTotal)
	}

	total := p.ComputeInvoiceTotal(lineTotals)
	assert.True(t, dec("11.90").Equal(total), "got %s", total)

	tenths := make([]decimal.Decimal, 35)
	for i := range tenths {
		tenths[i] = dec("0.1")
	}
	assert.True(t, dec("3.5").Equal(p.ComputeInvoiceTotal(tenths)))
}

func TestComputeInvoiceTotal_Empty(t *testing.T) {
	assert.True(t, decimal.Zero.Equal(DefaultPolicy().ComputeInvoiceTotal(nil)))
}

func TestPolicy_WholeUnits(t *testing.T) {
	p := NewPolicy(0)

	line, err := p.ComputeLine(3, dec("10.5"), dec("0"))
	require.NoError(t, err)
	assert.True(t, dec("32").Equal(line.LineTotal))
	assert.Equal(t, "32.00", p.FormatAmount(line.LineTotal))
}

func TestFormatAmount_TwoPlaces(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, "8.76", p.FormatAmount(dec("8.75875")))
	assert.Equal(t, "0.01", p.FormatAmount(dec("0.005")))
	assert.Equal(t, "100.00", p.FormatAmount(dec("100")))
}
