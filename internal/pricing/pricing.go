package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeQuantity   = errors.New("negative_quantity")
	ErrNegativeUnitRate   = errors.New("negative_unit_rate")
	ErrDiscountOutOfRange = errors.New("discount_out_of_range")
)

var hundred = decimal.NewFromInt(100)

// documentPlaces is the number of fractional digits printed on documents
// regardless of the rounding policy.
const documentPlaces = 2

// Policy rounds currency amounts half away from zero at Places
// fractional digits.
type Policy struct {
	Places int32
}

func NewPolicy(places int32) Policy {
	if places < 0 {
		places = 2
	}
	return Policy{Places: places}
}

func DefaultPolicy() Policy {
	return Policy{Places: 2}
}

// Line holds the derived amounts of one invoice line.
type Line struct {
	DiscountAmount decimal.Decimal
	NetRate        decimal.Decimal
	LineTotal      decimal.Decimal
}

func (p Policy) Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(p.Places)
}

// ComputeLine derives discount amount, net rate and line total. Discount
// amount and net rate stay exact; only the line total is rounded.
func (p Policy) ComputeLine(quantity int64, unitRate, discountPercent decimal.Decimal) (Line, error) {
	if quantity < 0 {
		return Line{}, ErrNegativeQuantity
	}
	if unitRate.IsNegative() {
		return Line{}, ErrNegativeUnitRate
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThan(hundred) {
		return Line{}, ErrDiscountOutOfRange
	}

	discountAmount := unitRate.Mul(discountPercent).Div(hundred)
	netRate := unitRate.Sub(discountAmount)
	lineTotal := p.Round(netRate.Mul(decimal.NewFromInt(quantity)))

	return Line{
		DiscountAmount: discountAmount,
		NetRate:        netRate,
		LineTotal:      lineTotal,
	}, nil
}

// ComputeInvoiceTotal sums already rounded line totals and rounds the
// result the same way.
func (p Policy) ComputeInvoiceTotal(lineTotals []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, lt := range lineTotals {
		total = total.Add(p.Round(lt))
	}
	return p.Round(total)
}

// FormatAmount renders v with two fractional digits. Values already
// rounded to whole units print as 32.00.
func (p Policy) FormatAmount(v decimal.Decimal) string {
	return v.StringFixed(documentPlaces)
}
