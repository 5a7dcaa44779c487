package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one priced product row of an invoice. The derived amounts
// are recomputed at persistence time and stored alongside the inputs.
type LineItem struct {
	ProductName     string          `json:"product_name"`
	Quantity        int64           `json:"quantity"`
	UnitsPerCase    int             `json:"units_per_case"`
	UnitRate        decimal.Decimal `json:"unit_rate"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	NetRate         decimal.Decimal `json:"net_rate"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

// InvoiceRecord is immutable once the store has assigned its number.
type InvoiceRecord struct {
	InvoiceNumber   int64           `json:"invoice_number"`
	CustomerName    string          `json:"customer_name"`
	CustomerAddress string          `json:"customer_address"`
	OrderBookerName string          `json:"order_booker_name"`
	Items           []LineItem      `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Date            time.Time       `json:"date"`
}

// TotalQuantity sums item quantities.
func (r InvoiceRecord) TotalQuantity() int64 {
	var total int64
	for _, item := range r.Items {
		total += item.Quantity
	}
	return total
}

// DateLayout is the stored representation of InvoiceRecord.Date.
const DateLayout = "2006-01-02"

func (r InvoiceRecord) DateString() string {
	return r.Date.UTC().Format(DateLayout)
}

// RawItem is an unpriced row as submitted by a client. ProductID selects
// a catalog entry; when it is empty or unknown the explicit UnitRate and
// UnitsPerCase are used instead.
type RawItem struct {
	ProductID       string           `json:"product_id"`
	ProductName     string           `json:"product_name"`
	Quantity        int64            `json:"quantity"`
	UnitRate        *decimal.Decimal `json:"unit_rate"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	UnitsPerCase    *int             `json:"units_per_case"`
}

type SubmitRequest struct {
	CustomerName    string    `json:"customer_name"`
	CustomerAddress string    `json:"customer_address"`
	OrderBookerName string    `json:"order_booker_name"`
	Items           []RawItem `json:"items"`
}

// Document is a rendered invoice and where it was published.
type Document struct {
	FileName string `json:"file_name"`
	Location string `json:"location"`
	Bytes    []byte `json:"-"`
}

type SubmitResult struct {
	Invoice         InvoiceRecord `json:"invoice"`
	FormattedNumber string        `json:"formatted_number"`
	Document        *Document     `json:"document,omitempty"`
}
