package render

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/invoice/format"
	"github.com/smallbiznis/invoicedesk/internal/pricing"
)

var (
	ErrNoItems         = errors.New("invoice has no items")
	ErrMissingCustomer = errors.New("invoice has no customer name")
	ErrMissingNumber   = errors.New("invoice has no number")
	ErrMissingAddress  = errors.New("invoice has no customer address")
	ErrMissingDate     = errors.New("invoice has no date")
)

// Options selects the optional blocks and columns of a document.
type Options struct {
	OrgName                string
	Banner                 string
	IncludeOrderBooker     bool
	IncludePackingColumn   bool
	IncludeDiscountColumns bool
	PackingLabel           string
	CurrencyMarker         string

	Policy    pricing.Policy
	Formatter *format.Formatter
}

func OptionsFromSettings(doc config.DocumentSettings, policy pricing.Policy, formatter *format.Formatter) Options {
	return Options{
		OrgName:                doc.OrgName,
		Banner:                 doc.Banner,
		IncludeOrderBooker:     doc.IncludeOrderBooker,
		IncludePackingColumn:   doc.IncludePackingColumn,
		IncludeDiscountColumns: doc.IncludeDiscountColumns,
		PackingLabel:           doc.PackingLabel,
		CurrencyMarker:         doc.CurrencyMarker,
		Policy:                 policy,
		Formatter:              formatter,
	}
}

type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

type Field struct {
	Label string
	Value string
}

type Column struct {
	Key    string
	Header string
	Width  int
	Align  Align
}

// Layout is the device independent content of one invoice document. The
// PDF and HTML renderers only paint it.
type Layout struct {
	InvoiceNumber int64
	Title         string
	Banner        string
	Meta          []Field
	Columns       []Column
	Rows          [][]string
	Summary       []Field
}

// GridSize is the sum of column widths.
func (l Layout) GridSize() int {
	total := 0
	for _, c := range l.Columns {
		total += c.Width
	}
	return total
}

func (l Layout) NetTotal() string {
	if len(l.Summary) == 0 {
		return ""
	}
	return l.Summary[len(l.Summary)-1].Value
}

// BuildLayout lays out rec. It fails with a RenderError when the record
// cannot produce a meaningful document.
func BuildLayout(rec domain.InvoiceRecord, opts Options) (Layout, error) {
	if err := checkRecord(rec); err != nil {
		return Layout{}, &domain.RenderError{InvoiceNumber: rec.InvoiceNumber, Reason: "invalid_record", Err: err}
	}

	number := strconv.FormatInt(rec.InvoiceNumber, 10)
	if opts.Formatter != nil {
		number = opts.Formatter.Format(rec.Date, rec.InvoiceNumber)
	}

	layout := Layout{
		InvoiceNumber: rec.InvoiceNumber,
		Title:         CleanText(opts.OrgName),
		Banner:        CleanText(opts.Banner),
		Meta: []Field{
			{Label: "Customer", Value: CleanText(rec.CustomerName)},
			{Label: "Address", Value: CleanText(rec.CustomerAddress)},
			{Label: "Invoice No", Value: number},
			{Label: "Date", Value: rec.DateString()},
		},
	}
	if opts.IncludeOrderBooker && strings.TrimSpace(rec.OrderBookerName) != "" {
		layout.Meta = append(layout.Meta, Field{Label: "Order Booker", Value: CleanText(rec.OrderBookerName)})
	}

	layout.Columns = columns(opts)
	for i, item := range rec.Items {
		layout.Rows = append(layout.Rows, itemCells(layout.Columns, i, item, opts))
	}

	layout.Summary = []Field{
		{Label: "Total Items", Value: strconv.Itoa(len(rec.Items))},
		{Label: "Total Quantity", Value: strconv.FormatInt(rec.TotalQuantity(), 10)},
		{Label: "Net Total", Value: opts.Policy.FormatAmount(rec.TotalAmount) + opts.CurrencyMarker},
	}
	return layout, nil
}

func checkRecord(rec domain.InvoiceRecord) error {
	switch {
	case rec.InvoiceNumber <= 0:
		return ErrMissingNumber
	case strings.TrimSpace(rec.CustomerName) == "":
		return ErrMissingCustomer
	case strings.TrimSpace(rec.CustomerAddress) == "":
		return ErrMissingAddress
	case rec.Date.IsZero():
		return ErrMissingDate
	case len(rec.Items) == 0:
		return ErrNoItems
	}
	return nil
}

func columns(opts Options) []Column {
	cols := []Column{
		{Key: "sno", Header: "S.No", Width: 2, Align: AlignCenter},
		{Key: "product", Header: "Product", Width: 9, Align: AlignLeft},
		{Key: "qty", Header: "Qty", Width: 2, Align: AlignRight},
	}
	if opts.IncludePackingColumn {
		label := strings.TrimSpace(opts.PackingLabel)
		if label == "" {
			label = "Units/Ctn"
		}
		cols = append(cols, Column{Key: "packing", Header: label, Width: 3, Align: AlignRight})
	}
	cols = append(cols, Column{Key: "rate", Header: "Rate", Width: 3, Align: AlignRight})
	if opts.IncludeDiscountColumns {
		cols = append(cols,
			Column{Key: "disc_pct", Header: "Disc %", Width: 2, Align: AlignRight},
			Column{Key: "disc_amt", Header: "Disc Amt", Width: 3, Align: AlignRight},
			Column{Key: "net_rate", Header: "Net Rate", Width: 3, Align: AlignRight},
		)
	}
	return append(cols, Column{Key: "total", Header: "Total", Width: 4, Align: AlignRight})
}

func itemCells(cols []Column, index int, item domain.LineItem, opts Options) []string {
	money := func(v decimal.Decimal) string {
		return opts.Policy.FormatAmount(v) + opts.CurrencyMarker
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		switch c.Key {
		case "sno":
			out = append(out, strconv.Itoa(index+1))
		case "product":
			out = append(out, CleanText(item.ProductName))
		case "qty":
			out = append(out, strconv.FormatInt(item.Quantity, 10))
		case "packing":
			out = append(out, packing(item.UnitsPerCase))
		case "rate":
			out = append(out, money(item.UnitRate))
		case "disc_pct":
			out = append(out, item.DiscountPercent.String())
		case "disc_amt":
			out = append(out, money(item.DiscountAmount))
		case "net_rate":
			out = append(out, money(item.NetRate))
		case "total":
			out = append(out, money(item.LineTotal))
		}
	}
	return out
}

func packing(unitsPerCase int) string {
	if unitsPerCase <= 0 {
		return "-"
	}
	return strconv.Itoa(unitsPerCase)
}

// CleanText replaces control characters with spaces and collapses runs of
// whitespace so free text cannot break the document layout.
func CleanText(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// OptionsFunc returns the document options in effect right now.
type OptionsFunc func() Options

// StaticOptions always returns opts.
func StaticOptions(opts Options) OptionsFunc {
	return func() Options { return opts }
}
