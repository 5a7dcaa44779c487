package repository

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicedesk/internal/clock"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
)

// Columns is the fixed tabular schema shared by every backend.
var Columns = []string{
	"invoice_number",
	"customer_name",
	"customer_address",
	"order_booker_name",
	"items",
	"total_amount",
	"date",
}

// storedRecord is the backend-neutral row. Items are kept as one JSON
// document so a record always occupies exactly one row.
type storedRecord struct {
	InvoiceNumber   int64  `json:"invoice_number,omitempty"`
	CustomerName    string `json:"customer_name"`
	CustomerAddress string `json:"customer_address"`
	OrderBookerName string `json:"order_booker_name"`
	Items           string `json:"items"`
	TotalAmount     string `json:"total_amount"`
	Date            string `json:"date"`
}

func encodeRecord(rec domain.InvoiceRecord) (storedRecord, error) {
	items := rec.Items
	if items == nil {
		items = []domain.LineItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return storedRecord{}, fmt.Errorf("encode items: %w", err)
	}
	return storedRecord{
		InvoiceNumber:   rec.InvoiceNumber,
		CustomerName:    rec.CustomerName,
		CustomerAddress: rec.CustomerAddress,
		OrderBookerName: rec.OrderBookerName,
		Items:           string(raw),
		TotalAmount:     rec.TotalAmount.String(),
		Date:            rec.DateString(),
	}, nil
}

func decodeRecord(s storedRecord) (domain.InvoiceRecord, error) {
	var items []domain.LineItem
	if err := json.Unmarshal([]byte(s.Items), &items); err != nil {
		return domain.InvoiceRecord{}, fmt.Errorf("decode items of invoice %d: %w", s.InvoiceNumber, err)
	}
	total, err := decimal.NewFromString(strings.TrimSpace(s.TotalAmount))
	if err != nil {
		return domain.InvoiceRecord{}, fmt.Errorf("decode total of invoice %d: %w", s.InvoiceNumber, err)
	}
	date, err := time.ParseInLocation(domain.DateLayout, strings.TrimSpace(s.Date), time.UTC)
	if err != nil {
		return domain.InvoiceRecord{}, fmt.Errorf("decode date of invoice %d: %w", s.InvoiceNumber, err)
	}
	return domain.InvoiceRecord{
		InvoiceNumber:   s.InvoiceNumber,
		CustomerName:    s.CustomerName,
		CustomerAddress: s.CustomerAddress,
		OrderBookerName: s.OrderBookerName,
		Items:           items,
		TotalAmount:     total,
		Date:            date,
	}, nil
}

func (s storedRecord) columns() []string {
	return []string{
		strconv.FormatInt(s.InvoiceNumber, 10),
		s.CustomerName,
		s.CustomerAddress,
		s.OrderBookerName,
		s.Items,
		s.TotalAmount,
		s.Date,
	}
}

func storedFromColumns(cols []string) (storedRecord, error) {
	if len(cols) != len(Columns) {
		return storedRecord{}, fmt.Errorf("expected %d columns, got %d", len(Columns), len(cols))
	}
	number, err := strconv.ParseInt(strings.TrimSpace(cols[0]), 10, 64)
	if err != nil {
		return storedRecord{}, fmt.Errorf("invoice_number: %w", err)
	}
	return storedRecord{
		InvoiceNumber:   number,
		CustomerName:    cols[1],
		CustomerAddress: cols[2],
		OrderBookerName: cols[3],
		Items:           cols[4],
		TotalAmount:     cols[5],
		Date:            cols[6],
	}, nil
}

// prepare stamps the assigned number and normalises the date to the
// civil day it was issued on.
func prepare(rec domain.InvoiceRecord, number int64) domain.InvoiceRecord {
	rec.InvoiceNumber = number
	rec.Date = clock.CivilDate(rec.Date)
	return rec
}

// nextFrom applies the configured start to the highest stored number.
func nextFrom(max, start int64) int64 {
	if start < 1 {
		start = 1
	}
	if max+1 < start {
		return start
	}
	return max + 1
}
