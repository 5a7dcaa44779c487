package domain

import "context"

// Store is the durable, append-only invoice ledger.
//
// Save assigns the next invoice number and persists the record as one
// atomic step. Two concurrent Saves never observe the same number.
type Store interface {
	NextInvoiceNumber(ctx context.Context) (int64, error)
	Save(ctx context.Context, record InvoiceRecord) (InvoiceRecord, error)
	Get(ctx context.Context, invoiceNumber int64) (InvoiceRecord, error)
	ListAll(ctx context.Context) ([]InvoiceRecord, error)
	Backend() string
}
