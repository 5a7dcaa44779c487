package domain

import "context"

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	NextNumber(ctx context.Context) (int64, error)
	Get(ctx context.Context, invoiceNumber int64) (InvoiceRecord, error)
	List(ctx context.Context) ([]InvoiceRecord, error)
	Render(ctx context.Context, invoiceNumber int64) (SubmitResult, error)
	Preview(ctx context.Context, invoiceNumber int64) (string, error)
}
