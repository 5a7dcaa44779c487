package publish

import (
	"context"
	"strconv"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
)

const (
	BackendFilesystem = "filesystem"
	BackendMinio      = "minio"

	contentTypePDF = "application/pdf"
)

// Publisher stores rendered documents under a deterministic name.
// A failed Publish leaves no partial document behind.
type Publisher interface {
	Publish(ctx context.Context, name string, doc []byte) (location string, err error)
	Exists(ctx context.Context, name string) (bool, error)
	Backend() string
}

// FileName derives the document name from the customer and the number,
// e.g. "ali-traders_1050.pdf".
func FileName(rec domain.InvoiceRecord) string {
	base := slug.Make(rec.CustomerName)
	if base == "" {
		base = "invoice"
	}
	return base + "_" + strconv.FormatInt(rec.InvoiceNumber, 10) + ".pdf"
}
