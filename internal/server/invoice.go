package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"go.uber.org/zap"
)

type createInvoiceItemRequest struct {
	ProductID       string           `json:"product_id"`
	ProductName     string           `json:"product_name"`
	Quantity        int64            `json:"quantity"`
	UnitRate        *decimal.Decimal `json:"unit_rate"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	UnitsPerCase    *int             `json:"units_per_case"`
}

type createInvoiceRequest struct {
	CustomerName    string                     `json:"customer_name"`
	CustomerAddress string                     `json:"customer_address"`
	OrderBookerName string                     `json:"order_booker_name"`
	Items           []createInvoiceItemRequest `json:"items"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items := make([]invoicedomain.RawItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, invoicedomain.RawItem{
			ProductID:       strings.TrimSpace(item.ProductID),
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			UnitRate:        item.UnitRate,
			DiscountPercent: item.DiscountPercent,
			UnitsPerCase:    item.UnitsPerCase,
		})
	}

	result, err := s.invoiceSvc.Submit(c.Request.Context(), invoicedomain.SubmitRequest{
		CustomerName:    req.CustomerName,
		CustomerAddress: req.CustomerAddress,
		OrderBookerName: req.OrderBookerName,
		Items:           items,
	})
	if err != nil {
		if invoicedomain.IsRenderError(err) && result.Invoice.InvoiceNumber > 0 {
			s.log.Warn("invoice saved without document",
				zap.Int64("invoice_number", result.Invoice.InvoiceNumber),
				zap.Error(err),
			)
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) NextInvoiceNumber(c *gin.Context) {
	next, err := s.invoiceSvc.NextNumber(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"next_number": next}})
}

func (s *Server) ListInvoices(c *gin.Context) {
	records, err := s.invoiceSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if records == nil {
		records = []invoicedomain.InvoiceRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (s *Server) GetInvoice(c *gin.Context) {
	number, err := parseInvoiceNumber(c.Param("number"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record, err := s.invoiceSvc.Get(c.Request.Context(), number)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}

// DownloadInvoicePDF renders the stored record again and streams the PDF.
func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	number, err := parseInvoiceNumber(c.Param("number"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.invoiceSvc.Render(c.Request.Context(), number)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result.Document == nil || len(result.Document.Bytes) == 0 {
		AbortWithError(c, &invoicedomain.RenderError{InvoiceNumber: number, Reason: "empty_document"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Document.FileName))
	c.Header("X-Document-Location", result.Document.Location)
	c.Data(http.StatusOK, "application/pdf", result.Document.Bytes)
}

func (s *Server) PreviewInvoice(c *gin.Context) {
	number, err := parseInvoiceNumber(c.Param("number"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	html, err := s.invoiceSvc.Preview(c.Request.Context(), number)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
