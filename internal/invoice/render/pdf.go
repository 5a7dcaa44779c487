package render

import (
	"context"
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	mconfig "github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/border"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"go.uber.org/zap"
)

const (
	pageMargin = 12.0
	bodySize   = 9.0
)

var (
	headerFill = &props.Color{Red: 96, Green: 96, Blue: 96}
	white      = &props.Color{Red: 255, Green: 255, Blue: 255}
	rule       = &props.Color{Red: 200, Green: 200, Blue: 200}
)

// Renderer turns a committed record into document bytes.
type Renderer interface {
	Render(ctx context.Context, rec domain.InvoiceRecord) ([]byte, error)
}

type PDFRenderer struct {
	options OptionsFunc
	log     *zap.Logger
}

// NewPDFRenderer reads its options on every call so document settings
// can change without a restart.
func NewPDFRenderer(options OptionsFunc, log *zap.Logger) *PDFRenderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &PDFRenderer{options: options, log: log.Named("invoice.render")}
}

func (r *PDFRenderer) Render(ctx context.Context, rec domain.InvoiceRecord) (out []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.RenderError{InvoiceNumber: rec.InvoiceNumber, Reason: "cancelled", Err: err}
	}

	layout, err := BuildLayout(rec, r.options())
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("pdf engine panicked", zap.Int64("invoice_number", rec.InvoiceNumber), zap.Any("panic", p))
			out = nil
			err = &domain.RenderError{InvoiceNumber: rec.InvoiceNumber, Reason: "engine_panic", Err: fmt.Errorf("%v", p)}
		}
	}()

	start := time.Now()
	doc, err := Paint(layout)
	if err != nil {
		return nil, &domain.RenderError{InvoiceNumber: rec.InvoiceNumber, Reason: "generate", Err: err}
	}

	r.log.Debug("invoice rendered",
		zap.Int64("invoice_number", rec.InvoiceNumber),
		zap.Int("bytes", len(doc)),
		zap.Duration("took", time.Since(start)),
	)
	return doc, nil
}

// Paint draws layout onto an A4 page and returns the PDF bytes.
func Paint(layout Layout) ([]byte, error) {
	cfg := mconfig.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(pageMargin).
		WithTopMargin(pageMargin).
		WithRightMargin(pageMargin).
		WithMaxGridSize(layout.GridSize()).
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)
	grid := layout.GridSize()

	m.AddRow(12,
		text.NewCol(grid, layout.Title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)
	if layout.Banner != "" {
		m.AddRow(8,
			text.NewCol(grid, layout.Banner, props.Text{
				Size:  11,
				Align: align.Center,
			}),
		)
	}
	m.AddRow(4, col.New(grid))

	label := grid / 4
	for _, f := range layout.Meta {
		m.AddAutoRow(
			text.NewCol(label, f.Label+":", props.Text{Size: 10, Style: fontstyle.Bold}),
			text.NewCol(grid-label, f.Value, props.Text{Size: 10}),
		)
	}
	m.AddRow(6, col.New(grid))

	m.AddRows(headerRow(layout.Columns))
	for _, cells := range layout.Rows {
		m.AddRows(itemRow(layout.Columns, cells))
	}
	m.AddRow(4, col.New(grid))

	for _, f := range layout.Summary {
		m.AddRow(7,
			col.New(grid/2),
			text.NewCol(grid/4, f.Label+":", props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
			text.NewCol(grid-grid/2-grid/4, f.Value, props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func headerRow(columns []Column) core.Row {
	cols := make([]core.Col, 0, len(columns))
	for _, c := range columns {
		cols = append(cols, text.NewCol(c.Width, c.Header, props.Text{
			Size:  bodySize,
			Style: fontstyle.Bold,
			Align: textAlign(c.Align),
			Color: white,
			Top:   1.5,
			Left:  1,
			Right: 1,
		}).WithStyle(gridCell(headerFill)))
	}
	return row.New().Add(cols...)
}

func itemRow(columns []Column, cells []string) core.Row {
	cols := make([]core.Col, 0, len(columns))
	for i, c := range columns {
		cols = append(cols, text.NewCol(c.Width, cells[i], props.Text{
			Size:   bodySize,
			Align:  textAlign(c.Align),
			Top:    1.5,
			Bottom: 1.5,
			Left:   1,
			Right:  1,
		}).WithStyle(gridCell(nil)))
	}
	return row.New().Add(cols...)
}

// gridCell boxes a single table cell so adjacent cells form a full grid.
func gridCell(fill *props.Color) *props.Cell {
	return &props.Cell{
		BackgroundColor: fill,
		BorderType:      border.Full,
		BorderColor:     rule,
		BorderThickness: 0.2,
	}
}

func textAlign(a Align) align.Type {
	switch a {
	case AlignCenter:
		return align.Center
	case AlignRight:
		return align.Right
	default:
		return align.Left
	}
}
