package render

import (
	"bytes"
	"html/template"

	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
)

const invoiceHTMLTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Invoice {{.InvoiceNumber}}</title>
  <style>
    * { box-sizing: border-box; }
    body {
      margin: 0;
      padding: 40px;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
      color: #1a1f36;
      background: #f7f9fc;
    }
    .invoice-card {
      background: #ffffff;
      max-width: 900px;
      margin: 0 auto;
      padding: 48px;
      box-shadow: 0 2px 5px rgba(0,0,0,0.04);
      border-radius: 4px;
    }
    h1 { margin: 0; font-size: 24px; text-align: center; }
    .banner { text-align: center; color: #697386; margin: 6px 0 32px; }
    .meta { margin-bottom: 28px; }
    .meta div { font-size: 14px; line-height: 1.6; }
    .label { font-weight: 600; display: inline-block; min-width: 120px; }
    table { width: 100%; border-collapse: collapse; margin-bottom: 24px; }
    th {
      background: #606060;
      color: #ffffff;
      font-size: 12px;
      padding: 8px 6px;
      font-weight: 600;
    }
    td {
      padding: 8px 6px;
      border-bottom: 1px solid #e3e8ee;
      font-size: 13px;
      vertical-align: top;
    }
    .align-0 { text-align: left; }
    .align-1 { text-align: center; }
    .align-2 { text-align: right; }
    .totals { display: flex; flex-direction: column; align-items: flex-end; }
    .total-row {
      display: flex;
      justify-content: space-between;
      width: 280px;
      padding: 4px 0;
      font-size: 14px;
      font-weight: 700;
    }
  </style>
</head>
<body>
  <div class="invoice-card">
    <h1>{{.Title}}</h1>
    {{if .Banner}}<div class="banner">{{.Banner}}</div>{{end}}

    <div class="meta">
      {{range .Meta}}<div><span class="label">{{.Label}}:</span> {{.Value}}</div>
      {{end}}
    </div>

    <table>
      <thead>
        <tr>
          {{range .Columns}}<th class="align-{{printf "%d" .Align}}">{{.Header}}</th>{{end}}
        </tr>
      </thead>
      <tbody>
        {{range .Rows}}
        <tr>
          {{range $i, $cell := .}}<td class="align-{{printf "%d" (index $.Columns $i).Align}}">{{$cell}}</td>{{end}}
        </tr>
        {{end}}
      </tbody>
    </table>

    <div class="totals">
      {{range .Summary}}
      <div class="total-row"><span>{{.Label}}:</span><span>{{.Value}}</span></div>
      {{end}}
    </div>
  </div>
</body>
</html>
`

// HTMLRenderer renders the same layout as the PDF for in-browser preview.
// All record text is escaped by html/template.
type HTMLRenderer struct {
	tpl     *template.Template
	options OptionsFunc
}

func NewHTMLRenderer(options OptionsFunc) *HTMLRenderer {
	return &HTMLRenderer{
		tpl:     template.Must(template.New("invoice").Parse(invoiceHTMLTemplate)),
		options: options,
	}
}

func (r *HTMLRenderer) RenderHTML(rec domain.InvoiceRecord) (string, error) {
	layout, err := BuildLayout(rec, r.options())
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, layout); err != nil {
		return "", &domain.RenderError{InvoiceNumber: rec.InvoiceNumber, Reason: "template", Err: err}
	}
	return buf.String(), nil
}
