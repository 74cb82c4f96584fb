// internal/pkg/pdf/service.go
package pdf

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/order"
)

// Service renders order invoices to PDF
type Service struct {
	config *config.Config
}

// NewService creates a new PDF service
func NewService(cfg *config.Config) *Service {
	return &Service{config: cfg}
}

// GenerateInvoice renders a PDF invoice for an order
func (s *Service) GenerateInvoice(ord *order.Order) (*bytes.Buffer, error) {
	data := invoiceData{
		InvoiceNumber: fmt.Sprintf("INV-%s", ord.OrderNumber),
		InvoiceDate:   time.Now().UTC().Format("January 2, 2006"),
		Order:         ord,
		StoreName:     s.config.App.Name,
		StoreURL:      s.config.App.BaseURL,
	}

	var html bytes.Buffer
	if err := invoiceTmpl.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render invoice: %w", err)
	}

	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF generator: %w", err)
	}
	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationPortrait)

	page := wkhtmltopdf.NewPageReader(&html)
	page.FooterRight.Set("[page]")
	page.FooterFontSize.Set(9)
	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create PDF: %w", err)
	}
	return bytes.NewBuffer(pdfg.Bytes()), nil
}

type invoiceData struct {
	InvoiceNumber string
	InvoiceDate   string
	Order         *order.Order
	StoreName     string
	StoreURL      string
}

var invoiceTmpl = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": func(cents int64) string { return fmt.Sprintf("$%.2f", float64(cents)/100) },
}).Parse(`
<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Invoice {{.InvoiceNumber}}</title>
  <style>
    body { font-family: Arial, sans-serif; margin: 0; padding: 24px; color: #222; }
    h1 { font-size: 22px; }
    .meta { color: #666; margin-bottom: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 16px; }
    th, td { text-align: left; padding: 8px; border-bottom: 1px solid #ddd; }
    th { background: #f5f5f5; }
    .totals td { border: none; padding: 4px 8px; }
    .totals .grand { font-weight: bold; border-top: 2px solid #222; }
    .right { text-align: right; }
  </style>
</head>
<body>
  <h1>{{.StoreName}}</h1>
  <div class="meta">
    Invoice {{.InvoiceNumber}}<br>
    Date: {{.InvoiceDate}}<br>
    Order: {{.Order.OrderNumber}}<br>
    Billed to: {{.Order.Email}}
  </div>

  <table>
    <tr><th>Item</th><th>SKU</th><th class="right">Qty</th><th class="right">Unit</th><th class="right">Total</th></tr>
    {{range .Order.Items}}
    <tr>
      <td>{{.Name}}</td>
      <td>{{.SKU}}</td>
      <td class="right">{{.Quantity}}</td>
      <td class="right">{{money .Price}}</td>
      <td class="right">{{money .TotalPrice}}</td>
    </tr>
    {{end}}
  </table>

  <table class="totals">
    <tr><td class="right">Subtotal</td><td class="right">{{money .Order.SubtotalAmount}}</td></tr>
    {{if .Order.DiscountAmount}}<tr><td class="right">Discount{{if .Order.PromoCode}} ({{.Order.PromoCode}}){{end}}</td><td class="right">-{{money .Order.DiscountAmount}}</td></tr>{{end}}
    <tr><td class="right">Shipping</td><td class="right">{{money .Order.ShippingAmount}}</td></tr>
    <tr><td class="right">Tax</td><td class="right">{{money .Order.TaxAmount}}</td></tr>
    <tr class="grand"><td class="right">Total</td><td class="right">{{money .Order.TotalAmount}} {{.Order.Currency}}</td></tr>
  </table>

  <p>Thank you for shopping at {{.StoreName}}{{if .StoreURL}} ({{.StoreURL}}){{end}}.</p>
</body>
</html>
`))
