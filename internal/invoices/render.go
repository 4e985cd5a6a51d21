package invoices

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mpk-pharma/kanha/internal/shared"
	"github.com/mpk-pharma/kanha/internal/view"
	"github.com/mpk-pharma/kanha/report"
)

// PrintTemplate is the template that lays out a printed invoice.
const PrintTemplate = "invoices/print"

// PDFRenderer converts HTML into a PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html []byte, page report.Page) ([]byte, error)
}

// Charge is one percentage applied to the subtotal on the printed invoice.
type Charge struct {
	Label  string
	Rate   string
	Amount decimal.Decimal
}

// PrintView is the data behind a printed invoice.
type PrintView struct {
	Shop       shared.Principal
	Invoice    Invoice
	Lines      []CartItem
	CartTotal  decimal.Decimal
	Charges    []Charge
	NetAmount  decimal.Decimal
	RoundOff   decimal.Decimal
	NetPayable decimal.Decimal
}

// NewPrintView breaks the stored totals down into the printed charges. Zero
// rates are left off.
func NewPrintView(shop shared.Principal, d Detail) PrintView {
	rates := d.Invoice.Rates()
	v := PrintView{
		Shop:      shop,
		Invoice:   d.Invoice,
		Lines:     d.Cart.Items,
		CartTotal: d.Cart.CartTotal,
		NetAmount: d.Cart.NetAmount,
	}
	for _, c := range []struct {
		label string
		rate  decimal.Decimal
	}{
		{"Adjustment", rates.Adjustment},
		{"CGST", rates.CGST},
		{"SGST", rates.SGST},
		{"IGST", rates.IGST},
	} {
		if c.rate.IsZero() {
			continue
		}
		v.Charges = append(v.Charges, Charge{
			Label:  c.label,
			Rate:   c.rate.String(),
			Amount: d.Cart.CartTotal.Mul(c.rate).Div(hundred).Round(2),
		})
	}
	v.NetPayable = d.Cart.NetAmount.Round(0)
	if d.Cart.NetPayableAmount.Valid {
		v.NetPayable = d.Cart.NetPayableAmount.Decimal
	}
	v.RoundOff = v.NetPayable.Sub(v.NetAmount)
	return v
}

// Printer renders invoices as HTML and PDF.
type Printer struct {
	engine *view.Engine
	pdf    PDFRenderer
}

// NewPrinter wires a printer. pdf may be nil when PDF output is disabled.
func NewPrinter(engine *view.Engine, pdf PDFRenderer) *Printer {
	return &Printer{engine: engine, pdf: pdf}
}

// HTML renders the printable invoice page.
func (p *Printer) HTML(shop shared.Principal, d Detail) ([]byte, error) {
	return p.engine.RenderBytes(PrintTemplate, view.TemplateData{
		Title: "Invoice " + d.Invoice.InvoiceNo,
		Data:  NewPrintView(shop, d),
	})
}

// PDF renders the invoice page to an A4 PDF.
func (p *Printer) PDF(ctx context.Context, shop shared.Principal, d Detail) ([]byte, error) {
	if p.pdf == nil {
		return nil, report.ErrDisabled
	}
	html, err := p.HTML(shop, d)
	if err != nil {
		return nil, err
	}
	pdf, err := p.pdf.RenderHTML(ctx, html, report.A4)
	if err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return pdf, nil
}
