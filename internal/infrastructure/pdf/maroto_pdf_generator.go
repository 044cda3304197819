// Package pdf genera la representación gráfica de la factura TEIF con su código QR.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Razón social + MF   │  N° Facture + Fecha           │
//	│  VENDEDOR / CLIENTE                                          │
//	│  TABLA: N° | Designación | Qté | PU HT | Rem% | TVA% | HT    │
//	│  TOTALES: Total HT / TVA / Timbre / TOTAL TTC                │
//	│  FOOTER: QR (TEIFQR o referencia TTN) + estado TTN           │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	appbilling "github.com/jhoicas/facturetn-api/internal/application/billing"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	calc "github.com/jhoicas/facturetn-api/pkg/teif"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 180, Green: 20, Blue: 40}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorWhite   = &props.Color{Red: 255, Green: 255, Blue: 255}
)

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoPDFGenerator implementa billing.InvoicePDFGenerator usando Maroto v2.
type MarotoPDFGenerator struct{}

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

// GenerateInvoicePDF genera el PDF y devuelve sus bytes.
func (g *MarotoPDFGenerator) GenerateInvoicePDF(
	_ context.Context,
	invoice *entity.Invoice,
	company *entity.Company,
	items []*entity.InvoiceItem,
	qr appbilling.QRPayload,
) ([]byte, error) {
	if company == nil {
		company = &entity.Company{}
	}
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(documentTitle(invoice), true).
		WithAuthor(company.Name, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(invoice, company))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(partiesRow(invoice, company))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	m.AddRows(tableItemRows(items)...)

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(invoice))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(footerRows(invoice, qr)...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func headerRow(invoice *entity.Invoice, company *entity.Company) core.Row {
	number := nonEmpty(invoice.InvoiceNumber, "—")
	date := "—"
	if invoice.IssueDate != nil {
		date = invoice.IssueDate.Format("02/01/2006")
	}

	return row.New(18).Add(
		col.New(7).Add(
			text.New(company.Name, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("MF : "+nonEmpty(company.TaxID, "—"), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(documentTitle(invoice), props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(number, props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Date : "+date, props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

// partiesRow: vendedor (izq) y cliente (der).
func partiesRow(invoice *entity.Invoice, company *entity.Company) core.Row {
	party := func(title, name, taxID, address string) []core.Component {
		return []core.Component{
			text.New(title, props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
			text.New(nonEmpty(name, "—"), props.Text{Style: fontstyle.Bold, Size: 10, Top: 6}),
			text.New("MF : "+nonEmpty(taxID, "—"), props.Text{Size: 8, Top: 12, Color: colorGray}),
			text.New(nonEmpty(address, "—"), props.Text{Size: 8, Top: 16, Color: colorGray}),
		}
	}
	return row.New(22).Add(
		col.New(6).Add(party("VENDEUR", company.Name, company.TaxID, company.Address)...),
		col.New(6).Add(party("CLIENT", invoice.CustomerName, invoice.CustomerTaxID,
			joinNonEmpty(invoice.CustomerAddress, invoice.CustomerCity))...),
	)
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorWhite, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("N°", 1, align.Center),
		h("Désignation", 4, align.Left),
		h("Qté", 1, align.Center),
		h("PU HT", 2, align.Right),
		h("Rem.%", 1, align.Center),
		h("TVA%", 1, align.Center),
		h("Total HT", 2, align.Right),
	).WithStyle(&props.Cell{BackgroundColor: colorPrimary})
}

func tableItemRows(items []*entity.InvoiceItem) []core.Row {
	result := make([]core.Row, 0, len(items))
	for i, it := range items {
		if it == nil {
			continue
		}
		no := it.LineNo
		if no == 0 {
			no = i + 1
		}
		lineHT := it.LineTotalHT
		if lineHT.IsZero() {
			lineHT = calc.ComputeLine(calc.LineInput{
				Quantity: it.Quantity, UnitPrice: it.UnitPrice, DiscountPct: it.DiscountPct, VATPct: it.VATPct,
			}).HT
		}
		cell := func(s string, size int, a align.Type) core.Col {
			return col.New(size).Add(text.New(s, props.Text{Size: 8, Align: a, Top: 1, Left: 1, Right: 1}))
		}
		result = append(result, row.New(7).Add(
			cell(fmt.Sprintf("%d", no), 1, align.Center),
			cell(it.Description, 4, align.Left),
			cell(it.Quantity.String(), 1, align.Center),
			cell(money(it.UnitPrice), 2, align.Right),
			cell(it.DiscountPct.String(), 1, align.Center),
			cell(it.VATPct.String(), 1, align.Center),
			cell(money(lineHT), 2, align.Right),
		))
	}
	return result
}

func totalsRow(invoice *entity.Invoice) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	stamp := decimal.Zero
	if invoice.StampEnabled {
		stamp = invoice.StampAmount
	}
	cur := " " + invoice.CurrencyOrDefault()

	return row.New(26).Add(
		col.New(6),
		col.New(3).Add(
			label("Total HT :"),
			label("Total TVA :"),
			label("Timbre fiscal :"),
			text.New("TOTAL TTC :", props.Text{
				Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 2,
			}),
		),
		col.New(3).Add(
			value(money(invoice.SubtotalHT)+cur),
			value(money(invoice.TotalVAT)+cur),
			value(money(stamp)+cur),
			text.New(money(invoice.TotalTTC)+cur, props.Text{
				Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 1,
			}),
		),
	)
}

// footerRows: QR + referencia TTN + leyenda.
func footerRows(invoice *entity.Invoice, qr appbilling.QRPayload) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("FACTURE ÉLECTRONIQUE TEIF", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
	}

	status := "Statut TTN : " + nonEmpty(invoice.TTNStatus, entity.TTNStatusNotSent)
	if invoice.TTNGeneratedRef != "" {
		status += "   |   Référence TTN : " + invoice.TTNGeneratedRef
	}
	detail := status
	if qr.Hash != "" {
		detail += "\nSHA256 : " + qr.Hash
	}

	if qr.Payload != "" {
		rows = append(rows, row.New(50).Add(
			col.New(4).Add(code.NewQr(qr.Payload, props.Rect{Percent: 95, Center: true})),
			col.New(8).Add(
				text.New(detail, props.Text{Size: 7, Top: 4, Left: 3, Color: colorGray}),
				text.New("Document conforme au format TEIF "+calc.Version, props.Text{
					Style: fontstyle.Bold, Size: 10, Top: 30, Left: 3, Color: colorPrimary,
				}),
			),
		))
	} else {
		rows = append(rows, row.New(10).Add(col.New(12).Add(
			text.New(status, props.Text{Size: 8, Align: align.Center, Color: colorGray, Top: 2}),
		)))
	}
	return rows
}

// ── helpers ───────────────────────────────────────────────────────────────────

func documentTitle(invoice *entity.Invoice) string {
	switch invoice.DocumentType {
	case entity.DocumentTypeQuote:
		return "DEVIS"
	case entity.DocumentTypeCreditNote:
		return "FACTURE D'AVOIR"
	}
	return "FACTURE"
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func joinNonEmpty(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += p
	}
	return out
}

// money formatea con 3 decimales y espacio como separador de miles: "1 234.500".
func money(d decimal.Decimal) string {
	s := calc.FormatAmount(d)
	neg := ""
	if s[0] == '-' {
		neg, s = "-", s[1:]
	}
	intPart, frac := s, ""
	for i := range s {
		if s[i] == '.' {
			intPart, frac = s[:i], s[i:]
			break
		}
	}
	n := len(intPart)
	buf := make([]byte, 0, n+n/3)
	for i := 0; i < n; i++ {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, intPart[i])
	}
	return neg + string(buf) + frac
}
