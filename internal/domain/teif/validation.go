// Package teif contiene la validación de negocio de una factura antes de su envío a TTN:
// datos obligatorios del vendedor, comprador y líneas, y coherencia de los totales almacenados
// con los recalculados a 3 decimales.
package teif

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	calc "github.com/jhoicas/facturetn-api/pkg/teif"
)

// Tolerance diferencia máxima admitida entre un total almacenado y el recalculado.
var Tolerance = decimal.RequireFromString("0.005")

// Niveles de incidencia.
const (
	LevelError   = "error"
	LevelWarning = "warning"
)

// Issue incidencia de validación.
type Issue struct {
	Level   string `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Totals totales recalculados a partir de las líneas.
type Totals struct {
	SubtotalHT  decimal.Decimal `json:"subtotal_ht"`
	TotalVAT    decimal.Decimal `json:"total_vat"`
	StampAmount decimal.Decimal `json:"stamp_amount"`
	TotalTTC    decimal.Decimal `json:"total_ttc"`
}

// Result resultado de ValidateInvoice. OK es false si hay al menos un error.
type Result struct {
	OK         bool    `json:"ok"`
	Errors     []Issue `json:"errors"`
	Warnings   []Issue `json:"warnings"`
	ItemsCount int     `json:"items_count"`
	Totals     Totals  `json:"totals"`
}

// Problems mensajes de los errores, para ValidationError.
func (r Result) Problems() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Code+": "+e.Message)
	}
	return out
}

type collector struct {
	errors   []Issue
	warnings []Issue
}

func (c *collector) err(code, field, msg string) {
	c.errors = append(c.errors, Issue{Level: LevelError, Code: code, Message: msg, Field: field})
}

func (c *collector) warn(code, field, msg string) {
	c.warnings = append(c.warnings, Issue{Level: LevelWarning, Code: code, Message: msg, Field: field})
}

// ValidateInvoice valida la factura, sus líneas y la empresa emisora.
// Nunca devuelve error: todas las incidencias se acumulan en el resultado.
func ValidateInvoice(inv *entity.Invoice, items []*entity.InvoiceItem, company *entity.Company) Result {
	if inv == nil {
		inv = &entity.Invoice{}
	}
	if company == nil {
		company = &entity.Company{}
	}
	c := &collector{}

	if strings.TrimSpace(inv.InvoiceNumber) == "" {
		c.err("INV_NUMBER_MISSING", "invoice_number", "Numéro de facture manquant.")
	}
	if inv.IssueDate == nil && inv.CreatedAt.IsZero() {
		c.err("ISSUE_DATE_MISSING", "issue_date", "Date de facture manquante.")
	}

	if strings.TrimSpace(company.Name) == "" {
		c.err("SELLER_NAME_MISSING", "companies.company_name", "Nom société (vendeur) manquant.")
	}
	if strings.TrimSpace(company.TaxID) == "" {
		c.err("SELLER_MF_MISSING", "companies.tax_id", "Matricule fiscal vendeur (MF) manquant.")
	}
	if strings.TrimSpace(company.Address) == "" {
		c.warn("SELLER_ADDRESS_MISSING", "companies.address", "Adresse vendeur non renseignée (recommandé).")
	}

	if strings.TrimSpace(inv.CustomerName) == "" {
		c.err("BUYER_NAME_MISSING", "invoices.customer_name", "Nom client manquant.")
	}
	if strings.TrimSpace(inv.CustomerTaxID) == "" {
		c.warn("BUYER_MF_MISSING", "invoices.customer_tax_id", "MF client vide (si B2B, c'est généralement requis).")
	}
	if strings.TrimSpace(inv.CustomerAddress) == "" {
		c.warn("BUYER_ADDRESS_MISSING", "invoices.customer_address", "Adresse client non renseignée (recommandé).")
	}

	if len(items) == 0 {
		c.err("ITEMS_EMPTY", "invoice_items", "La facture doit contenir au moins une ligne.")
	}

	var calcHT, calcVAT, calcTTC decimal.Decimal
	for i, it := range items {
		if it == nil {
			continue
		}
		lineNo := it.LineNo
		if lineNo == 0 {
			lineNo = i + 1
		}
		field := func(name string) string { return fmt.Sprintf("invoice_items[%d].%s", i, name) }

		if strings.TrimSpace(it.Description) == "" {
			c.err("ITEM_DESC_MISSING", field("description"), fmt.Sprintf("Ligne %d: description manquante.", lineNo))
		}
		if !it.Quantity.IsPositive() {
			c.err("ITEM_QTY_INVALID", field("quantity"), fmt.Sprintf("Ligne %d: quantité invalide (doit être > 0).", lineNo))
		}
		if it.UnitPrice.IsNegative() {
			c.err("ITEM_PU_INVALID", field("unit_price"), fmt.Sprintf("Ligne %d: PU invalide.", lineNo))
		}
		if it.VATPct.IsNegative() || it.VATPct.GreaterThan(decimal.NewFromInt(100)) {
			c.err("ITEM_VAT_INVALID", field("vat_pct"), fmt.Sprintf("Ligne %d: taux TVA invalide.", lineNo))
		}

		computed := calc.ComputeLine(calc.LineInput{
			Quantity: it.Quantity, UnitPrice: it.UnitPrice, DiscountPct: it.DiscountPct, VATPct: it.VATPct,
		})
		ht := computed.HT
		if !it.LineTotalHT.IsZero() {
			stored := calc.Round3(it.LineTotalHT)
			if !almostEqual(stored, computed.HT) {
				c.warn("ITEM_HT_MISMATCH", field("line_total_ht"),
					fmt.Sprintf("Ligne %d: HT stocké (%s) ≠ calculé (%s).", lineNo, calc.FormatAmount(stored), calc.FormatAmount(computed.HT)))
			}
			ht = stored
		}
		vat := calc.Round3(ht.Mul(it.VATPct).Div(decimal.NewFromInt(100)))
		calcHT = calc.Round3(calcHT.Add(ht))
		calcVAT = calc.Round3(calcVAT.Add(vat))
		calcTTC = calc.Round3(calcTTC.Add(calc.Round3(ht.Add(vat))))
	}

	invHT := calc.Round3(inv.SubtotalHT)
	invVAT := calc.Round3(inv.TotalVAT)
	stamp := calc.Round3(inv.StampAmount)

	if invHT.IsZero() && calcHT.IsPositive() {
		c.warn("TOTAL_HT_EMPTY", "invoices.total_ht", "total_ht/subtotal_ht est vide: on utilisera le calcul des lignes.")
	}
	if invVAT.IsZero() && calcVAT.IsPositive() {
		c.warn("TOTAL_VAT_EMPTY", "invoices.total_vat", "total_vat est vide: on utilisera le calcul des lignes.")
	}
	if invHT.IsPositive() && !almostEqual(invHT, calcHT) {
		c.err("TOTAL_HT_MISMATCH", "invoices.total_ht",
			fmt.Sprintf("Total HT incohérent: facture (%s) ≠ lignes (%s).", calc.FormatAmount(invHT), calc.FormatAmount(calcHT)))
	}
	if invVAT.IsPositive() && !almostEqual(invVAT, calcVAT) {
		c.err("TOTAL_VAT_MISMATCH", "invoices.total_vat",
			fmt.Sprintf("Total TVA incohérent: facture (%s) ≠ lignes (%s).", calc.FormatAmount(invVAT), calc.FormatAmount(calcVAT)))
	}

	if inv.StampEnabled && !stamp.IsPositive() {
		c.warn("STAMP_ENABLED_ZERO", "invoices.stamp_amount", "Timbre activé mais montant = 0.")
	}
	if !inv.StampEnabled && stamp.IsPositive() {
		c.warn("STAMP_AMOUNT_WITHOUT_FLAG", "invoices.stamp_enabled", "Montant timbre > 0 mais stamp_enabled=false.")
	}

	appliedStamp := decimal.Zero
	if inv.StampEnabled {
		appliedStamp = stamp
	}
	expectedTTC := calc.Round3(calcTTC.Add(appliedStamp))
	if inv.TotalTTC.IsZero() {
		c.warn("TOTAL_TTC_EMPTY", "invoices.total_ttc", "total_ttc vide: on utilisera le calcul.")
	} else if invTTC := calc.Round3(inv.TotalTTC); !almostEqual(invTTC, expectedTTC) {
		c.err("TOTAL_TTC_MISMATCH", "invoices.total_ttc",
			fmt.Sprintf("Total TTC incohérent: facture (%s) ≠ lignes+TVA+timbre (%s).", calc.FormatAmount(invTTC), calc.FormatAmount(expectedTTC)))
	}

	if strings.TrimSpace(inv.Currency) == "" {
		c.warn("CURRENCY_EMPTY", "invoices.currency", "Devise vide (recommandé: TND).")
	}
	switch strings.ToLower(strings.TrimSpace(inv.DocumentType)) {
	case "", entity.DocumentTypeInvoice, entity.DocumentTypeCreditNote, entity.DocumentTypeQuote:
	default:
		c.warn("DOC_TYPE_UNKNOWN", "invoices.document_type", fmt.Sprintf("document_type '%s' non standard.", inv.DocumentType))
	}

	return Result{
		OK:         len(c.errors) == 0,
		Errors:     nonNil(c.errors),
		Warnings:   nonNil(c.warnings),
		ItemsCount: len(items),
		Totals: Totals{
			SubtotalHT:  calcHT,
			TotalVAT:    calcVAT,
			StampAmount: appliedStamp,
			TotalTTC:    expectedTTC,
		},
	}
}

func almostEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

func nonNil(in []Issue) []Issue {
	if in == nil {
		return []Issue{}
	}
	return in
}
