// Package teif construye, inspecciona y completa el documento XML TEIF 1.8.8 exigido por TTN.
package teif

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	calc "github.com/jhoicas/facturetn-api/pkg/teif"
)

// Propósito del documento.
const (
	PurposePreview = "preview"
	PurposeTTN     = "ttn"
)

// BuildInput datos normalizados de la factura. Ningún campo es obligatorio.
type BuildInput struct {
	Invoice *entity.Invoice
	Items   []*entity.InvoiceItem
	Company *entity.Company
	Purpose string
}

// Totals totales calculados por el builder. TTC incluye el timbre cuando está activo.
type Totals struct {
	HT    decimal.Decimal
	VAT   decimal.Decimal
	Stamp decimal.Decimal
	TTC   decimal.Decimal
}

// Document resultado del builder.
type Document struct {
	XML     []byte
	Purpose string
	Lines   []calc.LineTotals
	Totals  Totals
}

// Builder genera el XML TEIF sin firma.
type Builder struct{}

// NewBuilder crea el builder.
func NewBuilder() *Builder {
	return &Builder{}
}

type party struct {
	taxID, name, address, street, city, postalCode, country string
}

// Build nunca falla por datos incompletos: cadenas ausentes quedan vacías, identificadores
// ausentes pasan a "NA" y los números a 0. La completitud se comprueba con ValidateMinimum.
func (b *Builder) Build(in BuildInput) (*Document, error) {
	inv := in.Invoice
	if inv == nil {
		inv = &entity.Invoice{}
	}
	company := in.Company
	if company == nil {
		company = &entity.Company{}
	}
	purpose := in.Purpose
	if purpose != PurposeTTN {
		purpose = PurposePreview
	}
	currency := strings.ToUpper(text(inv.Currency))
	if currency == "" {
		currency = calc.DefaultCurrency
	}

	lineInputs := make([]calc.LineInput, 0, len(in.Items))
	lines := make([]calc.LineTotals, 0, len(in.Items))
	descriptions := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		if it == nil {
			continue
		}
		li := calc.LineInput{Quantity: it.Quantity, UnitPrice: it.UnitPrice, DiscountPct: it.DiscountPct, VATPct: it.VATPct}
		lineInputs = append(lineInputs, li)
		lines = append(lines, calc.ComputeLine(li))
		descriptions = append(descriptions, text(it.Description))
	}
	doc := calc.DocumentTotals(lines)
	totals := Totals{HT: doc.HT, VAT: doc.VAT, TTC: doc.TTC}
	if inv.StampEnabled {
		totals.Stamp = calc.Round3(inv.StampAmount)
		totals.TTC = calc.Round3(totals.TTC.Add(totals.Stamp))
	}

	number := text(inv.InvoiceNumber)
	if number == "" && purpose == PurposePreview {
		number = inv.ID
	}

	supplier := party{
		taxID:      orDefault(text(company.TaxID), "NA"),
		name:       text(company.Name),
		address:    text(company.Address),
		street:     text(company.Street),
		city:       text(company.City),
		postalCode: text(company.PostalCode),
		country:    orDefault(strings.ToUpper(text(company.Country)), calc.DefaultCountry),
	}
	customer := party{
		taxID:      orDefault(text(inv.CustomerTaxID), "NA"),
		name:       text(inv.CustomerName),
		address:    text(inv.CustomerAddress),
		city:       text(inv.CustomerCity),
		postalCode: text(inv.CustomerPostalCode),
		country:    orDefault(strings.ToUpper(text(inv.CustomerCountry)), calc.DefaultCountry),
	}
	if purpose == PurposePreview {
		supplier.name = orDefault(supplier.name, "Société")
		customer.name = orDefault(customer.name, "Client")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: "TEIF"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "controlingAgency"}, Value: calc.ControlingAgency},
			{Name: xml.Name{Local: "version"}, Value: calc.Version},
		},
	}
	start(enc, root)

	// ---- InvoiceHeader
	start(enc, el("InvoiceHeader"))
	leaf(enc, "MessageSenderIdentifier", supplier.taxID, attr("type", calc.IdentifierTaxID))
	leaf(enc, "MessageRecieverIdentifier", customer.taxID, attr("type", calc.IdentifierTaxID))
	end(enc, "InvoiceHeader")

	// ---- InvoiceBody
	start(enc, el("InvoiceBody"))

	docCode, docLabel := calc.DocTypeInvoice, "Facture"
	if strings.EqualFold(inv.DocumentType, entity.DocumentTypeCreditNote) {
		docCode, docLabel = calc.DocTypeCreditNote, "Facture d’avoir"
	}
	start(enc, el("Bgm"))
	leaf(enc, "DocumentIdentifier", number)
	leaf(enc, "DocumentType", docLabel, attr("code", docCode))
	end(enc, "Bgm")

	start(enc, el("Dtm"))
	leaf(enc, "DateText", formatDate(issueDate(inv)), attr("format", calc.DateFormat), attr("functionCode", calc.DateIssue))
	if inv.DueDate != nil {
		leaf(enc, "DateText", formatDate(inv.DueDate), attr("format", calc.DateFormat), attr("functionCode", calc.DateDue))
	}
	end(enc, "Dtm")

	start(enc, el("PartnerSection"))
	writePartner(enc, calc.PartnerSupplier, supplier)
	writePartner(enc, calc.PartnerCustomer, customer)
	end(enc, "PartnerSection")

	if notes := text(inv.Notes); notes != "" {
		start(enc, el("Ftx"))
		start(enc, el("FtxDetail", attr("functionCode", calc.FreeTextGeneral)))
		leaf(enc, "Text", notes, attr("lang", "fr"))
		end(enc, "FtxDetail")
		end(enc, "Ftx")
	}

	start(enc, el("LinSection"))
	for i, li := range lineInputs {
		writeLine(enc, i+1, descriptions[i], li, lines[i], currency)
	}
	end(enc, "LinSection")

	start(enc, el("InvoiceMoa"))
	writeAmountDetails(enc, calc.AmountTotalHT, totals.HT, currency)
	writeAmountDetails(enc, calc.AmountTaxableBase, totals.HT, currency)
	writeAmountDetails(enc, calc.AmountTotalTax, totals.VAT, currency)
	writeAmountDetails(enc, calc.AmountTotalTTC, totals.TTC, currency)
	end(enc, "InvoiceMoa")

	start(enc, el("InvoiceTax"))
	if inv.StampEnabled {
		start(enc, el("InvoiceTaxDetails"))
		start(enc, el("Tax"))
		writeTax(enc, calc.TaxTypeStamp, "droit de timbre", "0")
		end(enc, "Tax")
		writeAmountDetails(enc, calc.AmountTaxAmount, totals.Stamp, currency)
		end(enc, "InvoiceTaxDetails")
	}
	for _, g := range calc.VATBreakdown(lineInputs) {
		start(enc, el("InvoiceTaxDetails"))
		start(enc, el("Tax"))
		writeTax(enc, calc.TaxTypeVAT, "TVA", g.Rate.String())
		end(enc, "Tax")
		writeAmountDetails(enc, calc.AmountTaxBase, g.Base, currency)
		writeAmountDetails(enc, calc.AmountTaxAmount, g.Tax, currency)
		end(enc, "InvoiceTaxDetails")
	}
	end(enc, "InvoiceTax")

	end(enc, "InvoiceBody")
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return &Document{XML: buf.Bytes(), Purpose: purpose, Lines: lines, Totals: totals}, nil
}

func writePartner(enc *xml.Encoder, functionCode string, p party) {
	start(enc, el("PartnerDetails", attr("functionCode", functionCode)))
	start(enc, el("Nad"))
	leaf(enc, "PartnerIdentifier", p.taxID, attr("type", calc.IdentifierTaxID))
	leaf(enc, "PartnerName", p.name, attr("nameType", "Qualification"))
	start(enc, el("PartnerAdresses", attr("lang", "fr")))
	leaf(enc, "AdressDescription", p.address)
	leaf(enc, "Street", p.street)
	leaf(enc, "CityName", p.city)
	leaf(enc, "PostalCode", p.postalCode)
	leaf(enc, "Country", p.country, attr("codeList", calc.CountryCodeList))
	end(enc, "PartnerAdresses")
	end(enc, "Nad")
	end(enc, "PartnerDetails")
}

func writeLine(enc *xml.Encoder, n int, description string, in calc.LineInput, t calc.LineTotals, currency string) {
	start(enc, el("Lin"))
	leaf(enc, "ItemIdentifier", strconv.Itoa(n))
	start(enc, el("LinImd"))
	leaf(enc, "ItemCode", strconv.Itoa(n))
	leaf(enc, "ItemDescription", description)
	end(enc, "LinImd")
	start(enc, el("LinQty"))
	leaf(enc, "Quantity", in.Quantity.String(), attr("measurementUnit", calc.UnitPiece))
	end(enc, "LinQty")
	start(enc, el("LinTax"))
	writeTax(enc, calc.TaxTypeVAT, "TVA", in.VATPct.String())
	end(enc, "LinTax")
	start(enc, el("LinMoa"))
	writeMoaDetails(enc, calc.AmountUnitPrice, in.UnitPrice, currency)
	writeMoaDetails(enc, calc.AmountLineHT, t.HT, currency)
	end(enc, "LinMoa")
	end(enc, "Lin")
}

// writeTax escribe TaxTypeName + TaxDetails/TaxRate. En InvoiceTaxDetails el llamador lo envuelve en <Tax>.
func writeTax(enc *xml.Encoder, code, name, rate string) {
	leaf(enc, "TaxTypeName", name, attr("code", code))
	start(enc, el("TaxDetails"))
	leaf(enc, "TaxRate", rate)
	end(enc, "TaxDetails")
}

func writeMoaDetails(enc *xml.Encoder, code string, amount decimal.Decimal, currency string) {
	start(enc, el("MoaDetails"))
	writeMoa(enc, code, amount, currency)
	end(enc, "MoaDetails")
}

func writeAmountDetails(enc *xml.Encoder, code string, amount decimal.Decimal, currency string) {
	start(enc, el("AmountDetails"))
	writeMoa(enc, code, amount, currency)
	end(enc, "AmountDetails")
}

func writeMoa(enc *xml.Encoder, code string, amount decimal.Decimal, currency string) {
	start(enc, el("Moa", attr("amountTypeCode", code), attr("currencyCodeList", calc.CurrencyCodeList)))
	leaf(enc, "Amount", calc.FormatAmount(calc.Round3(amount)), attr("currencyIdentifier", currency))
	end(enc, "Moa")
}

func el(local string, attrs ...xml.Attr) xml.StartElement {
	return xml.StartElement{Name: xml.Name{Local: local}, Attr: attrs}
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func start(enc *xml.Encoder, se xml.StartElement) {
	_ = enc.EncodeToken(se)
}

func end(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
}

func leaf(enc *xml.Encoder, local, value string, attrs ...xml.Attr) {
	start(enc, el(local, attrs...))
	_ = enc.EncodeToken(xml.CharData(value))
	end(enc, local)
}

// text recorta y normaliza a NFC (los acentos llegan a veces descompuestos desde el front).
func text(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func issueDate(inv *entity.Invoice) *time.Time {
	if inv.IssueDate != nil {
		return inv.IssueDate
	}
	if !inv.CreatedAt.IsZero() {
		t := inv.CreatedAt
		return &t
	}
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(calc.DateLayout)
}
