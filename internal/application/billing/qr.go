package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	calc "github.com/jhoicas/facturetn-api/pkg/teif"
)

// QRPayload contenido del código QR impreso en el PDF.
type QRPayload struct {
	Payload string
	Hash    string // sha256 hex del JSON; vacío si el QR es la referencia TTN
	Ref     string
}

type qrParty struct {
	Name    string `json:"name"`
	MF      string `json:"mf"`
	Address string `json:"address"`
}

type qrLine struct {
	No     int         `json:"no"`
	Desc   string      `json:"desc"`
	Qty    json.Number `json:"qty"`
	PUHT   json.Number `json:"pu_ht"`
	VATPct json.Number `json:"vat_pct"`
	LineHT json.Number `json:"line_ht"`
}

type qrDocument struct {
	Spec    string `json:"spec"`
	Version string `json:"version"`
	Invoice struct {
		Number   string `json:"number"`
		Date     string `json:"date"`
		Currency string `json:"currency"`
	} `json:"invoice"`
	Seller qrParty `json:"seller"`
	Buyer  qrParty `json:"buyer"`
	Totals struct {
		SubtotalHT   json.Number `json:"subtotal_ht"`
		TotalVAT     json.Number `json:"total_vat"`
		StampEnabled bool        `json:"stamp_enabled"`
		StampAmount  json.Number `json:"stamp_amount"`
		TotalTTC     json.Number `json:"total_ttc"`
	} `json:"totals"`
	Lines []qrLine `json:"lines"`
}

// BuildQRPayload: una factura aceptada por TTN con referencia lleva "TTNQR|REF:<ref>";
// el resto, "TEIFQR|<json>|SHA256:<hex>" con los datos esenciales de la factura.
func BuildQRPayload(inv *entity.Invoice, items []*entity.InvoiceItem, company *entity.Company) QRPayload {
	number := strings.TrimSpace(inv.InvoiceNumber)
	if number == "" {
		number = inv.ID
	}
	if len(number) > 60 {
		number = number[:60]
	}
	if inv.TTNGeneratedRef != "" && inv.TTNStatus == entity.TTNStatusAccepted {
		return QRPayload{Payload: "TTNQR|REF:" + inv.TTNGeneratedRef, Ref: number}
	}

	var d qrDocument
	d.Spec, d.Version = "TEIF-QR", "1.0"
	d.Invoice.Number = number
	if inv.IssueDate != nil {
		d.Invoice.Date = inv.IssueDate.Format("2006-01-02")
	}
	d.Invoice.Currency = inv.CurrencyOrDefault()
	if company != nil {
		d.Seller = qrParty{Name: company.Name, MF: company.TaxID, Address: company.Address}
	}
	d.Buyer = qrParty{Name: inv.CustomerName, MF: inv.CustomerTaxID, Address: inv.CustomerAddress}
	d.Totals.SubtotalHT = amount(inv.SubtotalHT)
	d.Totals.TotalVAT = amount(inv.TotalVAT)
	d.Totals.StampEnabled = inv.StampEnabled
	d.Totals.StampAmount = amount(inv.StampAmount)
	d.Totals.TotalTTC = amount(inv.TotalTTC)
	d.Lines = make([]qrLine, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		lineHT := it.LineTotalHT
		if lineHT.IsZero() {
			lineHT = it.Quantity.Mul(it.UnitPrice)
		}
		d.Lines = append(d.Lines, qrLine{
			No:     it.LineNo,
			Desc:   it.Description,
			Qty:    json.Number(it.Quantity.String()),
			PUHT:   amount(it.UnitPrice),
			VATPct: json.Number(it.VATPct.String()),
			LineHT: amount(lineHT),
		})
	}

	raw, _ := json.Marshal(d)
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])
	return QRPayload{Payload: "TEIFQR|" + string(raw) + "|SHA256:" + hash, Hash: hash, Ref: number}
}

func amount(v decimal.Decimal) json.Number {
	return json.Number(calc.FormatAmount(v))
}
