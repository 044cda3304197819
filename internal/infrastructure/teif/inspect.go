package teif

import (
	"github.com/beevik/etree"

	calc "github.com/jhoicas/facturetn-api/pkg/teif"
)

// ProblemMalformed único problema devuelto cuando el XML no se puede parsear.
const ProblemMalformed = "Malformed XML"

// ValidateMinimum nombra cada elemento obligatorio ausente del documento. Lista vacía = apto para TTN.
func ValidateMinimum(data []byte) []string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil || doc.Root() == nil {
		return []string{ProblemMalformed}
	}
	root := doc.Root()
	var problems []string
	add := func(cond bool, problem string) {
		if cond {
			problems = append(problems, problem)
		}
	}

	add(root.Tag != "TEIF", "Missing <TEIF> root")
	add(root.SelectAttrValue("controlingAgency", "") != calc.ControlingAgency, `Missing controlingAgency="TTN"`)
	add(root.SelectAttrValue("version", "") != calc.Version, `Missing version="1.8.8"`)

	header := child(root, "InvoiceHeader")
	body := child(root, "InvoiceBody")
	add(header == nil, "Missing <InvoiceHeader>")
	add(body == nil, "Missing <InvoiceBody>")

	bgm := child(body, "Bgm")
	add(bgm == nil, "Missing <Bgm>")
	if id := child(bgm, "DocumentIdentifier"); id == nil {
		problems = append(problems, "Missing DocumentIdentifier")
	} else {
		add(trimmed(id) == "", "Empty DocumentIdentifier")
	}

	dtm := child(body, "Dtm")
	add(dtm == nil, "Missing <Dtm>")
	if issue := withAttr(descendants(dtm, "DateText"), "functionCode", calc.DateIssue); issue == nil || trimmed(issue) == "" {
		problems = append(problems, "Missing IssueDate (I-31)")
	} else {
		add(!isDDMMYY(trimmed(issue)), "Invalid IssueDate format (expected ddMMyy)")
	}

	partners := child(body, "PartnerSection")
	add(partners == nil, "Missing PartnerSection")
	details := descendants(partners, "PartnerDetails")
	supplier := withAttr(details, "functionCode", calc.PartnerSupplier)
	customer := withAttr(details, "functionCode", calc.PartnerCustomer)
	add(supplier == nil, "Missing Supplier partner (I-62)")
	add(customer == nil, "Missing Customer partner (I-64)")
	add(!hasIdentifier(supplier), "Missing/empty Supplier PartnerIdentifier")
	add(!hasIdentifier(customer), "Missing/empty Customer PartnerIdentifier")

	lins := child(body, "LinSection")
	add(lins == nil, "Missing LinSection")
	add(len(children(lins, "Lin")) < 1, "Missing at least one line")

	moa := child(body, "InvoiceMoa")
	add(moa == nil, "Missing InvoiceMoa totals")
	add(child(body, "InvoiceTax") == nil, "Missing InvoiceTax")
	add(withAttr(descendants(body, "TaxTypeName"), "code", calc.TaxTypeVAT) == nil, "Missing VAT tax block (I-1602)")

	lineMoas := descendants(lins, "Moa")
	add(withAttr(lineMoas, "amountTypeCode", calc.AmountLineHT) == nil, "Missing line total HT (I-171)")
	add(withAttr(lineMoas, "amountTypeCode", calc.AmountUnitPrice) == nil, "Missing unit HT price (I-183)")

	totalMoas := descendants(moa, "Moa")
	add(withAttr(totalMoas, "amountTypeCode", calc.AmountTotalHT) == nil, "Missing invoice total HT (I-176)")
	add(withAttr(totalMoas, "amountTypeCode", calc.AmountTaxableBase) == nil, "Missing invoice total base taxe (I-182)")
	add(withAttr(totalMoas, "amountTypeCode", calc.AmountTotalTax) == nil, "Missing invoice total taxe (I-181)")
	add(withAttr(totalMoas, "amountTypeCode", calc.AmountTotalTTC) == nil, "Missing invoice total TTC (I-180)")

	return problems
}

// HasSignature informa si el documento contiene un elemento Signature (cualquier prefijo).
func HasSignature(data []byte) bool {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil || doc.Root() == nil {
		return false
	}
	return findSignature(doc.Root()) != nil
}

func findSignature(e *etree.Element) *etree.Element {
	if e.Tag == "Signature" {
		return e
	}
	for _, c := range e.ChildElements() {
		if s := findSignature(c); s != nil {
			return s
		}
	}
	return nil
}

func hasIdentifier(partner *etree.Element) bool {
	id := descendants(partner, "PartnerIdentifier")
	return len(id) > 0 && trimmed(id[0]) != ""
}

func child(e *etree.Element, tag string) *etree.Element {
	if e == nil {
		return nil
	}
	for _, c := range e.ChildElements() {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

func children(e *etree.Element, tag string) []*etree.Element {
	if e == nil {
		return nil
	}
	var out []*etree.Element
	for _, c := range e.ChildElements() {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// descendants recorre el subárbol en profundidad; no entra en bloques Signature.
func descendants(e *etree.Element, tag string) []*etree.Element {
	if e == nil {
		return nil
	}
	var out []*etree.Element
	for _, c := range e.ChildElements() {
		if c.Tag == "Signature" {
			continue
		}
		if c.Tag == tag {
			out = append(out, c)
		}
		out = append(out, descendants(c, tag)...)
	}
	return out
}

func withAttr(list []*etree.Element, key, value string) *etree.Element {
	for _, e := range list {
		if e.SelectAttrValue(key, "") == value {
			return e
		}
	}
	return nil
}

func trimmed(e *etree.Element) string {
	if e == nil {
		return ""
	}
	return text(e.Text())
}

func isDDMMYY(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
