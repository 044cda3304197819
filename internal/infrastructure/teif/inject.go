package teif

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/jhoicas/facturetn-api/internal/domain"
	calc "github.com/jhoicas/facturetn-api/pkg/teif"
)

var invoiceBodyEnd = []byte("</InvoiceBody>")

// InjectSignature añade la firma como último hijo de TEIF, justo después de InvoiceBody.
// signature puede ser un bloque <ds:Signature> completo (o un XML que lo contenga) o solo el
// valor de la firma, que se envuelve en ds:Signature/ds:SignatureValue.
// Los bytes del documento sin firmar no se modifican.
func InjectSignature(unsignedXML []byte, signature string) ([]byte, error) {
	sig := strings.TrimSpace(signature)
	if sig == "" {
		return nil, domain.ErrSignatureEmpty
	}

	block, err := signatureBlock(sig)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(unsignedXML); err != nil || doc.Root() == nil || doc.Root().Tag != "TEIF" || child(doc.Root(), "InvoiceBody") == nil {
		return nil, domain.ErrTEIFStructureInvalid
	}
	idx := bytes.LastIndex(unsignedXML, invoiceBodyEnd)
	if idx < 0 {
		return nil, domain.ErrTEIFStructureInvalid
	}
	at := idx + len(invoiceBodyEnd)

	out := make([]byte, 0, len(unsignedXML)+len(block)+4)
	out = append(out, unsignedXML[:at]...)
	out = append(out, "\n  "...)
	out = append(out, block...)
	out = append(out, unsignedXML[at:]...)
	return out, nil
}

func signatureBlock(sig string) (string, error) {
	var el *etree.Element
	if strings.Contains(sig, "<") {
		src := etree.NewDocument()
		if err := src.ReadFromString(sig); err != nil || src.Root() == nil {
			return "", domain.ErrSignatureBlockInvalid
		}
		found := findSignature(src.Root())
		if found == nil {
			return "", domain.ErrSignatureBlockInvalid
		}
		el = found.Copy()
		// La declaración del namespace puede vivir en un ancestro del documento de origen.
		if el.Space != "" && el.SelectAttr("xmlns:"+el.Space) == nil {
			el.CreateAttr("xmlns:"+el.Space, calc.NsDsig)
		} else if el.Space == "" && el.SelectAttr("xmlns") == nil {
			el.CreateAttr("xmlns", calc.NsDsig)
		}
	} else {
		el = etree.NewElement("ds:Signature")
		el.CreateAttr("xmlns:ds", calc.NsDsig)
		el.CreateElement("ds:SignatureValue").SetText(sig)
	}

	out := etree.NewDocument()
	out.SetRoot(el)
	block, err := out.WriteToString()
	if err != nil {
		return "", fmt.Errorf("teif: serializar firma: %w", err)
	}
	return block, nil
}
