package teif

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/jhoicas/facturetn-api/internal/domain"
	calc "github.com/jhoicas/facturetn-api/pkg/teif"
)

// SizeResult resultado de EnforceMaxSize.
type SizeResult struct {
	XML          []byte
	OriginalSize int
	FinalSize    int
	Trimmed      bool
}

// reducibles elementos que TTN permite suprimir, en orden de aplicación.
var reducibles = []string{"Ftx", "AmountDescription"}

// EnforceMaxSize limita el documento a maxBytes (0 = 50 000). Solo aplica las reducciones
// admitidas por TTN y nunca dentro de ds:Signature; un documento firmado no se reduce.
// Si tras reducir sigue por encima del límite devuelve DOCUMENT_TOO_LARGE junto al resultado parcial.
func EnforceMaxSize(data []byte, maxBytes int) (SizeResult, error) {
	if maxBytes <= 0 {
		maxBytes = calc.DefaultMaxBytes
	}
	res := SizeResult{XML: data, OriginalSize: len(data), FinalSize: len(data)}
	if len(data) <= maxBytes {
		return res, nil
	}
	if HasSignature(data) {
		return res, fmt.Errorf("%w: documento firmado de %d bytes (máximo %d)", domain.ErrDocumentTooLarge, len(data), maxBytes)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return res, fmt.Errorf("teif: parsear XML: %w", err)
	}
	for _, tag := range reducibles {
		if removeAll(doc.Root(), tag) == 0 {
			continue
		}
		out, err := doc.WriteToBytes()
		if err != nil {
			return res, fmt.Errorf("teif: serializar XML: %w", err)
		}
		res.XML, res.FinalSize, res.Trimmed = out, len(out), true
		if len(out) <= maxBytes {
			return res, nil
		}
	}
	return res, fmt.Errorf("%w: %d bytes tras reducir (máximo %d)", domain.ErrDocumentTooLarge, res.FinalSize, maxBytes)
}

// removeAll elimina los descendientes con la etiqueta dada, sin entrar en Signature.
func removeAll(e *etree.Element, tag string) int {
	if e == nil {
		return 0
	}
	n := 0
	for _, c := range e.ChildElements() {
		switch c.Tag {
		case "Signature":
		case tag:
			e.RemoveChild(c)
			n++
		default:
			n += removeAll(c, tag)
		}
	}
	return n
}
