package billing

import (
	"context"
	"fmt"

	"github.com/jhoicas/facturetn-api/internal/application/access"
	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// PDFUseCase genera la representación gráfica (PDF) de una factura con su QR TEIF.
type PDFUseCase struct {
	docs      *DocumentService
	access    access.Checker
	generator InvoicePDFGenerator
}

// NewPDFUseCase construye el caso de uso inyectando todas sus dependencias.
func NewPDFUseCase(docs *DocumentService, checker access.Checker, generator InvoicePDFGenerator) *PDFUseCase {
	return &PDFUseCase{docs: docs, access: checker, generator: generator}
}

// DownloadInvoicePDF recupera los datos de la factura y genera el PDF.
//
// Retorna:
//   - (pdfBytes, filename, nil)   si todo sale bien.
//   - domain.ErrInvoiceNotFound   si la factura no existe.
//   - domain.ErrForbidden         sin create_invoices ni submit_ttn sobre la empresa de la factura.
func (uc *PDFUseCase) DownloadInvoicePDF(ctx context.Context, actor access.Actor, invoiceID string) (pdfBytes []byte, filename string, err error) {
	// ── 1. Cargar factura, líneas y empresa ──────────────────────────────────
	inv, items, company, err := uc.docs.Load(ctx, invoiceID)
	if err != nil {
		return nil, "", err
	}

	// ── 2. Permisos ──────────────────────────────────────────────────────────
	allowed := false
	for _, action := range []string{entity.ActionCreateInvoices, entity.ActionSubmitTTN} {
		ok, cErr := uc.access.Can(ctx, actor.UserID, inv.CompanyID, action)
		if cErr != nil {
			return nil, "", cErr
		}
		if ok {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, "", domain.ErrForbidden
	}

	// ── 3. Generar PDF ───────────────────────────────────────────────────────
	qr := BuildQRPayload(inv, items, company)
	pdfBytes, err = uc.generator.GenerateInvoicePDF(ctx, inv, company, items, qr)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: generación fallida: %w", err)
	}

	name := inv.InvoiceNumber
	if name == "" {
		name = inv.ID
	}
	return pdfBytes, fmt.Sprintf("facture_%s.pdf", name), nil
}
