package billing

import (
	"context"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// InvoicePDFGenerator genera la representación PDF de una factura con su código QR TEIF.
type InvoicePDFGenerator interface {
	GenerateInvoicePDF(
		ctx context.Context,
		invoice *entity.Invoice,
		company *entity.Company,
		items []*entity.InvoiceItem,
		qr QRPayload,
	) ([]byte, error)
}
