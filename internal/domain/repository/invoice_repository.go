package repository

import (
	"context"
	"time"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// InvoiceRepository define el puerto de persistencia para facturas y sus líneas.
// Los métodos devuelven (nil, nil) cuando la fila no existe.
type InvoiceRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	// GetForUpdate bloquea la fila (SELECT … FOR UPDATE). Solo tiene sentido dentro de una transacción.
	GetForUpdate(ctx context.Context, id string) (*entity.Invoice, error)
	GetItems(ctx context.Context, invoiceID string) ([]*entity.InvoiceItem, error)
	SetSignatureStatus(ctx context.Context, id, status string) error
	// UpdateTTN persiste ttn_status, ttn_save_id, ttn_generated_ref, ttn_last_error y las fechas TTN.
	UpdateTTN(ctx context.Context, inv *entity.Invoice) error
	UpdateDeclaration(ctx context.Context, inv *entity.Invoice) error
	// MarkValidated registra la validación del contable (status = validated).
	MarkValidated(ctx context.Context, id string, at time.Time) error
	// Delete elimina la factura y todo lo que cuelga de ella (líneas, firmas, vistas, cola).
	Delete(ctx context.Context, id string) error
}
