package repository

import (
	"context"
	"time"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// SignatureRepository almacén del libro de firmas (invoice_signatures).
type SignatureRepository interface {
	Get(ctx context.Context, invoiceID string, provider entity.SignatureProvider) (*entity.SignatureEntry, error)
	GetByID(ctx context.Context, id string) (*entity.SignatureEntry, error)
	// Latest devuelve la entrada firmada más reciente o, si no hay, la más reciente.
	Latest(ctx context.Context, invoiceID string) (*entity.SignatureEntry, error)
	// UpsertPending inserta o reabre la entrada (factura, proveedor) en pending. No toca una entrada firmada:
	// en ese caso devuelve false.
	UpsertPending(ctx context.Context, e *entity.SignatureEntry) (bool, error)
	// Complete marca la entrada como firmada si aún no lo está (CAS sobre state). Devuelve si hubo cambio.
	Complete(ctx context.Context, id, signedXML string, proof entity.SignatureProof, at time.Time) (bool, error)
}
