package repository

import (
	"context"
	"time"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// QueueRepository cola de envíos programados a TTN.
type QueueRepository interface {
	GetByInvoice(ctx context.Context, invoiceID string) (*entity.QueueEntry, error)
	UpsertScheduled(ctx context.Context, q *entity.QueueEntry) error
	// CancelActive pasa a canceled las filas scheduled|queued de la factura.
	CancelActive(ctx context.Context, invoiceID string, now time.Time) (int64, error)
}
