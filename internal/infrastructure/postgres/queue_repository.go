package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
)

var _ repository.QueueRepository = (*QueueRepo)(nil)

// QueueRepo ttn_invoice_queue, una fila por factura.
type QueueRepo struct {
	q Querier
}

// NewQueueRepository construye el adaptador. Pasar pool o tx (Querier).
func NewQueueRepository(q Querier) *QueueRepo {
	return &QueueRepo{q: q}
}

// GetByInvoice fila de la cola de la factura.
func (r *QueueRepo) GetByInvoice(ctx context.Context, invoiceID string) (*entity.QueueEntry, error) {
	const query = `
		SELECT id, invoice_id, company_id, environment, status, scheduled_at, attempts, COALESCE(last_error, ''), created_at, updated_at
		FROM ttn_invoice_queue WHERE invoice_id = $1`
	var q entity.QueueEntry
	err := r.q.QueryRow(ctx, query, invoiceID).Scan(
		&q.ID, &q.InvoiceID, &q.CompanyID, &q.Environment, &q.Status, &q.ScheduledAt, &q.Attempts, &q.LastError,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return &q, nil
}

// UpsertScheduled programa (o reprograma) el envío de la factura.
func (r *QueueRepo) UpsertScheduled(ctx context.Context, q *entity.QueueEntry) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	q.Status = entity.QueueScheduled
	const query = `
		INSERT INTO ttn_invoice_queue (id, invoice_id, company_id, environment, status, scheduled_at, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'scheduled', $5, 0, now(), now())
		ON CONFLICT (invoice_id) DO UPDATE
		SET status       = 'scheduled',
		    environment  = EXCLUDED.environment,
		    scheduled_at = EXCLUDED.scheduled_at,
		    last_error   = NULL,
		    updated_at   = now()
		RETURNING id, attempts, created_at, updated_at`
	err := r.q.QueryRow(ctx, query, q.ID, q.InvoiceID, q.CompanyID, q.Environment, q.ScheduledAt).
		Scan(&q.ID, &q.Attempts, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("schedule ttn submission: %w", err)
	}
	return nil
}

// CancelActive cancela lo que aún no se tomó (scheduled|queued).
func (r *QueueRepo) CancelActive(ctx context.Context, invoiceID string, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE ttn_invoice_queue SET status = 'canceled', updated_at = $2
		 WHERE invoice_id = $1 AND status IN ('scheduled', 'queued')`, invoiceID, now)
	if err != nil {
		return 0, fmt.Errorf("cancel ttn queue: %w", err)
	}
	return tag.RowsAffected(), nil
}
