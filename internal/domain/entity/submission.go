package entity

import "time"

// Estados de la cola de envío programado.
const (
	QueueScheduled = "scheduled"
	QueueQueued    = "queued"
	QueueSubmitted = "submitted"
	QueueError     = "error"
	QueueCanceled  = "canceled"
)

// QueueEntry fila de ttn_invoice_queue (una por factura).
type QueueEntry struct {
	ID          string
	InvoiceID   string
	CompanyID   string
	Environment string
	Status      string
	ScheduledAt time.Time
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsCancelable solo un envío programado (o en cola, aún no tomado) puede cancelarse.
func (q *QueueEntry) IsCancelable() bool {
	return q.Status == QueueScheduled || q.Status == QueueQueued
}
