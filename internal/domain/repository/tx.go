package repository

import (
	"context"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// Repositories repositorios atados a una misma transacción.
type Repositories struct {
	Invoices    InvoiceRepository
	Signatures  SignatureRepository
	Tokens      TokenRepository
	Sessions    RemoteSessionRepository
	Credentials CredentialRepository
	Queue       QueueRepository
}

// TxRunner ejecuta callbacks en una transacción: Commit si fn devuelve nil, Rollback si no.
type TxRunner interface {
	Run(ctx context.Context, fn func(r Repositories) error) error
	// RunInvoice bloquea la fila de la factura antes de llamar a fn, de modo que la comprobación
	// del bloqueo y la escritura ocurren en la misma transacción. Factura inexistente: ErrInvoiceNotFound.
	RunInvoice(ctx context.Context, invoiceID string, fn func(inv *entity.Invoice, r Repositories) error) error
}
