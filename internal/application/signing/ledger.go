package signing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
)

// OpenRequest apertura (o reapertura) de una entrada pendiente.
type OpenRequest struct {
	InvoiceID    string
	CompanyID    string
	Provider     entity.SignatureProvider
	Environment  string
	UnsignedXML  string
	UnsignedHash string
	SessionID    string
	Meta         map[string]string
}

// Ledger libro de firmas: una entrada por (factura, proveedor) que pasa de pending a signed una sola vez.
type Ledger struct {
	tx         repository.TxRunner
	signatures repository.SignatureRepository
	log        zerolog.Logger
}

// NewLedger construye el libro.
func NewLedger(tx repository.TxRunner, signatures repository.SignatureRepository, log zerolog.Logger) *Ledger {
	return &Ledger{tx: tx, signatures: signatures, log: log}
}

// Open deja la entrada en pending. Una entrada firmada no se reabre (ALREADY_SIGNED) y una
// pendiente solo se reabre con un identificador de correlación nuevo en Meta["state"].
func (l *Ledger) Open(ctx context.Context, req OpenRequest) (*entity.SignatureEntry, error) {
	var out *entity.SignatureEntry
	err := l.tx.Run(ctx, func(r repository.Repositories) error {
		var err error
		out, err = openIn(ctx, r.Signatures, req)
		return err
	})
	return out, err
}

// Complete marca la entrada como firmada y la factura como signed en la misma transacción.
// Sobre una entrada ya firmada no cambia nada y devuelve lo guardado.
func (l *Ledger) Complete(ctx context.Context, entryID, signedXML string, proof entity.SignatureProof, at time.Time) (*entity.SignatureEntry, error) {
	var out *entity.SignatureEntry
	err := l.tx.Run(ctx, func(r repository.Repositories) error {
		var err error
		out, _, err = completeIn(ctx, r, entryID, signedXML, proof, at)
		return err
	})
	return out, err
}

// Read entrada del proveedor indicado o, sin proveedor, la firmada más reciente (si no, la más reciente).
func (l *Ledger) Read(ctx context.Context, invoiceID string, provider entity.SignatureProvider) (*entity.SignatureEntry, error) {
	var (
		e   *entity.SignatureEntry
		err error
	)
	if provider == "" {
		e, err = l.signatures.Latest(ctx, invoiceID)
	} else {
		e, err = l.signatures.Get(ctx, invoiceID, provider)
	}
	if err != nil {
		return nil, fmt.Errorf("libro de firmas: leer: %w", err)
	}
	if e == nil {
		return nil, domain.ErrSignatureNotFound
	}
	return e, nil
}

func openIn(ctx context.Context, repo repository.SignatureRepository, req OpenRequest) (*entity.SignatureEntry, error) {
	state := strings.TrimSpace(req.Meta[entity.MetaState])
	existing, err := repo.Get(ctx, req.InvoiceID, req.Provider)
	if err != nil {
		return nil, fmt.Errorf("libro de firmas: leer entrada: %w", err)
	}
	if existing != nil {
		if existing.IsSigned() {
			return nil, domain.ErrAlreadySigned
		}
		if state == "" {
			return nil, domain.ErrStateRequired
		}
		if state == existing.CorrelationID() {
			// misma correlación y mismo documento: la apertura ya está hecha
			if existing.UnsignedHash == req.UnsignedHash {
				return existing, nil
			}
			return nil, domain.ErrStateRequired
		}
	}

	meta := make(map[string]string, len(req.Meta))
	for k, v := range req.Meta {
		meta[k] = v
	}
	e := &entity.SignatureEntry{
		InvoiceID:    req.InvoiceID,
		CompanyID:    req.CompanyID,
		Provider:     req.Provider,
		Environment:  req.Environment,
		State:        entity.SignatureStatePending,
		UnsignedXML:  req.UnsignedXML,
		UnsignedHash: req.UnsignedHash,
		SessionID:    req.SessionID,
		Meta:         meta,
	}
	ok, err := repo.UpsertPending(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("libro de firmas: abrir: %w", err)
	}
	if !ok {
		// firmada entre la lectura y el upsert
		return nil, domain.ErrAlreadySigned
	}
	return e, nil
}

// completeIn devuelve changed=false cuando la entrada ya estaba firmada.
func completeIn(ctx context.Context, r repository.Repositories, entryID, signedXML string, proof entity.SignatureProof, at time.Time) (*entity.SignatureEntry, bool, error) {
	if strings.TrimSpace(signedXML) == "" {
		return nil, false, domain.ErrSignedXMLEmpty
	}
	changed, err := r.Signatures.Complete(ctx, entryID, signedXML, proof, at)
	if err != nil {
		return nil, false, fmt.Errorf("libro de firmas: completar: %w", err)
	}
	entry, err := r.Signatures.GetByID(ctx, entryID)
	if err != nil {
		return nil, false, fmt.Errorf("libro de firmas: releer: %w", err)
	}
	if entry == nil {
		return nil, false, domain.ErrSignatureNotFound
	}
	if !changed {
		if entry.IsSigned() {
			return entry, false, nil
		}
		return nil, false, domain.ErrConflict
	}
	if err := r.Invoices.SetSignatureStatus(ctx, entry.InvoiceID, entity.SignatureStatusSigned); err != nil {
		return nil, false, fmt.Errorf("libro de firmas: estado de factura: %w", err)
	}
	return entry, true, nil
}
