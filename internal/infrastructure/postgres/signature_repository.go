package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
)

var _ repository.SignatureRepository = (*SignatureRepo)(nil)

// SignatureRepo libro de firmas sobre invoice_signatures, única por (invoice_id, provider).
type SignatureRepo struct {
	q Querier
}

// NewSignatureRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSignatureRepository(q Querier) *SignatureRepo {
	return &SignatureRepo{q: q}
}

const signatureColumns = `
	id, invoice_id, company_id, provider, COALESCE(environment, ''), state,
	COALESCE(unsigned_xml, ''), COALESCE(unsigned_hash, ''), COALESCE(signed_xml, ''), signed_at,
	COALESCE(cert_subject, ''), COALESCE(cert_serial, ''), COALESCE(jti, ''), COALESCE(sad, ''),
	COALESCE(session_id::text, ''), COALESCE(meta, '{}'::jsonb), created_at, updated_at`

func scanSignature(row pgx.Row) (*entity.SignatureEntry, error) {
	var e entity.SignatureEntry
	var provider string
	var meta []byte
	err := row.Scan(
		&e.ID, &e.InvoiceID, &e.CompanyID, &provider, &e.Environment, &e.State,
		&e.UnsignedXML, &e.UnsignedHash, &e.SignedXML, &e.SignedAt,
		&e.CertSubject, &e.CertSerial, &e.JTI, &e.SAD,
		&e.SessionID, &meta, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Provider = entity.SignatureProvider(provider)
	e.Meta = parseMeta(meta)
	return &e, nil
}

func (r *SignatureRepo) one(ctx context.Context, what, query string, args ...any) (*entity.SignatureEntry, error) {
	e, err := scanSignature(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return e, nil
}

// Get entrada de (factura, proveedor).
func (r *SignatureRepo) Get(ctx context.Context, invoiceID string, provider entity.SignatureProvider) (*entity.SignatureEntry, error) {
	return r.one(ctx, "get signature",
		`SELECT `+signatureColumns+` FROM invoice_signatures WHERE invoice_id = $1 AND provider = $2`,
		invoiceID, string(provider))
}

// GetByID entrada por identificador.
func (r *SignatureRepo) GetByID(ctx context.Context, id string) (*entity.SignatureEntry, error) {
	return r.one(ctx, "get signature by id",
		`SELECT `+signatureColumns+` FROM invoice_signatures WHERE id = $1`, id)
}

// Latest prioriza las entradas firmadas; entre iguales, la más reciente.
func (r *SignatureRepo) Latest(ctx context.Context, invoiceID string) (*entity.SignatureEntry, error) {
	return r.one(ctx, "latest signature",
		`SELECT `+signatureColumns+` FROM invoice_signatures
		 WHERE invoice_id = $1
		 ORDER BY (state = 'signed') DESC, COALESCE(signed_at, updated_at) DESC
		 LIMIT 1`, invoiceID)
}

// UpsertPending inserta o reabre la entrada. El WHERE del DO UPDATE protege una entrada firmada:
// en ese caso no vuelve ninguna fila y se informa false.
func (r *SignatureRepo) UpsertPending(ctx context.Context, e *entity.SignatureEntry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	meta, err := metaJSON(e.Meta)
	if err != nil {
		return false, fmt.Errorf("encode signature meta: %w", err)
	}
	const query = `
		INSERT INTO invoice_signatures
		    (id, invoice_id, company_id, provider, environment, state, unsigned_xml, unsigned_hash, session_id, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8::uuid, $9::jsonb, now(), now())
		ON CONFLICT (invoice_id, provider) DO UPDATE
		SET state         = 'pending',
		    environment   = EXCLUDED.environment,
		    unsigned_xml  = EXCLUDED.unsigned_xml,
		    unsigned_hash = EXCLUDED.unsigned_hash,
		    session_id    = EXCLUDED.session_id,
		    meta          = EXCLUDED.meta,
		    signed_xml    = NULL,
		    signed_at     = NULL,
		    jti           = NULL,
		    sad           = NULL,
		    updated_at    = now()
		WHERE invoice_signatures.state <> 'signed'
		RETURNING id, state, created_at, updated_at`
	err = r.q.QueryRow(ctx, query,
		e.ID, e.InvoiceID, e.CompanyID, string(e.Provider), nullIfEmpty(e.Environment),
		e.UnsignedXML, e.UnsignedHash, nullIfEmpty(e.SessionID), meta,
	).Scan(&e.ID, &e.State, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("upsert pending signature: %w", err)
	}
	return true, nil
}

// Complete transición pending→signed; solo la primera llamada concurrente afecta la fila.
func (r *SignatureRepo) Complete(ctx context.Context, id, signedXML string, proof entity.SignatureProof, at time.Time) (bool, error) {
	meta, err := metaJSON(proof.Meta)
	if err != nil {
		return false, fmt.Errorf("encode signature meta: %w", err)
	}
	const query = `
		UPDATE invoice_signatures
		SET state        = 'signed',
		    signed_xml   = $2,
		    signed_at    = $3,
		    cert_subject = COALESCE($4, cert_subject),
		    cert_serial  = COALESCE($5, cert_serial),
		    jti          = COALESCE($6, jti),
		    sad          = COALESCE($7, sad),
		    meta         = COALESCE(meta, '{}'::jsonb) || $8::jsonb,
		    updated_at   = $3
		WHERE id = $1 AND state <> 'signed'`
	tag, err := r.q.Exec(ctx, query, id, signedXML, at,
		nullIfEmpty(proof.CertSubject), nullIfEmpty(proof.CertSerial),
		nullIfEmpty(proof.JTI), nullIfEmpty(proof.SAD), meta)
	if err != nil {
		return false, fmt.Errorf("complete signature: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
