package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
)

var _ repository.TokenRepository = (*TokenRepo)(nil)

// TokenRepo tokens de emparejamiento y de firma del agente local.
type TokenRepo struct {
	q Querier
}

// NewTokenRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTokenRepository(q Querier) *TokenRepo {
	return &TokenRepo{q: q}
}

const pairTokenColumns = `token, company_id, environment, COALESCE(created_by::text, ''), expires_at, used_at, created_at`

func scanPairToken(row pgx.Row) (*entity.PairToken, error) {
	var t entity.PairToken
	if err := row.Scan(&t.Token, &t.CompanyID, &t.Environment, &t.CreatedBy, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

const signTokenColumns = `token, company_id, invoice_id, environment, COALESCE(user_id::text, ''), expires_at, used_at, created_at`

func scanSignToken(row pgx.Row) (*entity.SignToken, error) {
	var t entity.SignToken
	if err := row.Scan(&t.Token, &t.CompanyID, &t.InvoiceID, &t.Environment, &t.UserID, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreatePairToken persiste un token de emparejamiento.
func (r *TokenRepo) CreatePairToken(ctx context.Context, t *entity.PairToken) error {
	const query = `
		INSERT INTO signature_pair_tokens (token, company_id, environment, created_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4::uuid, $5, COALESCE($6::timestamptz, now()))`
	if _, err := r.q.Exec(ctx, query, t.Token, t.CompanyID, t.Environment, nullIfEmpty(t.CreatedBy), t.ExpiresAt, nullIfZeroTime(t.CreatedAt)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("pair token already exists: %w", err)
		}
		return fmt.Errorf("insert pair token: %w", err)
	}
	return nil
}

// GetPairToken lectura sin canje (para distinguir el motivo de un canje fallido).
func (r *TokenRepo) GetPairToken(ctx context.Context, token string) (*entity.PairToken, error) {
	t, err := scanPairToken(r.q.QueryRow(ctx, `SELECT `+pairTokenColumns+` FROM signature_pair_tokens WHERE token = $1`, token))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pair token: %w", err)
	}
	return t, nil
}

// ClaimPairToken canje atómico: un único UPDATE condicional sobre used_at.
func (r *TokenRepo) ClaimPairToken(ctx context.Context, token, companyID, environment string, now time.Time) (*entity.PairToken, error) {
	const query = `
		UPDATE signature_pair_tokens SET used_at = $4
		WHERE token = $1 AND company_id = $2 AND environment = $3
		  AND used_at IS NULL AND expires_at > $4
		RETURNING ` + pairTokenColumns
	t, err := scanPairToken(r.q.QueryRow(ctx, query, token, companyID, environment, now))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim pair token: %w", err)
	}
	return t, nil
}

// CreateSignToken persiste un token de firma.
func (r *TokenRepo) CreateSignToken(ctx context.Context, t *entity.SignToken) error {
	const query = `
		INSERT INTO signature_sign_tokens (token, company_id, invoice_id, environment, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5::uuid, $6, COALESCE($7::timestamptz, now()))`
	if _, err := r.q.Exec(ctx, query, t.Token, t.CompanyID, t.InvoiceID, t.Environment, nullIfEmpty(t.UserID), t.ExpiresAt, nullIfZeroTime(t.CreatedAt)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sign token already exists: %w", err)
		}
		return fmt.Errorf("insert sign token: %w", err)
	}
	return nil
}

// GetSignToken lectura sin canje.
func (r *TokenRepo) GetSignToken(ctx context.Context, token string) (*entity.SignToken, error) {
	t, err := scanSignToken(r.q.QueryRow(ctx, `SELECT `+signTokenColumns+` FROM signature_sign_tokens WHERE token = $1`, token))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sign token: %w", err)
	}
	return t, nil
}

// ClaimSignToken canje atómico; los campos vacíos de scope no restringen.
func (r *TokenRepo) ClaimSignToken(ctx context.Context, token string, scope repository.SignTokenScope, now time.Time) (*entity.SignToken, error) {
	const query = `
		UPDATE signature_sign_tokens SET used_at = $2
		WHERE token = $1 AND used_at IS NULL AND expires_at > $2
		  AND ($3::text = '' OR invoice_id::text = $3)
		  AND ($4::text = '' OR environment = $4)
		RETURNING ` + signTokenColumns
	t, err := scanSignToken(r.q.QueryRow(ctx, query, token, now, scope.InvoiceID, scope.Environment))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim sign token: %w", err)
	}
	return t, nil
}

// RecordView registra (o refresca) la visualización de la factura por el usuario.
func (r *TokenRepo) RecordView(ctx context.Context, v *entity.InvoiceView) error {
	const query = `
		INSERT INTO invoice_signature_views (invoice_id, viewed_by, viewed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (invoice_id, viewed_by) DO UPDATE SET viewed_at = EXCLUDED.viewed_at`
	if _, err := r.q.Exec(ctx, query, v.InvoiceID, v.ViewedBy, v.ViewedAt); err != nil {
		return fmt.Errorf("record invoice view: %w", err)
	}
	return nil
}

// HasViewed informa si existe un registro de visualización.
func (r *TokenRepo) HasViewed(ctx context.Context, invoiceID, userID string) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoice_signature_views WHERE invoice_id = $1 AND viewed_by = $2)`,
		invoiceID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check invoice view: %w", err)
	}
	return ok, nil
}
