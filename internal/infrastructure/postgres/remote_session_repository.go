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

var _ repository.RemoteSessionRepository = (*RemoteSessionRepo)(nil)

// RemoteSessionRepo sesiones DigiGo (digigo_sessions).
type RemoteSessionRepo struct {
	q Querier
}

// NewRemoteSessionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewRemoteSessionRepository(q Querier) *RemoteSessionRepo {
	return &RemoteSessionRepo{q: q}
}

const sessionColumns = `
	id, state, invoice_id, company_id, COALESCE(user_id::text, ''), COALESCE(back_url, ''), COALESCE(environment, ''),
	status, COALESCE(jti, ''), COALESCE(error_message, ''), expires_at, created_at, updated_at`

func scanSession(row pgx.Row) (*entity.RemoteSession, error) {
	var s entity.RemoteSession
	err := row.Scan(&s.ID, &s.State, &s.InvoiceID, &s.CompanyID, &s.UserID, &s.BackURL, &s.Environment,
		&s.Status, &s.JTI, &s.ErrorMessage, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RemoteSessionRepo) one(ctx context.Context, what, query string, args ...any) (*entity.RemoteSession, error) {
	s, err := scanSession(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return s, nil
}

// Create persiste una sesión nueva en pending.
func (r *RemoteSessionRepo) Create(ctx context.Context, s *entity.RemoteSession) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = entity.RemoteSessionPending
	}
	const query = `
		INSERT INTO digigo_sessions (id, state, invoice_id, company_id, user_id, back_url, environment, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::uuid, $6, $7, $8, $9, COALESCE($10::timestamptz, now()), COALESCE($10::timestamptz, now()))`
	_, err := r.q.Exec(ctx, query, s.ID, s.State, s.InvoiceID, s.CompanyID, nullIfEmpty(s.UserID),
		nullIfEmpty(s.BackURL), nullIfEmpty(s.Environment), s.Status, s.ExpiresAt, nullIfZeroTime(s.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("digigo state already exists: %w", err)
		}
		return fmt.Errorf("insert digigo session: %w", err)
	}
	return nil
}

// GetByState busca por el identificador de correlación.
func (r *RemoteSessionRepo) GetByState(ctx context.Context, state string) (*entity.RemoteSession, error) {
	return r.one(ctx, "get digigo session", `SELECT `+sessionColumns+` FROM digigo_sessions WHERE state = $1`, state)
}

// LatestOpen sesión pendiente más reciente sin jti y sin expirar.
func (r *RemoteSessionRepo) LatestOpen(ctx context.Context, now time.Time) (*entity.RemoteSession, error) {
	return r.one(ctx, "latest open digigo session",
		`SELECT `+sessionColumns+` FROM digigo_sessions
		 WHERE status = 'pending' AND jti IS NULL AND expires_at > $1
		 ORDER BY created_at DESC LIMIT 1`, now)
}

// LatestForInvoice sesión más reciente de la factura, sea cual sea su estado.
func (r *RemoteSessionRepo) LatestForInvoice(ctx context.Context, invoiceID string) (*entity.RemoteSession, error) {
	return r.one(ctx, "latest digigo session for invoice",
		`SELECT `+sessionColumns+` FROM digigo_sessions WHERE invoice_id = $1 ORDER BY created_at DESC LIMIT 1`, invoiceID)
}

// BindJTI CAS: solo vincula si la sesión sigue pending, sin jti y vigente.
func (r *RemoteSessionRepo) BindJTI(ctx context.Context, id, jti string, now time.Time) (bool, error) {
	const query = `
		UPDATE digigo_sessions SET jti = $2, status = 'done', updated_at = $3
		WHERE id = $1 AND status = 'pending' AND jti IS NULL AND expires_at > $3`
	tag, err := r.q.Exec(ctx, query, id, jti, now)
	if err != nil {
		return false, fmt.Errorf("bind digigo jti: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus cambia el estado y el mensaje de error.
func (r *RemoteSessionRepo) UpdateStatus(ctx context.Context, id, status, errorMessage string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE digigo_sessions SET status = $2, error_message = $3, updated_at = now() WHERE id = $1`,
		id, status, nullIfEmpty(errorMessage))
	if err != nil {
		return fmt.Errorf("update digigo session: %w", err)
	}
	return nil
}
