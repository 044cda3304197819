package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
)

var _ repository.CredentialRepository = (*CredentialRepo)(nil)

// CredentialRepo ttn_credentials, única por (company_id, environment).
type CredentialRepo struct {
	q Querier
}

// NewCredentialRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCredentialRepository(q Querier) *CredentialRepo {
	return &CredentialRepo{q: q}
}

// Get credencial de la empresa en el entorno.
func (r *CredentialRepo) Get(ctx context.Context, companyID, environment string) (*entity.Credential, error) {
	const query = `
		SELECT id, company_id, environment, COALESCE(signature_provider, 'none'), COALESCE(signature_status, 'unconfigured'),
		       COALESCE(signature_config, '{}'::jsonb), require_signature,
		       COALESCE(ws_url, ''), COALESCE(ws_login, ''), COALESCE(ws_password, ''), COALESCE(ws_matricule, ''),
		       COALESCE(send_mode, 'manual'), created_at, updated_at
		FROM ttn_credentials WHERE company_id = $1 AND environment = $2`
	var c entity.Credential
	var cfg []byte
	err := r.q.QueryRow(ctx, query, companyID, environment).Scan(
		&c.ID, &c.CompanyID, &c.Environment, &c.SignatureProvider, &c.SignatureStatus,
		&cfg, &c.RequireSignature,
		&c.WSURL, &c.WSLogin, &c.WSPassword, &c.WSMatricule,
		&c.SendMode, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ttn credential: %w", err)
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &c.SignatureConfig); err != nil {
			return nil, fmt.Errorf("decode signature_config: %w", err)
		}
	}
	return &c, nil
}

// Upsert inserta o reemplaza la credencial completa.
func (r *CredentialRepo) Upsert(ctx context.Context, c *entity.Credential) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	cfg, err := json.Marshal(c.SignatureConfig)
	if err != nil {
		return fmt.Errorf("encode signature_config: %w", err)
	}
	const query = `
		INSERT INTO ttn_credentials
		    (id, company_id, environment, signature_provider, signature_status, signature_config, require_signature,
		     ws_url, ws_login, ws_password, ws_matricule, send_mode, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, now(), now())
		ON CONFLICT (company_id, environment) DO UPDATE
		SET signature_provider = EXCLUDED.signature_provider,
		    signature_status   = EXCLUDED.signature_status,
		    signature_config   = EXCLUDED.signature_config,
		    require_signature  = EXCLUDED.require_signature,
		    ws_url             = EXCLUDED.ws_url,
		    ws_login           = EXCLUDED.ws_login,
		    ws_password        = EXCLUDED.ws_password,
		    ws_matricule       = EXCLUDED.ws_matricule,
		    send_mode          = EXCLUDED.send_mode,
		    updated_at         = now()
		RETURNING id, created_at, updated_at`
	err = r.q.QueryRow(ctx, query,
		c.ID, c.CompanyID, c.Environment, c.SignatureProvider, c.SignatureStatus, string(cfg), c.RequireSignature,
		nullIfEmpty(c.WSURL), nullIfEmpty(c.WSLogin), nullIfEmpty(c.WSPassword), nullIfEmpty(c.WSMatricule), c.SendMode,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert ttn credential: %w", err)
	}
	return nil
}

// SetSignatureStatus cambia solo signature_status; crea la fila mínima si aún no existe.
func (r *CredentialRepo) SetSignatureStatus(ctx context.Context, companyID, environment, status string) error {
	const query = `
		INSERT INTO ttn_credentials (id, company_id, environment, signature_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (company_id, environment) DO UPDATE
		SET signature_status = EXCLUDED.signature_status, updated_at = now()`
	if _, err := r.q.Exec(ctx, query, uuid.New().String(), companyID, environment, status); err != nil {
		return fmt.Errorf("update credential signature status: %w", err)
	}
	return nil
}
