package repository

import (
	"context"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// CredentialRepository credenciales TTN/firma por (empresa, entorno).
type CredentialRepository interface {
	Get(ctx context.Context, companyID, environment string) (*entity.Credential, error)
	Upsert(ctx context.Context, c *entity.Credential) error
	SetSignatureStatus(ctx context.Context, companyID, environment, status string) error
}
