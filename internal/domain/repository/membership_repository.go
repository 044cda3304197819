package repository

import (
	"context"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// MembershipRepository lectura de pertenencias y permisos de grupo. Nunca escribe.
type MembershipRepository interface {
	Get(ctx context.Context, companyID, userID string) (*entity.Membership, error)
	// HasGroupPermission informa si un grupo activo del usuario que contiene la empresa
	// le concede la acción (permissions.companies[companyID][action] = true).
	HasGroupPermission(ctx context.Context, userID, companyID, action string) (bool, error)
}
