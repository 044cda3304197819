package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
)

var _ repository.MembershipRepository = (*MembershipRepo)(nil)

// MembershipRepo lectura de memberships y grupos.
type MembershipRepo struct {
	q Querier
}

// NewMembershipRepository construye el adaptador.
func NewMembershipRepository(q Querier) *MembershipRepo {
	return &MembershipRepo{q: q}
}

// Get pertenencia del usuario a la empresa.
func (r *MembershipRepo) Get(ctx context.Context, companyID, userID string) (*entity.Membership, error) {
	const query = `
		SELECT company_id, user_id, role, is_active,
		       can_manage_customers, can_create_invoices, can_validate_invoices, can_submit_ttn
		FROM memberships WHERE company_id = $1 AND user_id = $2`
	var m entity.Membership
	err := r.q.QueryRow(ctx, query, companyID, userID).Scan(
		&m.CompanyID, &m.UserID, &m.Role, &m.IsActive,
		&m.CanManageCustomers, &m.CanCreateInvoices, &m.CanValidateInvoices, &m.CanSubmitTTN,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return &m, nil
}

// HasGroupPermission permiso explícito por empresa en el jsonb del miembro de grupo.
func (r *MembershipRepo) HasGroupPermission(ctx context.Context, userID, companyID, action string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1
			FROM group_members gm
			JOIN group_companies gc ON gc.group_id = gm.group_id
			WHERE gm.user_id = $1 AND gc.company_id = $2 AND gm.is_active
			  AND (gm.permissions -> 'companies' -> ($2::text) ->> $3::text) = 'true'
		)`
	var ok bool
	if err := r.q.QueryRow(ctx, query, userID, companyID, action).Scan(&ok); err != nil {
		return false, fmt.Errorf("check group permission: %w", err)
	}
	return ok, nil
}
