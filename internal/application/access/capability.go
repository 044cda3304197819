// Package access decide si un usuario puede ejecutar una acción sobre una empresa.
package access

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
)

// Actor usuario autenticado que origina la operación.
type Actor struct {
	UserID    string
	CompanyID string // empresa del token; las acciones sobre facturas usan la empresa de la factura
}

// Checker contrato mínimo que consumen los casos de uso y el middleware.
type Checker interface {
	Can(ctx context.Context, userID, companyID, action string) (bool, error)
}

// CapabilityService implementación sobre memberships y permisos de grupo.
type CapabilityService struct {
	memberships repository.MembershipRepository
	log         zerolog.Logger
}

// NewCapabilityService construye el servicio.
func NewCapabilityService(memberships repository.MembershipRepository, log zerolog.Logger) *CapabilityService {
	return &CapabilityService{memberships: memberships, log: log}
}

// Can: una pertenencia activa decide sola; sin ella se consultan los permisos de grupo.
func (s *CapabilityService) Can(ctx context.Context, userID, companyID, action string) (bool, error) {
	if userID == "" || companyID == "" || !isAction(action) {
		return false, nil
	}
	m, err := s.memberships.Get(ctx, companyID, userID)
	if err != nil {
		return false, fmt.Errorf("membership: %w", err)
	}
	var ok bool
	if m != nil && m.IsActive {
		ok = m.Allows(action)
	} else if ok, err = s.memberships.HasGroupPermission(ctx, userID, companyID, action); err != nil {
		return false, fmt.Errorf("group permission: %w", err)
	}
	if !ok {
		s.log.Debug().Str("user_id", userID).Str("company_id", companyID).Str("action", action).Msg("acción denegada")
	}
	return ok, nil
}

// Require devuelve domain.ErrForbidden si la acción no está permitida. El motivo exacto
// solo queda en el log.
func Require(ctx context.Context, c Checker, actor Actor, companyID, action string) error {
	ok, err := c.Can(ctx, actor.UserID, companyID, action)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}

func isAction(a string) bool {
	switch a {
	case entity.ActionManageCustomers, entity.ActionCreateInvoices, entity.ActionValidateInvoices, entity.ActionSubmitTTN:
		return true
	}
	return false
}
