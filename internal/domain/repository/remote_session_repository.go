package repository

import (
	"context"
	"time"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// RemoteSessionRepository sesiones de firma remota (digigo_sessions).
type RemoteSessionRepository interface {
	Create(ctx context.Context, s *entity.RemoteSession) error
	GetByState(ctx context.Context, state string) (*entity.RemoteSession, error)
	// LatestOpen sesión pendiente más reciente, sin jti y no expirada.
	LatestOpen(ctx context.Context, now time.Time) (*entity.RemoteSession, error)
	LatestForInvoice(ctx context.Context, invoiceID string) (*entity.RemoteSession, error)
	// BindJTI vincula el jti si la sesión sigue pendiente y sin jti (CAS). Devuelve si hubo cambio.
	BindJTI(ctx context.Context, id, jti string, now time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id, status, errorMessage string) error
}
