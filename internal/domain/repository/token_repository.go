package repository

import (
	"context"
	"time"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// SignTokenScope alcance opcional exigido al canjear un token de firma.
type SignTokenScope struct {
	InvoiceID   string
	Environment string
}

// TokenRepository tokens de un solo uso del agente local y registros de visualización.
// Los métodos Claim* son un único UPDATE condicional sobre used_at: devuelven nil si no se canjeó nada.
type TokenRepository interface {
	CreatePairToken(ctx context.Context, t *entity.PairToken) error
	GetPairToken(ctx context.Context, token string) (*entity.PairToken, error)
	ClaimPairToken(ctx context.Context, token, companyID, environment string, now time.Time) (*entity.PairToken, error)

	CreateSignToken(ctx context.Context, t *entity.SignToken) error
	GetSignToken(ctx context.Context, token string) (*entity.SignToken, error)
	ClaimSignToken(ctx context.Context, token string, scope SignTokenScope, now time.Time) (*entity.SignToken, error)

	RecordView(ctx context.Context, v *entity.InvoiceView) error
	HasViewed(ctx context.Context, invoiceID, userID string) (bool, error)
}
