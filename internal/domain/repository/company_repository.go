package repository

import (
	"context"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// CompanyRepository lectura de la identidad del emisor. El alta y edición de empresas
// viven fuera de este servicio.
type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Company, error)
}
