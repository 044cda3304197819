package entity

import "time"

// PairToken autoriza un único emparejamiento del agente local para (empresa, entorno).
type PairToken struct {
	Token       string
	CompanyID   string
	Environment string
	CreatedBy   string
	ExpiresAt   time.Time
	UsedAt      *time.Time
	CreatedAt   time.Time
}

// SignToken autoriza una única firma local de una factura concreta.
type SignToken struct {
	Token       string
	CompanyID   string
	InvoiceID   string
	Environment string
	UserID      string
	ExpiresAt   time.Time
	UsedAt      *time.Time
	CreatedAt   time.Time
}

// InvoiceView registro "factura visualizada por el firmante", previo al token de firma.
type InvoiceView struct {
	InvoiceID string
	ViewedBy  string
	ViewedAt  time.Time
}

// Entornos TTN.
const (
	EnvironmentProduction = "production"
	EnvironmentTest       = "test"
)

// IsValidEnvironment acepta production y test.
func IsValidEnvironment(env string) bool {
	return env == EnvironmentProduction || env == EnvironmentTest
}
