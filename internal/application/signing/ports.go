// Package signing orquesta la firma de facturas TEIF: el libro de firmas, el firmante remoto
// (DigiGo) y el agente local (clé USB) emparejado por deep link.
package signing

import (
	"context"
	"time"

	"github.com/jhoicas/facturetn-api/internal/application/billing"
	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/pkg/config"
)

// Documents produce el documento TEIF sin firma de una factura.
type Documents interface {
	BuildUnsigned(ctx context.Context, invoiceID, purpose string) (*billing.UnsignedDocument, error)
}

// RemoteSignerClient API HTTPS del firmante remoto.
type RemoteSignerClient interface {
	AuthorizeURL(credentialID, hash, state string) string
	// ExchangeToken canjea el jti por la autorización de firma (SAD).
	ExchangeToken(ctx context.Context, jti string) (string, error)
	SignHash(ctx context.Context, credentialID, sad, hash string) (string, error)
}

// SessionCache caché opcional state → contexto de la sesión remota.
type SessionCache interface {
	Put(ctx context.Context, sc entity.SessionContext, ttl time.Duration) error
	Get(ctx context.Context, state string) (*entity.SessionContext, error)
}

// Config parámetros de los orquestadores de firma.
type Config struct {
	PublicOrigin  string
	AgentScheme   string
	AgentTokenTTL time.Duration
	SessionTTL    time.Duration
	Environment   string
	Now           func() time.Time
}

// ConfigFrom traduce la configuración de la aplicación.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		PublicOrigin:  cfg.App.PublicOrigin,
		AgentScheme:   cfg.Agent.Scheme,
		AgentTokenTTL: time.Duration(cfg.Agent.TokenMinutes) * time.Minute,
		SessionTTL:    time.Duration(cfg.DigiGo.SessionMinutes) * time.Minute,
		Environment:   cfg.TTN.Environment,
	}
}

func (c Config) withDefaults() Config {
	if c.AgentScheme == "" {
		c.AgentScheme = "facturetn-agent"
	}
	if c.AgentTokenTTL <= 0 {
		c.AgentTokenTTL = 5 * time.Minute
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 10 * time.Minute
	}
	if c.Environment == "" {
		c.Environment = entity.EnvironmentProduction
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// environment aplica el entorno por defecto y lo valida.
func (c Config) environment(env string) (string, error) {
	if env == "" {
		env = c.Environment
	}
	if !entity.IsValidEnvironment(env) {
		return "", domain.ErrInvalidEnvironment
	}
	return env, nil
}
