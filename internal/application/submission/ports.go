// Package submission envío de facturas al webservice TTN: envío inmediato, programación,
// cancelación y consulta de estado.
package submission

import (
	"context"
	"time"

	"github.com/jhoicas/facturetn-api/internal/application/billing"
	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/dss"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/ttn"
	"github.com/jhoicas/facturetn-api/pkg/config"
)

// Documents produce el documento TEIF validado y acotado en tamaño.
type Documents interface {
	BuildUnsigned(ctx context.Context, invoiceID, purpose string) (*billing.UnsignedDocument, error)
}

// AuthorityClient operaciones SOAP de TTN.
type AuthorityClient interface {
	SaveEfact(ctx context.Context, creds ttn.Credentials, teifXML []byte) (*ttn.SaveResult, error)
	ConsultEfact(ctx context.Context, creds ttn.Credentials, crit ttn.Criteria) (*ttn.ConsultResult, error)
}

// ServerSigner firmante de servidor (DSS).
type ServerSigner interface {
	Sign(ctx context.Context, unsignedXML []byte, cfg dss.Config) ([]byte, error)
}

// Config parámetros del envío.
type Config struct {
	Environment   string
	ScheduleDelay time.Duration
	DSS           dss.Config // firmante global si la credencial no define el suyo
	Now           func() time.Time
}

// ConfigFrom traduce la configuración de la aplicación.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Environment:   cfg.TTN.Environment,
		ScheduleDelay: time.Duration(cfg.TTN.ScheduleDelayMinutes) * time.Minute,
		DSS:           dss.Config{URL: cfg.DSS.URL, Token: cfg.DSS.Token, Profile: cfg.DSS.Profile},
	}
}

func (c Config) withDefaults() Config {
	if c.Environment == "" {
		c.Environment = entity.EnvironmentProduction
	}
	if c.ScheduleDelay <= 0 {
		c.ScheduleDelay = 10 * time.Minute
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

func (c Config) environment(env string) (string, error) {
	if env == "" {
		env = c.Environment
	}
	if !entity.IsValidEnvironment(env) {
		return "", domain.ErrInvalidEnvironment
	}
	return env, nil
}
