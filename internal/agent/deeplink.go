// Package agent implementa el agente local de referencia: recibe el deep link emitido
// por la API, carga el certificado del usuario y empareja o firma la factura.
package agent

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// Acciones del deep link.
const (
	ActionPair = "pair"
	ActionSign = "sign"
)

// Schemes esquemas aceptados.
var Schemes = []string{"facturetn", "facturetn-agent"}

// Link deep link ya interpretado.
type Link struct {
	Action      string
	Server      string
	Token       string
	CompanyID   string
	InvoiceID   string
	Environment string
}

// ParseLink interpreta {scheme}://{pair|sign}?server=…&token=…
func ParseLink(raw string) (Link, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Link{}, fmt.Errorf("deep link: %w", err)
	}
	if !knownScheme(u.Scheme) {
		return Link{}, fmt.Errorf("deep link: esquema no soportado %q", u.Scheme)
	}
	// facturetn-agent://sign?… deja la acción en Host; facturetn:sign?… en Opaque
	action := u.Host
	if action == "" {
		action = strings.Trim(u.Opaque+u.Path, "/")
	}
	q := u.Query()
	l := Link{
		Action:      action,
		Server:      strings.TrimRight(q.Get("server"), "/"),
		Token:       q.Get("token"),
		CompanyID:   q.Get("company_id"),
		InvoiceID:   q.Get("invoice_id"),
		Environment: q.Get("env"),
	}
	if l.Environment == "" {
		l.Environment = entity.EnvironmentProduction
	}

	switch {
	case l.Action != ActionPair && l.Action != ActionSign:
		return Link{}, fmt.Errorf("deep link: acción desconocida %q", l.Action)
	case l.Token == "":
		return Link{}, fmt.Errorf("deep link: token ausente")
	case l.Server == "":
		return Link{}, fmt.Errorf("deep link: server ausente")
	case l.Action == ActionPair && l.CompanyID == "":
		return Link{}, fmt.Errorf("deep link: company_id ausente")
	}
	if su, err := url.Parse(l.Server); err != nil || (su.Scheme != "https" && su.Scheme != "http") || su.Host == "" {
		return Link{}, fmt.Errorf("deep link: server inválido %q", l.Server)
	}
	return l, nil
}

func knownScheme(s string) bool {
	for _, k := range Schemes {
		if strings.EqualFold(s, k) {
			return true
		}
	}
	return false
}
