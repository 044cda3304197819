package dto

import (
	"time"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// DigiGoStartRequest body para POST /api/digigo/start.
type DigiGoStartRequest struct {
	InvoiceID    string `json:"invoice_id"`
	CredentialID string `json:"credential_id,omitempty"`
	BackURL      string `json:"back_url,omitempty"`
	Environment  string `json:"environment,omitempty"`
}

// DigiGoStartResponse URL a la que el navegador debe ir para autorizar la firma.
type DigiGoStartResponse struct {
	OK           bool      `json:"ok"`
	AuthorizeURL string    `json:"authorize_url"`
	State        string    `json:"state"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// DigiGoCallbackRequest artefacto devuelto por el firmante remoto (query o body).
type DigiGoCallbackRequest struct {
	Token string `json:"token" query:"token"`
	Code  string `json:"code" query:"code"`
	State string `json:"state" query:"state"`
}

// DigiGoCallbackResponse sesión correlacionada.
type DigiGoCallbackResponse struct {
	OK        bool   `json:"ok"`
	State     string `json:"state"`
	InvoiceID string `json:"invoice_id"`
	BackURL   string `json:"back_url"`
}

// DigiGoConfirmRequest body para POST /api/digigo/confirm.
type DigiGoConfirmRequest struct {
	InvoiceID string `json:"invoice_id"`
	State     string `json:"state"`
	Token     string `json:"token"`
}

// DigiGoConfirmResponse resultado de la firma remota.
type DigiGoConfirmResponse struct {
	OK          bool       `json:"ok"`
	InvoiceID   string     `json:"invoice_id"`
	SignatureID string     `json:"signature_id"`
	SignedAt    *time.Time `json:"signed_at,omitempty"`
	BackURL     string     `json:"back_url,omitempty"`
}

// DigiGoContextResponse contexto de una sesión para la página de retorno.
type DigiGoContextResponse struct {
	OK        bool   `json:"ok"`
	InvoiceID string `json:"invoice_id"`
	BackURL   string `json:"back_url"`
	Status    string `json:"status"`
}

// PairTokenRequest body para POST /api/signature/pair-token.
type PairTokenRequest struct {
	CompanyID   string `json:"company_id"`
	Environment string `json:"environment,omitempty"`
}

// SignTokenRequest body para POST /api/signature/sign-token.
type SignTokenRequest struct {
	InvoiceID   string `json:"invoice_id"`
	Environment string `json:"environment,omitempty"`
}

// DeepLinkResponse token de un solo uso y enlace para abrir el agente local.
type DeepLinkResponse struct {
	OK        bool      `json:"ok"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	DeepLink  string    `json:"deep_link"`
}

// AgentPairRequest body que envía el agente local al emparejarse.
type AgentPairRequest struct {
	Token       string                       `json:"token"`
	CompanyID   string                       `json:"company_id"`
	Environment string                       `json:"environment,omitempty"`
	Cert        entity.CertificateDescriptor `json:"cert"`
}

// AgentPairResponse credencial emparejada.
type AgentPairResponse struct {
	OK              bool   `json:"ok"`
	CompanyID       string `json:"company_id"`
	Environment     string `json:"environment"`
	SignatureStatus string `json:"signature_status"`
}

// SignPayloadResponse documento que el agente local debe firmar.
type SignPayloadResponse struct {
	OK          bool   `json:"ok"`
	InvoiceID   string `json:"invoice_id"`
	CompanyID   string `json:"company_id"`
	Environment string `json:"environment"`
	Thumbprint  string `json:"thumbprint,omitempty"`
	XML         string `json:"xml"`
}

// AgentSignedXMLRequest body con el XML firmado por el agente local.
type AgentSignedXMLRequest struct {
	Token       string                        `json:"token"`
	InvoiceID   string                        `json:"invoice_id,omitempty"`
	Environment string                        `json:"environment,omitempty"`
	SignedXML   string                        `json:"signed_xml"`
	Cert        *entity.CertificateDescriptor `json:"cert,omitempty"`
}

// AgentSignedXMLResponse entrada del libro completada.
type AgentSignedXMLResponse struct {
	OK          bool       `json:"ok"`
	InvoiceID   string     `json:"invoice_id"`
	SignatureID string     `json:"signature_id"`
	SignedAt    *time.Time `json:"signed_at,omitempty"`
}

// ProviderInfo proveedor de firma y su disponibilidad.
type ProviderInfo struct {
	Provider  string `json:"provider"`
	Mode      string `json:"mode,omitempty"`
	Available bool   `json:"available"`
}
