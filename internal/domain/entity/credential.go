package entity

import "time"

// Estado del proveedor de firma en la credencial.
const (
	CredentialSignatureUnconfigured = "unconfigured"
	CredentialSignaturePairing      = "pairing"
	CredentialSignaturePaired       = "paired"
	CredentialSignatureError        = "error"
)

// Modo de envío a TTN.
const (
	SendModeAPI    = "api"
	SendModeManual = "manual"
)

// Valores admitidos de signature_provider en la credencial ("none" = sin firma).
var CredentialProviders = []string{"none", string(ProviderUSBAgent), string(ProviderDigiGo), string(ProviderDSS), "hsm"}

// DigiGoConfig identidad del firmante remoto configurada para la empresa.
type DigiGoConfig struct {
	CredentialID string `json:"credential_id,omitempty"`
}

// DSSConfig firmante DSS propio de la empresa (opcional; si no, el global).
type DSSConfig struct {
	URL     string `json:"url,omitempty"`
	Token   string `json:"token,omitempty"`
	Profile string `json:"profile,omitempty"`
}

// SignatureConfig blob jsonb por proveedor.
type SignatureConfig struct {
	DigiGo   *DigiGoConfig          `json:"digigo,omitempty"`
	USBAgent *CertificateDescriptor `json:"usb_agent,omitempty"`
	DSS      *DSSConfig             `json:"dss,omitempty"`
}

// Credential credenciales TTN y de firma por (empresa, entorno).
type Credential struct {
	ID                string
	CompanyID         string
	Environment       string
	SignatureProvider string
	SignatureStatus   string
	SignatureConfig   SignatureConfig
	RequireSignature  bool
	WSURL             string
	WSLogin           string
	WSPassword        string
	WSMatricule       string
	SendMode          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasWebservice informa si hay credenciales completas del webservice.
func (c *Credential) HasWebservice() bool {
	return c != nil && c.WSLogin != "" && c.WSPassword != "" && c.WSMatricule != ""
}

// DigiGoCredentialID devuelve el credentialId DigiGo configurado o "".
func (c *Credential) DigiGoCredentialID() string {
	if c == nil || c.SignatureConfig.DigiGo == nil {
		return ""
	}
	return c.SignatureConfig.DigiGo.CredentialID
}
