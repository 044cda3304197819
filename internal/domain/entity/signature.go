package entity

import (
	"fmt"
	"time"
)

// SignatureProvider proveedor de firma. Conjunto cerrado: usar ParseSignatureProvider
// para convertir cadenas externas.
type SignatureProvider string

const (
	ProviderDigiGo   SignatureProvider = "digigo"
	ProviderUSBAgent SignatureProvider = "usb_agent"
	ProviderDSS      SignatureProvider = "dss"
)

// SignatureProviders lista ordenada de proveedores conocidos.
var SignatureProviders = []SignatureProvider{ProviderDigiGo, ProviderUSBAgent, ProviderDSS}

// ParseSignatureProvider valida el nombre de un proveedor.
func ParseSignatureProvider(s string) (SignatureProvider, error) {
	for _, p := range SignatureProviders {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("proveedor de firma desconocido: %q", s)
}

func (p SignatureProvider) String() string { return string(p) }

// Estados de una entrada del libro de firmas.
const (
	SignatureStatePending = "pending"
	SignatureStateSigned  = "signed"
)

// Claves de SignatureEntry.Meta.
const (
	MetaState        = "state"
	MetaCredentialID = "credentialId"
)

// SignatureEntry entrada del libro de firmas, única por (factura, proveedor).
type SignatureEntry struct {
	ID           string
	InvoiceID    string
	CompanyID    string
	Provider     SignatureProvider
	Environment  string
	State        string
	UnsignedXML  string
	UnsignedHash string
	SignedXML    string
	SignedAt     *time.Time
	CertSubject  string
	CertSerial   string
	JTI          string
	SAD          string
	SessionID    string
	Meta         map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsSigned informa si la entrada ya completó la transición pending→signed.
func (e *SignatureEntry) IsSigned() bool {
	return e.State == SignatureStateSigned
}

// CorrelationID identificador de correlación guardado al abrir la entrada.
func (e *SignatureEntry) CorrelationID() string {
	if e.Meta == nil {
		return ""
	}
	return e.Meta[MetaState]
}

// SignatureProof metadatos de la firma obtenida: certificado (agente local) o jti/sad (DigiGo).
type SignatureProof struct {
	CertSubject string
	CertSerial  string
	JTI         string
	SAD         string
	Meta        map[string]string
}

// CertificateDescriptor datos del certificado que el agente local declara.
type CertificateDescriptor struct {
	Thumbprint   string     `json:"thumbprint"`
	SerialNumber string     `json:"serialNumber"`
	Subject      string     `json:"subject"`
	Issuer       string     `json:"issuer"`
	NotBefore    *time.Time `json:"notBefore,omitempty"`
	NotAfter     *time.Time `json:"notAfter,omitempty"`
}
