package dto

import "time"

// DeclarationRequest body para POST /api/invoices/:id/declaration.
type DeclarationRequest struct {
	Status string `json:"status"` // none | manual
	Ref    string `json:"ref,omitempty"`
	Note   string `json:"note,omitempty"`
}

// DeclarationResponse estado de declaración tras el cambio.
type DeclarationResponse struct {
	OK                bool       `json:"ok"`
	InvoiceID         string     `json:"invoice_id"`
	DeclarationStatus string     `json:"declaration_status"`
	DeclaredAt        *time.Time `json:"declared_at,omitempty"`
}

// SaveCredentialsRequest body para PUT /api/ttn/credentials. Los campos nil conservan el valor guardado.
type SaveCredentialsRequest struct {
	CompanyID          string  `json:"company_id"`
	Environment        string  `json:"environment"`
	SignatureProvider  *string `json:"signature_provider,omitempty"`
	RequireSignature   *bool   `json:"require_signature,omitempty"`
	SendMode           *string `json:"send_mode,omitempty"`
	WSURL              *string `json:"ws_url,omitempty"`
	WSLogin            *string `json:"ws_login,omitempty"`
	WSPassword         *string `json:"ws_password,omitempty"`
	WSMatricule        *string `json:"ws_matricule,omitempty"`
	DigiGoCredentialID *string `json:"digigo_credential_id,omitempty"`
	DSSURL             *string `json:"dss_url,omitempty"`
	DSSToken           *string `json:"dss_token,omitempty"`
	DSSProfile         *string `json:"dss_profile,omitempty"`
}

// CredentialResponse credencial guardada; la contraseña y el token DSS nunca se devuelven.
type CredentialResponse struct {
	CompanyID          string `json:"company_id"`
	Environment        string `json:"environment"`
	SignatureProvider  string `json:"signature_provider"`
	SignatureStatus    string `json:"signature_status"`
	RequireSignature   bool   `json:"require_signature"`
	SendMode           string `json:"send_mode"`
	WSURL              string `json:"ws_url,omitempty"`
	WSLogin            string `json:"ws_login,omitempty"`
	HasPassword        bool   `json:"has_password"`
	WSMatricule        string `json:"ws_matricule,omitempty"`
	DigiGoCredentialID string `json:"digigo_credential_id,omitempty"`
	DSSURL             string `json:"dss_url,omitempty"`
}
