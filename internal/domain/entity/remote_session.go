package entity

import "time"

// Estados de una sesión de firma remota (DigiGo).
const (
	RemoteSessionPending    = "pending"
	RemoteSessionDone       = "done"        // jti vinculado en el callback
	RemoteSessionCallbackOK = "callback_ok" // firma obtenida e inyectada
	RemoteSessionError      = "error"
)

// RemoteSession correlaciona el viaje de ida y vuelta por el firmante remoto.
type RemoteSession struct {
	ID           string
	State        string
	InvoiceID    string
	CompanyID    string
	UserID       string
	BackURL      string
	Environment  string
	Status       string
	JTI          string
	ErrorMessage string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsOpen: pendiente, sin jti y dentro de la ventana de validez.
func (s *RemoteSession) IsOpen(now time.Time) bool {
	return s.Status == RemoteSessionPending && s.JTI == "" && now.Before(s.ExpiresAt)
}

// RemoteFlowState estado derivado del flujo remoto por factura.
type RemoteFlowState string

const (
	RemoteFlowNone             RemoteFlowState = "none"
	RemoteFlowStarted          RemoteFlowState = "started"
	RemoteFlowCallbackReceived RemoteFlowState = "callback_received"
	RemoteFlowSigned           RemoteFlowState = "signed"
	RemoteFlowError            RemoteFlowState = "error"
)

// DeriveRemoteFlowState combina la sesión más reciente y la entrada del libro.
func DeriveRemoteFlowState(session *RemoteSession, entry *SignatureEntry) RemoteFlowState {
	if entry != nil && entry.IsSigned() {
		return RemoteFlowSigned
	}
	if session == nil {
		return RemoteFlowNone
	}
	switch session.Status {
	case RemoteSessionError:
		return RemoteFlowError
	case RemoteSessionDone:
		return RemoteFlowCallbackReceived
	case RemoteSessionCallbackOK:
		return RemoteFlowSigned
	}
	return RemoteFlowStarted
}

// SessionContext lo mínimo que la página de retorno necesita para reanudar el flujo remoto.
type SessionContext struct {
	State     string    `json:"state"`
	InvoiceID string    `json:"invoice_id"`
	CompanyID string    `json:"company_id"`
	BackURL   string    `json:"back_url"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}
