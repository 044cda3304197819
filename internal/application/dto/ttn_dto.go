package dto

import "time"

// ScheduleRequest body opcional para POST /api/invoices/:id/ttn/schedule.
type ScheduleRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Environment string     `json:"environment,omitempty"`
}

// SubmitRequest body opcional para POST /api/invoices/:id/ttn.
type SubmitRequest struct {
	Environment string `json:"environment,omitempty"`
}

// SubmitResponse resultado de saveEfact.
type SubmitResponse struct {
	OK          bool   `json:"ok"`
	InvoiceID   string `json:"invoice_id"`
	TTNStatus   string `json:"ttn_status"`
	IDSaveEfact string `json:"id_save_efact,omitempty"`
	Signed      bool   `json:"signed"`
	Error       string `json:"error,omitempty"`
}

// ScheduleResponse envío programado.
type ScheduleResponse struct {
	OK          bool      `json:"ok"`
	InvoiceID   string    `json:"invoice_id"`
	TTNStatus   string    `json:"ttn_status"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// CancelResponse envío programado cancelado.
type CancelResponse struct {
	OK        bool   `json:"ok"`
	InvoiceID string `json:"invoice_id"`
	TTNStatus string `json:"ttn_status"`
	Canceled  int64  `json:"canceled"`
}

// TTNStatusResponse resultado de consultEfact. Mode = "no_webservice" sin credenciales.
type TTNStatusResponse struct {
	OK           bool   `json:"ok"`
	Mode         string `json:"mode,omitempty"`
	InvoiceID    string `json:"invoice_id,omitempty"`
	TTNStatus    string `json:"ttn_status,omitempty"`
	Etat         string `json:"etat,omitempty"`
	GeneratedRef string `json:"generated_ref,omitempty"`
	Message      string `json:"message,omitempty"`
}
