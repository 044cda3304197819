package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de documento comercial.
const (
	DocumentTypeInvoice    = "facture"
	DocumentTypeCreditNote = "avoir"
	DocumentTypeQuote      = "devis" // nunca se envía a TTN
)

// Estado de firma de la factura.
const (
	SignatureStatusNone    = "none"
	SignatureStatusPending = "pending"
	SignatureStatusSigned  = "signed"
)

// Estados frente a TTN (authority_status).
const (
	TTNStatusDraft     = "draft"
	TTNStatusNotSent   = "not_sent"
	TTNStatusScheduled = "scheduled"
	TTNStatusSubmitted = "submitted"
	TTNStatusError     = "error"
	TTNStatusCanceled  = "canceled"
	TTNStatusAccepted  = "accepted" // resultado de consultEfact
	TTNStatusRejected  = "rejected" // resultado de consultEfact
)

// Estado de la factura en el ciclo interno.
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusValidated = "validated"
)

// Declaración manual (fuera de TTN).
const (
	DeclarationNone   = "none"
	DeclarationManual = "manual"
)

// IsEditableTTNStatus informa si el estado TTN permite modificar la factura.
func IsEditableTTNStatus(s string) bool {
	switch s {
	case "", TTNStatusDraft, TTNStatusNotSent, TTNStatusError:
		return true
	}
	return false
}

// Invoice cabecera de una factura tunecina con sus estados de firma y TTN.
type Invoice struct {
	ID            string
	CompanyID     string
	DocumentType  string
	InvoiceNumber string
	IssueDate     *time.Time
	DueDate       *time.Time
	Currency      string

	CustomerName       string
	CustomerTaxID      string
	CustomerAddress    string
	CustomerCity       string
	CustomerPostalCode string
	CustomerCountry    string
	Notes              string

	SubtotalHT   decimal.Decimal
	TotalVAT     decimal.Decimal
	StampEnabled bool
	StampAmount  decimal.Decimal
	TotalTTC     decimal.Decimal

	Status          string
	ValidatedAt     *time.Time
	SignatureStatus string

	TTNStatus       string
	TTNSaveID       string
	TTNGeneratedRef string
	TTNLastError    string
	TTNScheduledAt  *time.Time
	TTNSubmittedAt  *time.Time
	TTNValidatedAt  *time.Time

	DeclarationStatus string
	DeclarationRef    string
	DeclarationNote   string
	DeclaredAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLocked: firmada, o fuera del conjunto editable frente a TTN.
func (i *Invoice) IsLocked() bool {
	return i.SignatureStatus == SignatureStatusSigned || !IsEditableTTNStatus(i.TTNStatus)
}

// IsQuote informa si el documento es un devis.
func (i *Invoice) IsQuote() bool {
	return i.DocumentType == DocumentTypeQuote
}

// CurrencyOrDefault devuelve la divisa o TND si está vacía.
func (i *Invoice) CurrencyOrDefault() string {
	if i.Currency == "" {
		return "TND"
	}
	return i.Currency
}
