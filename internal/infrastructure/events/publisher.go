// Package events publica los eventos de dominio de la facturación (firma y envío a TTN).
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Tipos de evento.
const (
	InvoiceSigned       = "invoice.signed"
	InvoiceTTNSubmitted = "invoice.ttn.submitted"
	InvoiceTTNError     = "invoice.ttn.error"
	InvoiceTTNScheduled = "invoice.ttn.scheduled"
	InvoiceTTNCanceled  = "invoice.ttn.canceled"
	InvoiceTTNStatus    = "invoice.ttn.status"
)

// Event evento de una factura. La clave de partición es InvoiceID.
type Event struct {
	Type       string         `json:"type"`
	InvoiceID  string         `json:"invoice_id"`
	CompanyID  string         `json:"company_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Publisher destino de los eventos.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Encode serializa el evento; OccurredAt vacío se completa con la hora actual.
func Encode(e Event) ([]byte, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return json.Marshal(e)
}

// NoopPublisher descarta los eventos (Kafka deshabilitado).
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
