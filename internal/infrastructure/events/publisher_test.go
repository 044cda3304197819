package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturetn-api/internal/infrastructure/events"
	"github.com/jhoicas/facturetn-api/pkg/config"
)

func TestEncode_CompletaFecha(t *testing.T) {
	raw, err := events.Encode(events.Event{Type: events.InvoiceSigned, InvoiceID: "inv-1", CompanyID: "c1",
		Payload: map[string]any{"provider": "digigo"}})
	require.NoError(t, err)

	var out events.Event
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, events.InvoiceSigned, out.Type)
	assert.Equal(t, "inv-1", out.InvoiceID)
	assert.False(t, out.OccurredAt.IsZero())
	assert.Equal(t, "digigo", out.Payload["provider"])
}

func TestEncode_RespetaFechaDada(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	raw, err := events.Encode(events.Event{Type: events.InvoiceTTNError, OccurredAt: at})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "2026-01-02T03:04:05Z")
}

func TestNew_SinBrokersEsNoop(t *testing.T) {
	p, err := events.New(config.KafkaConfig{Topic: "einvoice.events"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, events.NoopPublisher{}, p)
	assert.NoError(t, p.Publish(context.Background(), events.Event{Type: events.InvoiceSigned}))
	assert.NoError(t, p.Close())
}

func TestNewKafkaPublisher_Validaciones(t *testing.T) {
	_, err := events.NewKafkaPublisher(nil, "t")
	assert.Error(t, err)
	_, err = events.NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	p, err := events.NewKafkaPublisher([]string{"localhost:9092"}, "einvoice.events")
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
