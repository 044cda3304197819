package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/jhoicas/facturetn-api/pkg/config"
)

// KafkaPublisher escribe cada evento en un único topic, particionado por factura.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher crea el writer. Exige al menos un broker.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: se requiere al menos un broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: topic vacío")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	raw, err := Encode(e)
	if err != nil {
		return fmt.Errorf("kafka: serializar evento: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   p.topic,
		Key:     []byte(e.InvoiceID),
		Value:   raw,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(e.Type)}},
		Time:    time.Now().UTC(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// New devuelve el publicador Kafka si hay brokers configurados, si no NoopPublisher.
func New(cfg config.KafkaConfig, log zerolog.Logger) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka deshabilitado: los eventos no se publican")
		return NoopPublisher{}, nil
	}
	p, err := NewKafkaPublisher(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, err
	}
	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("publicador Kafka listo")
	return p, nil
}
