package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/asquebay/canteen-orders/internal/model"
)

// messageWriter — часть kafka.Writer, которой пользуется продюсер
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer публикует черновики заказов в топик, из которого их забирает Consumer
type Producer struct {
	writer messageWriter
	log    *slog.Logger
}

// NewProducer создает продюсер для указанного топика
func NewProducer(brokers []string, topic string, log *slog.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		log: log,
	}
}

// Publish проверяет черновик и отправляет его; возвращает ключ сообщения
func (p *Producer) Publish(ctx context.Context, draft model.OrderDraft) (string, error) {
	const op = "transport.kafka.Producer.Publish"

	if err := draft.Validate(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	value, err := json.Marshal(draft)
	if err != nil {
		return "", fmt.Errorf("%s: failed to encode draft: %w", op, err)
	}

	key := uuid.NewString()
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, model.ErrTransport, err)
	}

	p.log.Info("order draft published", slog.String("op", op), slog.String("key", key))
	return key, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
