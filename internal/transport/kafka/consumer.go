package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/asquebay/canteen-orders/internal/model"
)

// OrderPlacer — это интерфейс, который абстрагирует консьюмер
// от конкретной реализации сервисного слоя
type OrderPlacer interface {
	AddOrder(ctx context.Context, draft model.OrderDraft) (model.OrderID, error)
}

// messageReader — часть kafka.Reader, которой пользуется консьюмер
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает черновики заказов, которые публикуют киоски, и оформляет их
type Consumer struct {
	reader  messageReader
	service OrderPlacer
	log     *slog.Logger
	// newBackOff задаёт паузы между повторами одного сообщения
	newBackOff func() backoff.BackOff
}

// NewConsumer создает новый экземпляр консьюмера
func NewConsumer(brokers []string, topic, groupID string, service OrderPlacer, log *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   topic,
	})

	return newConsumer(reader, service, log)
}

func newConsumer(reader messageReader, service OrderPlacer, log *slog.Logger) *Consumer {
	return &Consumer{
		reader:  reader,
		service: service,
		log:     log,
		newBackOff: func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.MaxElapsedTime = 0
			return eb
		},
	}
}

// Run запускает цикл чтения сообщений из Kafka
// эта функция блокирующая, поэтому она запускается в отдельной горутине
func (c *Consumer) Run(ctx context.Context) {
	log := c.log.With(slog.String("component", "kafka_consumer"))
	log.Info("kafka consumer started")

	for {
		// FetchMessage блокирует до тех пор, пока не придет новое сообщение или не возникнет ошибка
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			// если контекст был отменен во время ожидания, это нормальное завершение
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				log.Info("context cancelled, stopping consumer")
				return
			}
			// если ридер был закрыт, тоже выходим
			if errors.Is(err, io.EOF) {
				log.Info("kafka reader closed")
				return
			}
			log.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}

		log.Debug("received message", slog.String("topic", msg.Topic), slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset))

		// недоступность хранилища пережидаем на этом же сообщении: коммит более позднего
		// смещения подтвердил бы и его, и заказ был бы потерян
		err = backoff.RetryNotify(func() error {
			err := c.handleMessage(ctx, msg)
			if err != nil && !errors.Is(err, model.ErrTransport) {
				return backoff.Permanent(err)
			}
			return err
		}, backoff.WithContext(c.newBackOff(), ctx), func(err error, next time.Duration) {
			log.Warn("order store unavailable, retrying message",
				slog.String("error", err.Error()),
				slog.Int64("offset", msg.Offset),
				slog.Duration("retry_in", next),
			)
		})
		if ctx.Err() != nil {
			// сообщение НЕ подтверждаем — после перезапуска Kafka отдаст его снова
			log.Info("context cancelled, stopping consumer", slog.Int64("uncommitted_offset", msg.Offset))
			return
		}
		if err != nil {
			// повтор не поможет: сообщение пропускается и подтверждается
			log.Error("failed to handle message, skipping", slog.String("error", err.Error()), slog.Int64("offset", msg.Offset))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Error("failed to commit message", slog.String("error", err.Error()))
		}
	}
}

// handleMessage парсит и обрабатывает одно сообщение
// невалидные сообщения пропускаются, ошибка возвращается только если обработку стоит повторить
func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	var draft model.OrderDraft

	if err := json.Unmarshal(msg.Value, &draft); err != nil {
		c.log.Warn("failed to unmarshal message, skipping", slog.String("error", err.Error()))
		return nil // перечитывать это сообщение бессмысленно
	}

	id, err := c.service.AddOrder(ctx, draft)
	if err != nil {
		if errors.Is(err, model.ErrRejected) {
			c.log.Warn("order draft rejected, skipping",
				slog.String("error", err.Error()),
				slog.String("student_id", draft.StudentID),
			)
			return nil
		}
		return err
	}

	c.log.Info("order placed from kafka", slog.Int64("order_id", int64(id)), slog.String("key", string(msg.Key)))
	return nil
}

// Close — graceful shutdown консьюмера
func (c *Consumer) Close() error {
	c.log.Info("closing kafka consumer")
	return c.reader.Close()
}
