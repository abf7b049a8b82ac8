package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asquebay/canteen-orders/internal/service"
)

// ChangeChannel — канал NOTIFY, в который триггер таблицы orders пишет пустое сообщение
const ChangeChannel = "orders_changed"

// Subscribe держит отдельное соединение в режиме LISTEN и вызывает onChange на каждое уведомление,
// в том числе вызванное записями этого же процесса
// при обрыве соединение восстанавливается с экспоненциальной задержкой, после чего onChange
// вызывается принудительно, чтобы покрыть пропущенные уведомления
func (r *OrderRepository) Subscribe(ctx context.Context, onChange func()) (service.Subscription, error) {
	const op = "repository.postgres.order.Subscribe"

	ctx, cancel := context.WithCancel(ctx)
	conn, err := r.listen(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	sub := &listenSubscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		r.feed(ctx, conn, onChange)
	}()

	r.log.Info("listening for order changes", slog.String("channel", ChangeChannel))
	return sub, nil
}

func (r *OrderRepository) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ChangeChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, err
	}
	return conn, nil
}

func (r *OrderRepository) feed(ctx context.Context, conn *pgxpool.Conn, onChange func()) {
	log := r.log.With(slog.String("op", "repository.postgres.order.feed"))

	for {
		err := wait(ctx, conn, onChange)
		unlisten(conn)
		if ctx.Err() != nil {
			return
		}
		log.Warn("change feed lost, live updates degraded until reconnect", slog.String("error", err.Error()))

		conn, err = r.reconnect(ctx, log)
		if err != nil {
			return
		}
		log.Info("change feed restored")
		onChange()
	}
}

func wait(ctx context.Context, conn *pgxpool.Conn, onChange func()) error {
	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return err
		}
		onChange()
	}
}

func (r *OrderRepository) reconnect(ctx context.Context, log *slog.Logger) (*pgxpool.Conn, error) {
	var conn *pgxpool.Conn

	eb := backoff.NewExponentialBackOff()
	// пытаемся, пока жив контекст подписки
	eb.MaxElapsedTime = 0

	err := backoff.RetryNotify(
		func() error {
			c, err := r.listen(ctx)
			if err != nil {
				return err
			}
			conn = c
			return nil
		},
		backoff.WithContext(eb, ctx),
		func(err error, next time.Duration) {
			log.Warn("listen reconnect failed", slog.String("error", err.Error()), slog.Duration("retry_in", next))
		},
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// unlisten возвращает соединение в пул; оборванное соединение пул уничтожит сам
func unlisten(conn *pgxpool.Conn) {
	if !conn.Conn().IsClosed() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, _ = conn.Exec(ctx, "UNLISTEN *")
		cancel()
	}
	conn.Release()
}

type listenSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *listenSubscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}
