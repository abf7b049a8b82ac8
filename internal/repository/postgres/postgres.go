package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asquebay/canteen-orders/internal/config"
)

// New создает и возвращает новый пул соединений с PostgreSQL
// пока база поднимается, подключение повторяется с экспоненциальной задержкой
func New(ctx context.Context, cfg config.Postgres, log *slog.Logger) (*pgxpool.Pool, error) {
	const op = "repository.postgres.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse pgx config: %w", op, err)
	}

	// настройка пула соединений
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create connection pool: %w", op, err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = cfg.ConnectTimeout

	ping := func() error { return dbpool.Ping(ctx) }
	notify := func(err error, next time.Duration) {
		log.Warn("database is not reachable yet",
			slog.String("op", op),
			slog.String("error", err.Error()),
			slog.Duration("retry_in", next),
		)
	}

	// проверяем, что соединение установлено
	if err := backoff.RetryNotify(ping, backoff.WithContext(eb, ctx), notify); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return dbpool, nil
}
