package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/asquebay/canteen-orders/internal/model"
)

// classify сводит ошибки драйвера к доменным
// классы SQLSTATE 22 (data exception) и 23 (integrity constraint) означают, что база отвергла данные
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrRejected), errors.Is(err, model.ErrTransport):
		return err
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%w: %w", model.ErrNotFound, err)
	case errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")):
		return fmt.Errorf("%w: %w", model.ErrRejected, err)
	default:
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
}
