package postgres

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate накатывает встроенные в бинарник миграции схемы
func Migrate(connString string, log *slog.Logger) error {
	const op = "repository.postgres.Migrate"

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("%s: failed to open migrations: %w", op, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrationURL(connString))
	if err != nil {
		return fmt.Errorf("%s: failed to init migrate: %w", op, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug("schema is up to date", slog.String("op", op))
			return nil
		}
		return fmt.Errorf("%s: failed to apply migrations: %w", op, err)
	}

	version, _, _ := m.Version()
	log.Info("schema migrated", slog.String("op", op), slog.Uint64("version", uint64(version)))
	return nil
}

// migrationURL переводит строку подключения на схему драйвера pgx/v5 для migrate
func migrationURL(connString string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(connString, scheme) {
			return "pgx5://" + strings.TrimPrefix(connString, scheme)
		}
	}
	return connString
}
