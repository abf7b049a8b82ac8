package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asquebay/canteen-orders/internal/config"
	"github.com/asquebay/canteen-orders/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, model.ErrNotFound},
		{"check violation", &pgconn.PgError{Code: "23514"}, model.ErrRejected},
		{"bad numeric", &pgconn.PgError{Code: "22003"}, model.ErrRejected},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, model.ErrTransport},
		{"network", errors.New("connection refused"), model.ErrTransport},
		{"already classified", model.ErrNotFound, model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}
	assert.NoError(t, classify(nil))
}

func TestMigrationURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/orders", migrationURL("postgres://u:p@db:5432/orders"))
	assert.Equal(t, "pgx5://db/orders", migrationURL("postgresql://db/orders"))
	assert.Equal(t, "pgx5://db/orders", migrationURL("pgx5://db/orders"))
}

// интеграционные тесты запускаются только при заданной CANTEEN_TEST_DATABASE_URL
func integrationRepo(t *testing.T) *OrderRepository {
	t.Helper()
	url := os.Getenv("CANTEEN_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CANTEEN_TEST_DATABASE_URL is not set")
	}

	log := slog.New(discardHandler)
	require.NoError(t, Migrate(url, log))

	ctx := context.Background()
	pool, err := New(ctx, config.Postgres{URL: url, MaxConns: 4, ConnectTimeout: 5 * time.Second}, log)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, "TRUNCATE orders RESTART IDENTITY")
	require.NoError(t, err)

	return NewOrderRepository(pool, log)
}

func TestOrderRepositoryIntegration(t *testing.T) {
	repo := integrationRepo(t)
	ctx := context.Background()

	var changes atomic.Int32
	sub, err := repo.Subscribe(ctx, func() { changes.Add(1) })
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	stored, err := repo.Insert(ctx, model.Order{
		StudentName: "Asha",
		StudentID:   "S1",
		Items:       []model.LineItem{{ID: 1, Quantity: 2}},
		Total:       decimal.RequireFromString("100.00"),
		Status:      model.StatusPending,
	})
	require.NoError(t, err)
	assert.NotZero(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())

	require.NoError(t, repo.UpdateStatus(ctx, stored.ID, model.StatusReady, time.Now().UTC()))

	orders, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, model.StatusReady, orders[0].Status)
	assert.True(t, orders[0].Total.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, stored.Items, orders[0].Items)

	assert.Eventually(t, func() bool { return changes.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, repo.Delete(ctx, stored.ID))
	assert.ErrorIs(t, repo.Delete(ctx, stored.ID), model.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, stored.ID, model.StatusReady, time.Now()), model.ErrNotFound)
}

func TestInsertRejectsNegativeTotalIntegration(t *testing.T) {
	repo := integrationRepo(t)

	_, err := repo.Insert(context.Background(), model.Order{
		StudentName: "Asha",
		StudentID:   "S1",
		Items:       []model.LineItem{{ID: 1, Quantity: 1}},
		Total:       decimal.NewFromInt(-1),
		Status:      model.StatusPending,
	})
	assert.ErrorIs(t, err, model.ErrRejected)
}

func TestUpdateStatusClampsToCreatedAtIntegration(t *testing.T) {
	repo := integrationRepo(t)
	ctx := context.Background()

	stored, err := repo.Insert(ctx, model.Order{
		StudentName: "Asha",
		StudentID:   "S1",
		Items:       []model.LineItem{{ID: 1, Quantity: 1}},
		Total:       decimal.NewFromInt(50),
		Status:      model.StatusPending,
	})
	require.NoError(t, err)

	// часы клиента отстают от сервера на час
	require.NoError(t, repo.UpdateStatus(ctx, stored.ID, model.StatusReady, stored.CreatedAt.Add(-time.Hour)))

	orders, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].UpdatedAt.Equal(stored.CreatedAt))
}
