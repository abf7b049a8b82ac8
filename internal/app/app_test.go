package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asquebay/canteen-orders/internal/config"
	"github.com/asquebay/canteen-orders/internal/model"
)

func localConfig(path string) *config.Config {
	return &config.Config{
		LocalStore:    config.LocalStore{Path: path, Key: "canteenOrders", LockTimeout: time.Second},
		Notifications: config.Notifications{Enabled: true, Platform: "log"},
	}
}

func TestLocalBackendWhenPostgresIsNotConfigured(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, localConfig(filepath.Join(t.TempDir(), "orders.db")), slog.New(discardHandler))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, "local", a.Backend)
	assert.NotEmpty(t, a.ID)
}

func TestAppsOnSharedFileConvergeAndNotify(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "orders.db")
	log := slog.New(discardHandler)

	student, err := New(ctx, localConfig(path), log)
	require.NoError(t, err)
	require.NoError(t, student.Start(ctx))
	t.Cleanup(func() { _ = student.Close() })

	canteen, err := New(ctx, localConfig(path), log)
	require.NoError(t, err)
	require.NoError(t, canteen.Start(ctx))
	t.Cleanup(func() { _ = canteen.Close() })

	id, err := student.Service.AddOrder(ctx, model.OrderDraft{
		StudentName: "Asha",
		StudentID:   "S1",
		Items:       []model.LineItem{{ID: 1, Quantity: 2}},
		Total:       decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := canteen.Service.GetOrderByID(id)
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, canteen.Service.UpdateOrderStatus(ctx, id, model.StatusReady))

	// студент узнаёт о готовности через наблюдение за файлом и получает уведомление
	require.Eventually(t, func() bool {
		return len(student.Emitter.Active()) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, id.Tag(), student.Emitter.Active()[0].Tag)
}
