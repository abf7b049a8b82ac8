package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/asquebay/canteen-orders/internal/config"
	"github.com/asquebay/canteen-orders/internal/notify"
	"github.com/asquebay/canteen-orders/internal/realtime"
	"github.com/asquebay/canteen-orders/internal/repository/cache"
	"github.com/asquebay/canteen-orders/internal/repository/local"
	"github.com/asquebay/canteen-orders/internal/repository/postgres"
	"github.com/asquebay/canteen-orders/internal/service"
)

// App собирает хранилище заказов, распространение изменений и уведомления
// вариант хранилища выбирается один раз при создании и дальше не меняется
type App struct {
	ID      string
	Backend string
	Service *service.OrderService
	Bus     *realtime.Bus
	Emitter *notify.Emitter

	cfg        *config.Config
	log        *slog.Logger
	propagator *realtime.Propagator
	ready      *notify.ReadyWatcher
	stopReady  func()
	closers    []func()
}

// New создаёт приложение; при валидной секции postgres используется удалённое хранилище,
// иначе локальный файл
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	const op = "app.New"

	a := &App{
		ID:  uuid.NewString(),
		cfg: cfg,
		log: log,
	}
	a.log = log.With(slog.String("instance_id", a.ID))

	var (
		backend service.OrderBackend
		sources []realtime.ChangeSource
	)
	if cfg.Postgres.Valid() {
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(cfg.Postgres.ConnString(), a.log); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
		pool, err := postgres.New(ctx, cfg.Postgres, a.log)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.closers = append(a.closers, pool.Close)

		repo := postgres.NewOrderRepository(pool, a.log)
		backend = repo
		sources = append(sources, repo)
		a.Backend = "postgres"
	} else {
		repo, err := local.NewOrderRepository(cfg.LocalStore.Path, cfg.LocalStore.Key, cfg.LocalStore.LockTimeout)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		backend = repo
		sources = append(sources, repo, local.NewWatcher(repo, a.log))
		a.Backend = "local"
	}

	a.Service = service.NewOrderService(backend, cache.NewOrderCache(), a.log,
		service.WithStrictTransitions(cfg.Orders.StrictTransitions),
	)
	a.Bus = realtime.NewBus()
	a.propagator = realtime.New(a.Service, a.Bus, a.log, sources...)

	var platform notify.Platform = notify.LogPlatform{Log: a.log}
	if cfg.Notifications.Platform == "desktop" {
		platform = notify.Desktop{}
	}
	a.Emitter = notify.NewEmitter(platform, a.log,
		notify.WithIcon(cfg.Notifications.Icon),
		notify.WithFocusHook(func(tag string) {
			a.log.Info("notification activated", slog.String("tag", tag))
		}),
	)

	a.log.Info("order store initialized", slog.String("backend", a.Backend))
	return a, nil
}

// Start загружает коллекцию, подписывается на внешние изменения и включает уведомления
// ошибка первой загрузки не фатальна: сервис работает с пустой коллекцией до следующей перезагрузки
func (a *App) Start(ctx context.Context) error {
	const op = "app.App.Start"

	if err := a.Service.LoadOrders(ctx); err != nil {
		a.log.Error("failed to load orders on start", slog.String("error", err.Error()))
	}

	if err := a.propagator.Start(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if a.cfg.Notifications.Enabled {
		if _, err := a.Emitter.RequestPermission(ctx); err != nil {
			a.log.Warn("notifications unavailable", slog.String("error", err.Error()))
		}
		// наблюдатель включается после первой успешной загрузки, чтобы уже готовые заказы
		// не вызывали уведомлений, даже если загрузка при старте не удалась
		a.ready = notify.NewReadyWatcher(ctx, a.Emitter)
		a.stopReady = a.Service.SubscribeLoaded(a.ready.Observe)
	}
	return nil
}

// Close отписывается от изменений и освобождает соединения
func (a *App) Close() error {
	if a.stopReady != nil {
		a.stopReady()
		a.ready.Wait()
	}

	err := a.propagator.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}

	a.log.Info("order store closed")
	return err
}
