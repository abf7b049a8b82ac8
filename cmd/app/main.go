package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/asquebay/canteen-orders/internal/app"
	"github.com/asquebay/canteen-orders/internal/config"
	"github.com/asquebay/canteen-orders/internal/lib/logger"
	httptransport "github.com/asquebay/canteen-orders/internal/transport/http"
	"github.com/asquebay/canteen-orders/internal/transport/kafka"
)

func main() {
	// 0. Переменные из .env, если файл есть; уже заданные в окружении не перетираются
	_ = godotenv.Load()

	// 1. Инициализация конфигурации
	cfg := config.MustLoad(os.Getenv("CONFIG_PATH"))

	// 2. Инициализация логгера
	log := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	log.Info("starting canteen-orders", slog.String("env", cfg.Env), slog.String("log_level", cfg.Logger.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Хранилище заказов, распространение изменений и уведомления
	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to init order store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := application.Start(ctx); err != nil {
		log.Error("failed to start order store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. HTTP API и websocket
	hub := httptransport.NewHub(log)
	cancelHub := application.Bus.Subscribe(hub.Broadcast)
	defer cancelHub()

	handler := httptransport.NewHandler(application.Service, application.Emitter, hub, log)
	httpServer := httptransport.NewServer(cfg.HTTPServer, handler)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", slog.String("address", cfg.HTTPServer.Address))
		if err := httpServer.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 5. Приём заказов из Kafka (необязательно)
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, application.Service, log)
		g.Go(func() error {
			consumer.Run(gctx)
			return nil
		})
	}

	// 6. Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down application")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown failed", slog.String("error", err.Error()))
		}
		if consumer != nil {
			if err := consumer.Close(); err != nil {
				log.Error("error closing kafka consumer", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("application failed", slog.String("error", err.Error()))
	}

	if err := application.Close(); err != nil {
		log.Error("error closing order store", slog.String("error", err.Error()))
	}
	log.Info("application stopped")
}
