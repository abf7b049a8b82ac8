package http

import (
	"context"
	"net/http"

	"github.com/asquebay/canteen-orders/internal/config"
)

// Server — это обёртка над стандартным http.Server
type Server struct {
	httpServer *http.Server
}

// NewServer создает и конфигурирует экземпляр Server
func NewServer(cfg config.HTTPServer, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Address,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Run запускает HTTP-сервер
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown останавливает сервер
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
