package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loopline-ai/loopline/engine/llm"
	"github.com/loopline-ai/loopline/pkg/config"
	"github.com/loopline-ai/loopline/pkg/logger"
)

type Server struct {
	cfg *config.Config
	log logger.Logger
}

func NewServer(cfg *config.Config, log logger.Logger) *Server {
	return &Server{cfg: cfg, log: log}
}

// Run wires the service, serves until the context is canceled or a
// termination signal arrives, then drains in-flight requests within the
// configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	ctx = logger.ContextWithLogger(ctx, s.log)
	svc, err := llm.NewService(ctx, s.cfg)
	if err != nil {
		return fmt.Errorf("failed to build llm service: %w", err)
	}
	defer func() {
		if closeErr := svc.Close(); closeErr != nil {
			s.log.Error("Error closing llm service", "error", closeErr)
		}
	}()

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(svc, s.log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", "address", fmt.Sprintf("http://%s", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.log.Debug("Context canceled, initiating graceful shutdown")
	case sig := <-quit:
		s.log.Debug("Received shutdown signal, initiating graceful shutdown", "signal", sig.String())
	}

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("Server shutdown completed")
	return nil
}
