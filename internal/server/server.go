// Package server exposes the operator HTTP API: job submission and
// polling, live bot screenshots, challenge intervention, and account store
// access.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/accountsmith/internal/config"
	"github.com/xkilldash9x/accountsmith/internal/coordinator"
	"github.com/xkilldash9x/accountsmith/internal/store"
)

// Server hosts the operator API over chi.
type Server struct {
	cfg      config.ServerConfig
	coord    *coordinator.Coordinator
	accounts *store.Store
	log      *zap.Logger
}

// New builds a server around a coordinator and the account store.
func New(cfg config.ServerConfig, coord *coordinator.Coordinator, accounts *store.Store, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		coord:    coord,
		accounts: accounts,
		log:      logger.Named("server"),
	}
}

// Router assembles the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/create-accounts", s.handleCreateAccounts)
		r.Get("/account-progress", s.handleAccountProgress)
		r.Post("/captcha-solved", s.handleCaptchaSolved)
		r.Post("/captcha-click", s.handleCaptchaClick)
		r.Post("/captcha-press-continue", s.handleCaptchaPressContinue)
		r.Get("/bot-screenshot/{botID}", s.handleBotScreenshot)
		r.Get("/captcha-screenshot/{botID}", s.handleCaptchaScreenshot)
		r.Get("/bot-status", s.handleBotStatus)
		r.Get("/accounts", s.handleAccounts)
		r.Get("/download-accounts", s.handleDownloadAccounts)
		r.Post("/clear-accounts", s.handleClearAccounts)
	})

	return r
}

// Start serves until the context is cancelled, then drains in-flight
// requests within the configured grace period.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Operator API listening", zap.String("addr", s.cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.log.Info("Operator API stopped")
	return nil
}
