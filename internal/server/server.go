// Package server wires the application together and runs the HTTP server.
//
// COMPOSITION ROOT:
// New is the one place that knows every concrete type:
//
//	docstore.Store → document repositories → services → handlers → chi routes
//
// Each layer only receives what it needs. The store itself is created by the
// caller (cmd/server), injected here, and closed when Run returns.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/cards/internal/auth"
	"github.com/sakif/cards/internal/config"
	"github.com/sakif/cards/internal/docstore"
	"github.com/sakif/cards/internal/handler"
	"github.com/sakif/cards/internal/middleware"
	"github.com/sakif/cards/internal/repository/document"
	"github.com/sakif/cards/internal/service"
)

// Server holds the router and the resources it owns.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	store  docstore.Store
}

// New builds the dependency graph on top of store.
func New(cfg config.Config, store docstore.Store, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}
	passwords, err := auth.NewPasswordService(cfg.Auth.BcryptCost)
	if err != nil {
		return nil, err
	}

	cardService := service.NewCardService(document.NewCardRepository(store), logger)
	userService := service.NewUserService(document.NewUserRepository(store), tokens, passwords, logger)

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}
	s.setupRoutes(
		handler.NewCardHandler(cardService, logger),
		handler.NewUserHandler(userService, logger),
		auth.Authenticate(userService, logger),
	)
	return s, nil
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes registers middleware and routes.
//
// ROUTES:
//
//	GET    /healthz          → liveness
//	POST   /users            → signup
//	POST   /users/login      → login
//	GET    /users/me         → current user            [auth]
//	DELETE /users/me/token   → logout                  [auth]
//	POST   /cards            → create card             [auth]
//	GET    /cards            → list own cards          [auth]
//	GET    /cards/{id}       → get own card            [auth]
//	PATCH  /cards/{id}       → update own card         [auth]
//	DELETE /cards/{id}       → delete own card         [auth]
//
// MIDDLEWARE ORDER:
// RequestID first so the logger can print it; Recoverer inside the logger
// so a panic is logged as the 500 it turns into.
func (s *Server) setupRoutes(cards *handler.CardHandler, users *handler.UserHandler, authenticate func(http.Handler) http.Handler) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", handler.HandleHealth)

	s.router.Route("/users", func(r chi.Router) {
		r.Post("/", users.HandleSignup)
		r.Post("/login", users.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/me", users.HandleMe)
			r.Delete("/me/token", users.HandleLogout)
		})
	})

	s.router.Route("/cards", func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/", cards.HandleCreate)
		r.Get("/", cards.HandleList)
		r.Get("/{id}", cards.HandleGet)
		r.Patch("/{id}", cards.HandleUpdate)
		r.Delete("/{id}", cards.HandleDelete)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. ctx is cancelled (SIGINT/SIGTERM via signal.NotifyContext in main)
//  2. Shutdown stops accepting connections and waits for in-flight requests,
//     at most server.shutdown_timeout
//  3. the store is closed
//
// errgroup runs the listener and the shutdown watcher side by side and
// returns the first real error of either.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("store", s.config.Store.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listening: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if closeErr := s.store.Close(closeCtx); closeErr != nil {
		s.logger.Error("closing store", slog.String("error", closeErr.Error()))
	}

	if err == nil {
		s.logger.Info("server stopped gracefully")
	}
	return err
}
