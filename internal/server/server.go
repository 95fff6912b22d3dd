// Package server wires the HTTP stack: it is the composition root where the
// database, services, and handlers are assembled and mapped onto routes.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/newronx/waitlist/internal/auth"
	"github.com/newronx/waitlist/internal/handler"
	"github.com/newronx/waitlist/internal/middleware"
	"github.com/newronx/waitlist/internal/notify"
	sqliteRepo "github.com/newronx/waitlist/internal/repository/sqlite"
	"github.com/newronx/waitlist/internal/service"
)

// Config holds server configuration, loaded from the environment in main.
type Config struct {
	Port        int
	DBPath      string
	FrontendURL string

	JWTSecret string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	SMTP notify.SMTPConfig
}

// Server owns the router and the database connection; the connection is
// closed during graceful shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the dependency chain: database, referral ledger, services,
// handlers, routes. Each layer receives only the interfaces it needs; the
// handlers never touch the database and the services never touch HTTP.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	if s.config.FrontendURL != "" {
		s.router.Use(middleware.CORS(s.config.FrontendURL))
	}

	// Services. The ledger is shared: the signup service uses it for code
	// generation and attribution, the waitlist service for code validation.
	ledger := service.NewReferralLedger(s.db, s.logger)

	var notifier service.Notifier = notify.Nop{}
	if s.config.SMTP.Enabled() {
		notifier = notify.NewMailer(s.config.SMTP, s.logger)
	} else {
		s.logger.Warn("SMTP not configured, welcome emails are disabled")
	}

	signupService := service.NewSignupService(s.db, ledger, notifier, s.logger)
	waitlistService := service.NewWaitlistService(s.db, s.db, ledger, s.logger)

	waitlistHandler := handler.NewWaitlistHandler(signupService, waitlistService, s.logger)
	referralHandler := handler.NewReferralHandler(waitlistService, s.logger)
	storyHandler := handler.NewStoryHandler(waitlistService, s.logger)

	// Destructive and moderation endpoints require a session when auth is
	// configured; without a JWT secret everything stays open (dev mode).
	var tokens *auth.TokenService
	requireAuth := func(next http.Handler) http.Handler { return next }
	if s.config.JWTSecret != "" {
		var err error
		tokens, err = auth.NewTokenService(s.config.JWTSecret)
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}
		requireAuth = auth.RequireAuth(tokens)
	}

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/waitlist", waitlistHandler.HandleSignup)
		r.Get("/waitlist", waitlistHandler.HandleList)
		r.Get("/waitlist/stats", waitlistHandler.HandleStats)
		r.Get("/waitlist/email/{email}", waitlistHandler.HandleCheckEmail)
		r.Put("/waitlist/phone", waitlistHandler.HandleUpdatePhoneByEmail)
		r.Get("/waitlist/{id}", waitlistHandler.HandleGetByID)
		r.Put("/waitlist/{id}/phone", waitlistHandler.HandleUpdatePhone)
		r.With(requireAuth).Delete("/waitlist/{id}", waitlistHandler.HandleRemove)

		r.Get("/referrals/validate/{code}", referralHandler.HandleValidate)
		r.Get("/referrals/code/{email}", referralHandler.HandleCodeOf)
		r.Get("/referrals/stats", referralHandler.HandleStats)
		r.Get("/referrals/referred-by/{id}", referralHandler.HandleReferredBy)

		r.Post("/stories", storyHandler.HandleSubmit)
		r.Get("/stories", storyHandler.HandleList)
		r.With(requireAuth).Put("/stories/{id}/status", storyHandler.HandleModerate)
	})

	// OAuth routes need a JWT secret and Google credentials; without them the
	// waitlist API still works, only login is off.
	if tokens == nil || s.config.GoogleClientID == "" {
		s.logger.Warn("Google OAuth not configured, /auth routes are disabled")
		return nil
	}

	google := auth.NewGoogleProvider(
		s.config.GoogleClientID,
		s.config.GoogleClientSecret,
		s.config.GoogleCallbackURL,
	)

	secureCookies := strings.HasPrefix(s.config.FrontendURL, "https://")
	authHandler := handler.NewAuthHandler(
		google, tokens, signupService, waitlistService,
		s.config.FrontendURL, secureCookies, s.logger,
	)

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.HandleGoogleLogin)
		r.Get("/google/callback", authHandler.HandleGoogleCallback)
		r.With(auth.OptionalAuth(tokens)).Get("/status", authHandler.HandleStatus)
		r.Post("/logout", authHandler.HandleLogout)
	})

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests, close
// the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
