// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ganaxdar/autorifa/internal/config"
	"github.com/ganaxdar/autorifa/internal/database"
	"github.com/ganaxdar/autorifa/internal/handler"
	"github.com/ganaxdar/autorifa/internal/notify"
	"github.com/ganaxdar/autorifa/internal/repository"
	"github.com/ganaxdar/autorifa/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	ctx := context.Background()

	// ── 1. Configuration and logging ──────────────────────────────────────
	_ = godotenv.Load() // .env is optional
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// ── 2. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("schema", zap.Error(err))
	}
	logger.Info("connected to postgres", zap.String("db", cfg.Database.Name))

	// ── 3. Wire up layers ─────────────────────────────────────────────────
	raffleRepo := repository.NewRaffleRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	winnerRepo := repository.NewWinnerRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)

	mailer := notify.NewSMTPMailer(cfg.SMTP)
	dispatcher := notify.NewDispatcher(mailer, cfg.SMTP.AdminEmails, logger)

	raffleSvc := service.NewRaffleService(raffleRepo, ticketRepo, winnerRepo, dispatcher, logger)
	authSvc := service.NewAuthService(adminRepo, cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiresIn)*time.Second, logger)
	if err := authSvc.Bootstrap(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		logger.Fatal("bootstrap admin", zap.Error(err))
	}

	raffleHandler := handler.NewRaffleHandler(raffleSvc, logger)
	adminHandler := handler.NewAdminHandler(raffleSvc, authSvc, logger)

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.AccessLog(logger))
	r.Use(handler.CORS)

	r.Get("/health", handler.HealthCheck)

	r.Post("/auth/login", adminHandler.Login)

	r.Route("/raffles", func(r chi.Router) {
		r.Get("/active", raffleHandler.ListActive)
		r.Get("/{id}", raffleHandler.GetRaffle)
		r.Post("/purchase", raffleHandler.Purchase)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(handler.AdminOnly(authSvc))
		r.Get("/tickets/{ticketID}", adminHandler.GetTicket)
		r.Put("/tickets/{ticketID}/confirm", adminHandler.ConfirmPayment)
		r.Put("/tickets/{ticketID}/reject", adminHandler.RejectPayment)
		r.Post("/raffles", adminHandler.CreateRaffle)
		r.Put("/raffles/{id}/status", adminHandler.UpdateRaffleStatus)
		r.Get("/raffles/{id}/tickets", adminHandler.ListRaffleTickets)
		r.Post("/winners", adminHandler.AssignWinner)
	})

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
