package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/config"
	"expense-ledger/internal/events"
	"expense-ledger/internal/handlers"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	// PORT and DB_PATH are kept for container setups.
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		cfg.Database.DSN = path
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if secret, err = auth.GenerateSessionToken(); err != nil {
			return err
		}
		slog.Warn("LEDGER_AUTH_JWT_SECRET not set, credentials will not survive a restart")
	}
	issuer, err := auth.NewIssuer(secret)
	if err != nil {
		return err
	}

	var providers []auth.Provider
	if cfg.Google.ClientID != "" {
		providers = append(providers, auth.NewGoogle(cfg.Google.ClientID))
	}
	var github *auth.GitHub
	if cfg.GitHub.ClientID != "" {
		github = auth.NewGitHub(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret)
		providers = append(providers, github)
	}
	authSvc := auth.NewService(store, issuer, providers...)

	if err := seedAdmin(ctx, store, authSvc, os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD")); err != nil {
		return err
	}

	publisher, err := events.New(cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err != nil {
		return err
	}
	defer publisher.Close()

	h := handlers.NewHandlers(store, authSvc, github, publisher)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           setupRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go cleanSessions(ctx, store, time.Hour)

	errc := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Server.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func setupRouter(h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/", h.Router())
	return r
}

// seedAdmin creates the first account on an empty database.
func seedAdmin(ctx context.Context, store storage.Store, authSvc *auth.Service, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	count, err := store.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	u, err := authSvc.CreateAccount(ctx, email, password)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	p := models.Profile{FirstName: "Admin", Email: u.Email, CreatedAt: time.Now().UTC()}
	if err := store.PutProfile(ctx, u.ID, p); err != nil {
		return err
	}
	slog.Info("admin user created", "email", u.Email)
	return nil
}

func cleanSessions(ctx context.Context, store storage.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.CleanExpiredSessions(ctx); err != nil {
				slog.Error("clean expired sessions", "error", err)
			}
		}
	}
}
