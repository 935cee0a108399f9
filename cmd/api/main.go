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

	"github.com/joho/godotenv"

	"github.com/tableserve/tableserve-auth/internal/config"
	"github.com/tableserve/tableserve-auth/internal/crypto"
	"github.com/tableserve/tableserve-auth/internal/handler"
	"github.com/tableserve/tableserve-auth/internal/metrics"
	"github.com/tableserve/tableserve-auth/internal/middleware"
	"github.com/tableserve/tableserve-auth/internal/repository"
	"github.com/tableserve/tableserve-auth/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	tokens, err := crypto.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	users, closeStore, err := openStore(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("credential store %s unavailable: %w", cfg.StoreDriver, err)
	}
	defer closeStore()

	m := metrics.New()
	authService := service.NewAuthService(users, crypto.NewArgon2Hasher(crypto.DefaultHashParams()), tokens,
		service.WithLogger(logger),
		service.WithStoreTimeout(cfg.StoreTimeout),
	)

	router := handler.NewRouter(handler.Routes{
		Auth:    handler.NewAuthHandler(authService, m, logger),
		User:    handler.NewUserHandler(),
		Gate:    middleware.Gate(tokens, authService, m, logger),
		Metrics: m,
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	logger.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
	return serve(srv, quit, logger)
}

// serve runs srv until it fails or a signal arrives on quit, then shuts it
// down gracefully.
func serve(srv *http.Server, quit <-chan os.Signal, logger *slog.Logger) error {
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// openStore connects the configured credential store and returns a func that releases it.
func openStore(ctx context.Context, cfg config.Config) (service.UserStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := repository.NewMongoClient(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }

		repo := repository.NewMongoUserRepository(client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("ensuring indexes: %w", err)
		}
		return repo, closeFn, nil

	case config.StoreMySQL:
		db, err := repository.NewDB(cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = db.Close() }

		repo := repository.NewMySQLUserRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("migrating schema: %w", err)
		}
		return repo, closeFn, nil

	case config.StoreMemory:
		slog.Warn("using in-memory credential store; users are lost on restart")
		return repository.NewMemoryUserRepository(), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}
