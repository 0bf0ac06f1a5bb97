// Command server runs the splitbook HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/splitbook/splitbook/internal/api"
	"github.com/splitbook/splitbook/internal/auth"
	"github.com/splitbook/splitbook/internal/changefeed"
	"github.com/splitbook/splitbook/internal/config"
	"github.com/splitbook/splitbook/internal/service"
	"github.com/splitbook/splitbook/internal/storage"
	"github.com/splitbook/splitbook/internal/storage/postgres"
	"github.com/splitbook/splitbook/internal/storage/sqlite"
	"github.com/splitbook/splitbook/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, feed, err := buildBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	defer feed.Close()

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenDuration)
	server := api.NewServer(
		auth.NewPasswordAuthenticator(store),
		jwtManager,
		service.NewGroupService(store, feed),
		service.NewReconcileService(store, feed),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "port", cfg.Port, "driver", cfg.DBDriver)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// buildBackends selects the store and change feed from configuration.
// Postgres deployments get cross-instance notifications through
// LISTEN/NOTIFY unless Redis is configured explicitly; sqlite defaults
// to the in-process feed.
func buildBackends(ctx context.Context, cfg *config.Config) (storage.Store, changefeed.Feed, error) {
	var store storage.Store
	var pgStore *postgres.PostgresStore
	var err error

	switch cfg.DBDriver {
	case "postgres":
		pgStore, err = postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store = pgStore
	default:
		store, err = sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
	}

	var feed changefeed.Feed
	switch {
	case cfg.RedisURL != "":
		feed, err = changefeed.NewRedis(cfg.RedisURL)
	case pgStore != nil:
		feed, err = changefeed.NewPostgres(ctx, pgStore.Pool(), cfg.DatabaseURL)
	default:
		feed = changefeed.NewMemory()
	}
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, feed, nil
}
