package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/alem-hub/studygroup-stats/config"
	"github.com/alem-hub/studygroup-stats/internal/infrastructure/persistence/postgres"
	httpserver "github.com/alem-hub/studygroup-stats/internal/interface/http"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
)

type serveOptions struct {
	seedPath    string
	autoMigrate bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.seedPath, "seed", "", "TOML file with groups, members and sessions (memory storage only)")
	cmd.Flags().BoolVar(&opts.autoMigrate, "migrate", false, "apply pending migrations before serving (postgres storage only)")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, opts *serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting study group stats service",
		logger.String("version", cfg.App.Version),
		logger.String("storage", string(cfg.Storage)),
		logger.String("timezone", cfg.Stats.Location.String()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩА
	// ─────────────────────────────────────────────────────────────────────────
	if opts.autoMigrate && cfg.Storage == config.StoragePostgres {
		if err := migrate(ctx, cfg, log); err != nil {
			return err
		}
	}

	st, err := openStores(ctx, cfg, opts.seedPath, log)
	if err != nil {
		return err
	}
	defer st.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := httpserver.NewServer(httpserver.Config{
		Host:           cfg.HTTP.Host,
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout.Duration,
		WriteTimeout:   cfg.HTTP.WriteTimeout.Duration,
		IdleTimeout:    cfg.HTTP.IdleTimeout.Duration,
		MaxHeaderBytes: httpserver.DefaultConfig().MaxHeaderBytes,
		APIKeyHashes:   cfg.HTTP.APIKeyHashes,
		RateLimit:      cfg.HTTP.RateLimit,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
	}, newDependencies(cfg, st, log))

	if len(cfg.HTTP.APIKeyHashes) == 0 {
		log.Warn("API key check disabled, set HTTP_API_KEY_HASHES to enable it")
	}

	errCh := server.StartAsync()
	log.Info("service is ready", logger.String("address", server.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ОЖИДАНИЕ СИГНАЛА ЗАВЕРШЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout.Duration)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Err(err))
	}
	log.Info("shutdown complete")
	return nil
}

// migrate применяет миграции PostgreSQL отдельным соединением.
func migrate(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	conn, err := postgres.Connect(ctx, cfg.Database.URL, postgres.PoolOptions{MaxConns: 2})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	migrator := postgres.NewMigrator(conn)
	applied, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	status, err := migrator.Status(ctx)
	if err != nil {
		log.Warn("failed to get migration status", logger.Err(err))
		return nil
	}
	log.Info("migrations completed", logger.Int("applied", applied), logger.Int("total", len(status)))
	return nil
}
