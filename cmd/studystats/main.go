// Package main - точка входа сервиса статистики учебных групп.
//
// Сервис считает снимки статистики групп за день, неделю и месяц,
// строит лидерборды и отдаёт их каждому участнику с учётом его настроек
// приватности и списка учебных партнёров.
//
// Команды:
//   - serve   - HTTP API
//   - migrate - миграции PostgreSQL
//   - refresh - принудительный пересчёт снимка группы
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alem-hub/studygroup-stats/config"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
)

// version подставляется при сборке через -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ROOT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "studystats",
		Short:         "Study group statistics and leaderboards",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.ConfigFileEnv),
		"path to a TOML config file (env "+config.ConfigFileEnv+")")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newRefreshCmd(opts),
	)
	return root
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// loadConfig читает файл (если задан), затем переменные окружения.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.App.Version == "" {
		cfg.App.Version = version
	}
	return cfg, nil
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) (*logger.Logger, error) {
	format := cfg.Observability.LogFormat
	if format == "" {
		// JSON для production, читаемый вывод для разработки
		format = "console"
		if cfg.IsProduction() {
			format = "json"
		}
	}

	log, err := logger.New(logger.Options{
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    format,
		AddCaller: !cfg.IsProduction(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log.With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	), nil
}
