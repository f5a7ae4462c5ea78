package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/studygroup-stats/config"
	"github.com/alem-hub/studygroup-stats/internal/application/command"
	"github.com/alem-hub/studygroup-stats/internal/application/query"
	"github.com/alem-hub/studygroup-stats/internal/application/saga"
	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
	"github.com/alem-hub/studygroup-stats/internal/domain/stats"
	"github.com/alem-hub/studygroup-stats/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/studygroup-stats/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/studygroup-stats/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/studygroup-stats/internal/infrastructure/service"
	httpserver "github.com/alem-hub/studygroup-stats/internal/interface/http"
	"github.com/alem-hub/studygroup-stats/internal/interface/http/handlers"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
	"github.com/alem-hub/studygroup-stats/pkg/retry"
	"github.com/alem-hub/studygroup-stats/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORES
// ══════════════════════════════════════════════════════════════════════════════

// stores - хранилища, выбранные конфигурацией.
type stores struct {
	members   group.MembershipSource
	sessions  group.SessionSource
	profiles  group.ProfileSource
	policies  privacy.PolicyRepository
	snapshots stats.SnapshotRepository

	// health - проверки для /health; по одной на внешнее хранилище.
	health map[string]handlers.DetailedCheckFunc

	closers []func()
}

// Close закрывает соединения в обратном порядке.
func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores подключает хранилища. seedPath используется только для memory.
func openStores(ctx context.Context, cfg *config.Config, seedPath string, log *logger.Logger) (*stores, error) {
	st := &stores{health: make(map[string]handlers.DetailedCheckFunc)}

	switch cfg.Storage {
	case config.StoragePostgres:
		log.Info("connecting to database...")
		conn, err := postgres.Connect(ctx, cfg.Database.URL, poolOptions(cfg.Database))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		st.closers = append(st.closers, func() {
			log.Info("closing database connection...")
			conn.Close()
		})
		log.Info("database connection established")

		dir := postgres.NewDirectoryRepository(conn)
		st.members, st.sessions, st.profiles = dir, dir, dir
		st.policies = postgres.NewSharePolicyRepository(conn, time.Now)
		st.snapshots = postgres.NewSnapshotRepository(conn)
		st.health["postgres"] = poolCheck(conn)

	default:
		dir := memory.NewDirectory()
		if seedPath != "" {
			n, err := loadSeed(seedPath, dir)
			if err != nil {
				return nil, err
			}
			log.Info("memory directory seeded", logger.String("file", seedPath), logger.Int("groups", n))
		}
		log.Warn("using in-memory storage, data is lost on restart")
		st.members, st.sessions, st.profiles = dir, dir, dir
		st.policies = memory.NewPolicyStore(time.Now)
		st.snapshots = memory.NewSnapshotStore()
	}

	// ─── Redis (опционально) ────────────────────────────────────────────────
	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		cache, err := redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout.Duration,
			ReadTimeout:  cfg.Redis.ReadTimeout.Duration,
			WriteTimeout: cfg.Redis.WriteTimeout.Duration,
		})
		if err != nil {
			// Без кеша сервис работает, только медленнее.
			log.Warn("Redis unavailable, snapshot cache disabled", logger.Err(err))
		} else {
			st.closers = append(st.closers, func() {
				log.Info("closing Redis connection...")
				_ = cache.Close()
			})
			st.snapshots = redis.NewSnapshotCache(cache, st.snapshots, log)
			st.health["redis"] = plainCheck(handlers.PingCheck(cache))
			log.Info("Redis connection established")
		}
	}

	// Внешние источники данных оборачиваются повторами и circuit breaker.
	guarded := service.NewGuardedSources(st.members, st.sessions, st.profiles, log)
	st.members, st.sessions, st.profiles = guarded, guarded, guarded

	return st, nil
}

// poolOptions накладывает заданные в конфигурации значения на настройки пула
// по умолчанию. Нулевые значения оставляют умолчания.
func poolOptions(cfg config.DatabaseConfig) postgres.PoolOptions {
	opts := postgres.DefaultPoolOptions()
	if cfg.MaxConns > 0 {
		opts.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		opts.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		opts.MaxConnLifetime = cfg.ConnMaxLifetime.Duration
	}
	if cfg.ConnMaxIdleTime.Duration > 0 {
		opts.MaxConnIdleTime = cfg.ConnMaxIdleTime.Duration
	}
	return opts
}

// poolHealth - то, что poolCheck требует от соединения с БД.
type poolHealth interface {
	Health(ctx context.Context) postgres.HealthStatus
}

// poolCheck отдаёт в /health статистику пула вместе с результатом ping.
func poolCheck(conn poolHealth) handlers.DetailedCheckFunc {
	return func(ctx context.Context) (any, error) {
		h := conn.Health(ctx)
		if !h.Healthy {
			return h, errors.New(h.Error)
		}
		return h, nil
	}
}

func plainCheck(check handlers.HealthCheckFunc) handlers.DetailedCheckFunc {
	return func(ctx context.Context) (any, error) {
		return nil, check(ctx)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION
// ══════════════════════════════════════════════════════════════════════════════

// newProvider создаёт SnapshotProvider по конфигурации.
func newProvider(cfg *config.Config, st *stores, log *logger.Logger) *query.SnapshotProvider {
	return query.NewSnapshotProvider(
		st.members, st.sessions, st.profiles, st.snapshots,
		service.NewIDGenerator(),
		query.ProviderConfig{
			MaxAge:          cfg.Stats.MaxAge.Duration,
			LeaderboardSize: cfg.Stats.LeaderboardSize,
			Calendar:        timeutil.NewCalendar(cfg.Stats.Location),
			Now:             time.Now,
		},
		log,
	)
}

// newDependencies собирает обработчики команд и запросов для HTTP слоя.
func newDependencies(cfg *config.Config, st *stores, log *logger.Logger) httpserver.Dependencies {
	provider := newProvider(cfg, st, log)
	filter := privacy.NewFilter(st.policies, service.NewProfileIdentityResolver(st.profiles))
	acceptance := saga.NewPartnershipAcceptanceSaga(st.policies, retry.StoreRetrier(), log, time.Now)

	health := handlers.NewHealthChecker(cfg.App.Version)
	for name, check := range st.health {
		health.AddDetailedCheck(name, check)
	}

	return httpserver.Dependencies{
		GetSharePolicy:     query.NewGetSharePolicyHandler(st.members, st.policies),
		GetDashboard:       query.NewGetDashboardHandler(st.members, provider, filter, log),
		GetLeaderboards:    query.NewGetLeaderboardsHandler(st.members, provider, filter),
		GetPartners:        query.NewGetPartnersHandler(st.members, st.policies),
		UpdateSharePolicy:  command.NewUpdateSharePolicyHandler(st.members, st.policies, log, time.Now),
		RequestPartnership: command.NewRequestPartnershipHandler(st.members, st.policies, log, time.Now),
		RespondPartnership: command.NewRespondPartnershipHandler(st.members, st.policies, acceptance, log, time.Now),
		Health:             health,
		Logger:             log,
	}
}
