// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/domain/leaderboard"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
	"github.com/alem-hub/studygroup-stats/internal/domain/stats"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
	"github.com/alem-hub/studygroup-stats/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT PROVIDER
// Точка входа ко всей статистике группы. На каждом чтении:
//   1. берёт сохранённый снимок;
//   2. если его нет или он старше maxAge - пересчитывает синхронно и сохраняет;
//   3. если пересчёт упал, но старый снимок есть - отдаёт старый со stale=true.
// Одновременные пересчёты одного ключа в процессе схлопываются через singleflight.
// ══════════════════════════════════════════════════════════════════════════════

// IDGenerator выдаёт идентификаторы снимков.
type IDGenerator interface {
	GenerateID() string
}

// ProviderConfig - настройки провайдера.
type ProviderConfig struct {
	// MaxAge - возраст, после которого снимок пересчитывается.
	MaxAge time.Duration

	// LeaderboardSize - длина каждого лидерборда.
	LeaderboardSize int

	// Calendar задаёт часовой пояс границ периодов. Нулевое значение - UTC.
	Calendar timeutil.Calendar

	// Now - часы; тесты подменяют.
	Now func() time.Time
}

// DefaultProviderConfig возвращает настройки по умолчанию.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		MaxAge:          stats.DefaultMaxAge,
		LeaderboardSize: leaderboard.DefaultSize,
		Calendar:        timeutil.NewCalendar(time.UTC),
		Now:             time.Now,
	}
}

// SnapshotResult - снимок и признак того, что он устарел.
type SnapshotResult struct {
	Snapshot *stats.Snapshot

	// Stale - пересчёт не удался, отдан предыдущий снимок.
	Stale bool

	// Recomputed - снимок посчитан в рамках этого запроса.
	Recomputed bool
}

// SnapshotProvider реализует кэш снимков с проверкой свежести.
type SnapshotProvider struct {
	members   group.MembershipSource
	sessions  group.SessionSource
	profiles  group.ProfileSource
	snapshots stats.SnapshotRepository
	ids       IDGenerator
	config    ProviderConfig
	log       *logger.Logger

	flight singleflight.Group
}

// NewSnapshotProvider создаёт провайдер.
func NewSnapshotProvider(
	members group.MembershipSource,
	sessions group.SessionSource,
	profiles group.ProfileSource,
	snapshots stats.SnapshotRepository,
	ids IDGenerator,
	config ProviderConfig,
	log *logger.Logger,
) *SnapshotProvider {
	def := DefaultProviderConfig()
	if config.MaxAge <= 0 {
		config.MaxAge = def.MaxAge
	}
	if config.LeaderboardSize <= 0 {
		config.LeaderboardSize = def.LeaderboardSize
	}
	if config.Now == nil {
		config.Now = def.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SnapshotProvider{
		members:   members,
		sessions:  sessions,
		profiles:  profiles,
		snapshots: snapshots,
		ids:       ids,
		config:    config,
		log:       log.With(logger.Component("snapshot_provider")),
	}
}

// Get возвращает снимок группы за период, пересчитывая его при необходимости.
func (p *SnapshotProvider) Get(ctx context.Context, groupID string, period stats.Period) (*SnapshotResult, error) {
	key := stats.Key{GroupID: groupID, Period: period}

	current, err := p.snapshots.Get(ctx, key)
	if err != nil {
		if !shared.IsNotFound(err) {
			// Хранилище снимков недоступно - пробуем посчитать заново.
			p.log.Warn("snapshot read failed",
				logger.GroupID(groupID), logger.Period(string(period)), logger.Err(err))
		}
		current = nil
	}

	if !stats.NeedsRefresh(current, p.config.Now(), p.config.MaxAge) {
		return &SnapshotResult{Snapshot: current}, nil
	}

	fresh, err := p.refresh(ctx, key)
	if err == nil {
		return &SnapshotResult{Snapshot: fresh, Recomputed: true}, nil
	}

	if current == nil {
		return nil, shared.Upstream("stats", "GetSnapshot", err)
	}

	p.log.Warn("recompute failed, serving stale snapshot",
		logger.GroupID(groupID),
		logger.Period(string(period)),
		logger.Duration("age", current.Age(p.config.Now())),
		logger.Err(err),
	)
	return &SnapshotResult{Snapshot: current, Stale: true}, nil
}

// Recompute пересчитывает и сохраняет снимок независимо от его возраста.
// Используется командой refresh.
func (p *SnapshotProvider) Recompute(ctx context.Context, groupID string, period stats.Period) (*stats.Snapshot, error) {
	snap, err := p.refresh(ctx, stats.Key{GroupID: groupID, Period: period})
	if err != nil {
		return nil, shared.Upstream("stats", "Recompute", err)
	}
	return snap, nil
}

// refresh выполняет пересчёт, объединяя параллельные вызовы одного ключа.
// Пересчёт не прерывается отменой ctx одного из ожидающих.
func (p *SnapshotProvider) refresh(ctx context.Context, key stats.Key) (*stats.Snapshot, error) {
	flightKey := key.GroupID + "/" + string(key.Period)
	detached := context.WithoutCancel(ctx)

	ch := p.flight.DoChan(flightKey, func() (interface{}, error) {
		return p.compute(detached, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*stats.Snapshot), nil
	}
}

func (p *SnapshotProvider) compute(ctx context.Context, key stats.Key) (*stats.Snapshot, error) {
	started := p.config.Now()
	log := p.log.With(logger.GroupID(key.GroupID), logger.Period(string(key.Period)))

	window, err := stats.WindowFor(key.Period, started, p.config.Calendar)
	if err != nil {
		return nil, err
	}

	members, err := p.members.ListActiveMembers(ctx, key.GroupID)
	if err != nil {
		return nil, err
	}
	ids := group.MemberIDs(members)

	var (
		sessions []group.Session
		profiles map[string]group.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = p.sessions.ListSessions(gctx, ids, window.Start, window.End)
		return err
	})
	g.Go(func() error {
		var err error
		profiles, err = p.profiles.GetProfiles(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap, err := stats.Compute(stats.Input{
		SnapshotID:      p.ids.GenerateID(),
		GroupID:         key.GroupID,
		Period:          key.Period,
		Window:          window,
		Members:         members,
		Sessions:        sessions,
		Profiles:        profiles,
		ComputedAt:      started,
		LeaderboardSize: p.config.LeaderboardSize,
	})
	if err != nil {
		return nil, err
	}

	if err := p.snapshots.Save(ctx, snap); err != nil {
		// Посчитанный снимок всё равно отдаём; следующий запрос попробует сохранить снова.
		log.Warn("snapshot save failed", logger.Err(err))
	}

	log.Debug("snapshot recomputed",
		logger.Int("members", len(members)),
		logger.Int("sessions", len(sessions)),
		logger.Latency(p.config.Now().Sub(started)),
	)
	return snap, nil
}
